package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "rie.dev/pkg/rie/internal/model"
)

func surfaceGraph(t *testing.T) m.Graph {
	t.Helper()

	files := nodes(
		"README.md",
		"backend/api.py", "backend/db.py", "backend/views.py",
		"ml/model.py", "ml/train.py", "ml/features.py",
		"apps/web/app.py", "apps/web/routes.py",
		"setup.py",
	)

	sink := staticEdges(
		[2]m.Path{"backend/api.py", "ml/model.py"},
		[2]m.Path{"backend/api.py", "backend/db.py"},
		[2]m.Path{"apps/web/app.py", "backend/api.py"},
	)
	require.NoError(t, sink.Append(EdgeEvidence("README.md", "ml/train.py", m.EdgeText, TextWeightPath)))

	g, err := BuildGraph(files, sink)
	require.NoError(t, err)

	return g
}

func TestResolveSurfaces(t *testing.T) {
	g := surfaceGraph(t)

	cfg := m.DefaultConfig()
	cfg.Surfaces = []m.SurfaceDecl{{Name: "web", Root: "apps/web"}}
	cfg.Allow = []m.SurfacePair{{From: "web", To: "backend"}}

	result := ResolveSurfaces(&g, cfg)

	var names []string
	for _, s := range result.Surfaces {
		names = append(names, s.Name)
	}

	assert.Equal(t, []string{".", "backend", "ml", "web"}, names)

	for _, n := range g.Nodes {
		assert.NotEmpty(t, n.Surface, n.Path)
	}

	web, _ := g.Node("apps/web/routes.py")
	assert.Equal(t, "web", web.Surface)

	readme, _ := g.Node("README.md")
	assert.Equal(t, m.RootSurface, readme.Surface)

	wantCross := []m.CrossSurfaceEdge{
		{From: "backend", To: "ml", Count: 1},
		{From: "web", To: "backend", Count: 1},
	}

	if diff := cmp.Diff(wantCross, result.Cross); diff != "" {
		t.Errorf("cross-surface mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, result.Violations, 1)
	assert.Equal(t, m.ViolationBoundary, result.Violations[0].Kind)
	assert.Equal(t, "backend", result.Violations[0].FromSurface)
	assert.Equal(t, "ml", result.Violations[0].ToSurface)
	assert.Equal(t, []m.Path{"backend/api.py", "ml/model.py"}, result.Violations[0].Files)

	for _, s := range result.Surfaces {
		switch s.Name {
		case "backend":
			assert.Equal(t, 3, s.FileCount)
			assert.Equal(t, 1, s.CrossOut)
			assert.Equal(t, 1, s.CrossIn)
			assert.False(t, s.Configured)
		case "web":
			assert.True(t, s.Configured)
			assert.Equal(t, 2, s.FileCount)
		case m.RootSurface:
			assert.Equal(t, 2, s.FileCount)
		}
	}
}

func TestResolveSurfaces_EngineScopeSilencesViolations(t *testing.T) {
	g := surfaceGraph(t)

	cfg := m.DefaultConfig()
	cfg.EngineRoots = []m.Path{"backend"}

	result := ResolveSurfaces(&g, cfg)

	assert.Empty(t, result.Violations, "edges leaving the engine are not boundary violations")
	assert.Len(t, result.Cross, 2)

	for _, s := range result.Surfaces {
		assert.Equal(t, s.Name == "backend", s.EngineScope, s.Name)
	}
}

func TestResolveSurfaces_SplitsLargeSurface(t *testing.T) {
	var paths []m.Path
	for _, child := range []string{"billing", "orders", "users"} {
		for _, f := range []string{"a", "b", "c", "d", "e", "f", "g"} {
			paths = append(paths, m.Path("services/"+child+"/"+f+".py"))
		}
	}

	g := m.Graph{Nodes: nodes(paths...)}
	result := ResolveSurfaces(&g, m.DefaultConfig())

	var names []string
	for _, s := range result.Surfaces {
		names = append(names, s.Name)
	}

	assert.Equal(t, []string{"services", "services/billing", "services/orders", "services/users"}, names)

	n, _ := g.Node("services/orders/c.py")
	assert.Equal(t, "services/orders", n.Surface)
}

func TestInEngineScope(t *testing.T) {
	assert.True(t, InEngineScope("anything.py", nil))
	assert.True(t, InEngineScope("core/x.py", []m.Path{"core", "engine"}))
	assert.False(t, InEngineScope("tools/x.py", []m.Path{"core"}))
}
