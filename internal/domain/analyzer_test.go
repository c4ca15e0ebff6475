package domain

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "rie.dev/pkg/rie/internal/model"
)

func analyzerFixture(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/main.py": "import os\nfrom pkg import util\nfrom pkg.sub import deep\n\n" +
			"if __name__ == \"__main__\":\n    util.run()\n",
		"pkg/__init__.py":      "",
		"pkg/util.py":          "from . import helpers\n\ndef run():\n    helpers.go()\n",
		"pkg/helpers.py":       "def go():\n    pass\n",
		"pkg/sub/__init__.py":  "",
		"pkg/sub/deep.py":      "from ..util import run\n",
		"broken.py":            "def (:\n",
		"go.mod":               "module example.com/demo\n\ngo 1.22\n",
		"cmd/app/main.go":      "package main\n\nimport (\n\t\"fmt\"\n\n\t\"example.com/demo/internal/store\"\n)\n\nfunc main() { fmt.Println(store.Name) }\n",
		"internal/store/db.go": "package store\n\nconst Name = \"db\"\n",
	})

	return root
}

func TestStaticAnalyzer_Analyze(t *testing.T) {
	root := analyzerFixture(t)
	cfg := testConfig()
	files := inventoryOf(t, root, cfg)

	sink := &MemorySink{}
	result, err := newTestAnalyzer().Analyze(context.Background(), root, files, cfg, sink)
	require.NoError(t, err)

	want := [][2]m.Path{
		{"app/main.py", "pkg/__init__.py"},
		{"app/main.py", "pkg/sub/__init__.py"},
		{"app/main.py", "pkg/sub/deep.py"},
		{"app/main.py", "pkg/util.py"},
		{"cmd/app/main.go", "internal/store/db.go"},
		{"pkg/sub/deep.py", "pkg/util.py"},
		{"pkg/util.py", "pkg/helpers.py"},
	}

	if diff := cmp.Diff(want, edgeSet(sink.Items(), m.EdgeStatic)); diff != "" {
		t.Errorf("static edges mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, len(want), result.Edges)
	assert.Equal(t, 1, result.Failures)
	assert.Equal(t, 2, result.External, "os and fmt are external")
	assert.Equal(t, []m.Path{"app/main.py", "cmd/app/main.go"}, result.MainGuards)
	assert.Contains(t, result.Imports["app/main.py"], "os")

	var failed []m.Path
	for _, ev := range sink.Items() {
		if ev.Kind == EvidenceFlag && ev.Flag == m.FlagParseFailed {
			failed = append(failed, ev.To)
		}
	}

	assert.Equal(t, []m.Path{"broken.py"}, failed)
}

func TestStaticAnalyzer_SrcLayoutAndPackageRoots(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/demo/__init__.py": "",
		"src/demo/core.py":     "import demo.models\n",
		"src/demo/models.py":   "",
		"libs/shared/tools.py": "",
		"scripts/run.py":       "import demo.core\nimport tools\n",
	})

	cfg := testConfig()
	cfg.PackageRoots = []m.Path{"libs/shared"}
	files := inventoryOf(t, root, cfg)

	sink := &MemorySink{}
	_, err := newTestAnalyzer().Analyze(context.Background(), root, files, cfg, sink)
	require.NoError(t, err)

	got := edgeSet(sink.Items(), m.EdgeStatic)
	assert.Contains(t, got, [2]m.Path{"scripts/run.py", "src/demo/core.py"})
	assert.Contains(t, got, [2]m.Path{"scripts/run.py", "src/demo/__init__.py"})
	assert.Contains(t, got, [2]m.Path{"scripts/run.py", "libs/shared/tools.py"})
	assert.Contains(t, got, [2]m.Path{"src/demo/core.py", "src/demo/models.py"})
}

func TestStaticAnalyzer_AbsoluteImportSearchPath(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"config.py":          "NAME = 'root'\n",
		"main.py":            "import pkg.a\n",
		"pkg/__init__.py":    "",
		"pkg/a.py":           "import config\n",
		"pkg/config.py":      "NAME = 'pkg'\n",
		"scripts/config.py":  "NAME = 'scripts'\n",
		"scripts/migrate.py": "import config\n",
		"scripts/helpers.py": "",
		"scripts/cleanup.py": "import helpers\n",
	})

	cfg := testConfig()
	files := inventoryOf(t, root, cfg)

	sink := &MemorySink{}
	_, err := newTestAnalyzer().Analyze(context.Background(), root, files, cfg, sink)
	require.NoError(t, err)

	got := edgeSet(sink.Items(), m.EdgeStatic)

	tests := []struct {
		name     string
		edge     [2]m.Path
		expected bool
	}{
		{"package module resolves from the root", [2]m.Path{"pkg/a.py", "config.py"}, true},
		{"package module ignores its sibling", [2]m.Path{"pkg/a.py", "pkg/config.py"}, false},
		{"loose script prefers its own directory", [2]m.Path{"scripts/migrate.py", "scripts/config.py"}, true},
		{"loose script shadows the root module", [2]m.Path{"scripts/migrate.py", "config.py"}, false},
		{"loose script sees its sibling", [2]m.Path{"scripts/cleanup.py", "scripts/helpers.py"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.expected {
				assert.Contains(t, got, tt.edge)
			} else {
				assert.NotContains(t, got, tt.edge)
			}
		})
	}
}

func TestStaticAnalyzer_Cancelled(t *testing.T) {
	root := analyzerFixture(t)
	cfg := testConfig()
	files := inventoryOf(t, root, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAnalyzer().Analyze(ctx, root, files, cfg, &MemorySink{})
	require.ErrorIs(t, err, context.Canceled)
}
