package domain

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

// writeTree creates files under root from a relative path -> content map.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func testConfig() m.Config {
	cfg := m.DefaultConfig()
	cfg.Parallel = 2

	return cfg
}

func inventoryOf(t *testing.T, root string, cfg m.Config) []m.FileNode {
	t.Helper()

	files, err := NewInventory(adapter.NewLocalSourceFSAdapter()).Files(root, cfg)
	require.NoError(t, err)

	return files
}

func newTestAnalyzer() StaticAnalyzer {
	return NewStaticAnalyzer(
		adapter.NewLocalSourceFSAdapter(),
		adapter.NewTreeSitterPythonAdapter(),
		adapter.NewLocalGoFileAdapter(),
	)
}

// edgeSet lists the (from, to) pairs of edge records of the given kind, sorted.
func edgeSet(items []Evidence, kind m.EdgeKind) [][2]m.Path {
	var out [][2]m.Path

	for _, ev := range items {
		if ev.Kind == EvidenceEdge && ev.EdgeKind == kind {
			out = append(out, [2]m.Path{ev.From, ev.To})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}

		return out[i][1] < out[j][1]
	})

	return out
}

func nodes(paths ...m.Path) []m.FileNode {
	out := make([]m.FileNode, 0, len(paths))
	for _, p := range paths {
		out = append(out, m.FileNode{Path: p, Language: DetectLanguage(p), Role: DetectRole(p), Domain: m.DefaultDomain})
	}

	return out
}

func staticEdges(pairs ...[2]m.Path) *MemorySink {
	sink := &MemorySink{}
	for _, p := range pairs {
		_ = sink.Append(EdgeEvidence(p[0], p[1], m.EdgeStatic, m.StaticWeight))
	}

	return sink
}
