package domain

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rie.dev/pkg/rie/internal/adapter"
	"rie.dev/pkg/rie/internal/controller"
	m "rie.dev/pkg/rie/internal/model"
)

// cancellingHarness cancels the scan while runtime evidence is being collected.
type cancellingHarness struct {
	cancel context.CancelFunc
}

func (h cancellingHarness) Trace(ctx context.Context, _ string, _ []TraceTarget, _ []m.FileNode, _ m.Config, sink EvidenceSink) (TraceResult, error) {
	if err := sink.Append(FlagEvidence("app/main.py", m.FlagRuntimeTraced, "app/main.py")); err != nil {
		return TraceResult{}, err
	}

	h.cancel()

	return TraceResult{}, ctx.Err()
}

// replayHarness reports the same runtime evidence for every scan with tracing enabled.
type replayHarness struct {
	status m.TraceStatus
	edges  [][2]m.Path
}

func (h replayHarness) Trace(_ context.Context, _ string, entries []TraceTarget, _ []m.FileNode, cfg m.Config, sink EvidenceSink) (TraceResult, error) {
	result := TraceResult{Outcomes: make(map[m.Path]TraceOutcome, len(entries)), Status: m.SourceOK}

	if !cfg.Trace.Enabled {
		result.Status = m.SourceDisabled

		for _, e := range entries {
			result.Outcomes[e.Path] = TraceOutcome{Path: e.Path, Status: m.TraceDisabled}
		}

		return result, nil
	}

	for _, e := range entries {
		result.Outcomes[e.Path] = TraceOutcome{Path: e.Path, Status: h.status}

		if err := sink.Append(FlagEvidence(e.Path, m.FlagRuntimeTraced, string(e.Path))); err != nil {
			return result, err
		}
	}

	for _, pair := range h.edges {
		if err := sink.Append(EdgeEvidence(pair[0], pair[1], m.EdgeRuntime, m.RuntimeWeight)); err != nil {
			return result, err
		}

		if err := sink.Append(FlagEvidence(pair[1], m.FlagRuntimeTraced, string(pair[0]))); err != nil {
			return result, err
		}

		result.Edges++
	}

	if h.status.Partial() {
		result.Status = m.SourceDegraded
	}

	return result, nil
}

func newTestWorkflow(out *bytes.Buffer, h Harness) *workflow {
	fs := adapter.NewLocalSourceFSAdapter()

	if h == nil {
		h = NewHarness(fs, adapter.NewLocalProcessRunnerAdapter())
	}

	wf, _ := NewWorkflow(
		fs,
		adapter.NewFileArtifactStore(),
		adapter.NewLocalManifestAdapter(),
		controller.NewSimpleUI(out),
		newTestAnalyzer(),
		h,
	).(*workflow)

	wf.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	return wf
}

func workflowRepo(t *testing.T) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "repo")
	writeTree(t, root, map[string]string{
		"app/__init__.py": "",
		"app/main.py":     "from app import helper\n\nif __name__ == \"__main__\":\n    helper.run()\n",
		"app/helper.py":   "def run():\n    pass\n",
		"misc/unused.py":  "x = 1\n",
		"README.md":       "Start with python app/main.py\n",
	})

	return root
}

func TestWorkflow_Scan(t *testing.T) {
	root := workflowRepo(t)
	outDir := t.TempDir()

	var out bytes.Buffer
	wf := newTestWorkflow(&out, nil)

	first := filepath.Join(outDir, "first.json")

	artifact, err := wf.Scan(t.Context(), ScanArgs{RepoRoot: root, Config: testConfig(), Output: first})
	require.NoError(t, err)

	assert.Equal(t, root, artifact.Repo)
	assert.Equal(t, m.ArtifactVersion, artifact.Version)
	assert.Len(t, artifact.Tiers, 5)
	assert.Equal(t, m.TierCore, artifact.Tiers["app/main.py"])
	assert.Equal(t, m.TierCore, artifact.Tiers["app/helper.py"])
	assert.Equal(t, m.TierGhost, artifact.Tiers["misc/unused.py"])

	require.NotEmpty(t, artifact.Candidates)
	assert.Equal(t, m.Path("app/main.py"), artifact.Candidates[0].Path)
	require.NotEmpty(t, artifact.Triangulation.Picks)
	assert.Equal(t, m.Path("app/main.py"), artifact.Triangulation.Picks[0].Path)

	require.Len(t, artifact.Evidence, 3)
	assert.Equal(t, m.SourceRuntime, artifact.Evidence[1].Source)
	assert.Equal(t, m.SourceDisabled, artifact.Evidence[1].Status)
	assert.False(t, artifact.TracePartial)

	assert.Contains(t, out.String(), "==> inventory")
	assert.Contains(t, out.String(), "==> trace: 1 candidates")
	assert.Contains(t, out.String(), "Repository: "+root)

	// A second scan of an unchanged tree writes an identical artifact.
	second := filepath.Join(outDir, "second.json")

	_, err = wf.Scan(t.Context(), ScanArgs{RepoRoot: root, Config: testConfig(), Output: second})
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)

	b, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
}

func TestWorkflow_ScanCompressedArtifact(t *testing.T) {
	root := workflowRepo(t)
	output := filepath.Join(t.TempDir(), "artifact.json.zst")

	var out bytes.Buffer
	wf := newTestWorkflow(&out, nil)

	scanned, err := wf.Scan(t.Context(), ScanArgs{RepoRoot: root, Config: testConfig(), Output: output})
	require.NoError(t, err)

	loaded, err := wf.Show(t.Context(), ShowArgs{Artifact: output})
	require.NoError(t, err)

	assert.Equal(t, scanned.Tiers, loaded.Tiers)
}

func TestWorkflow_ScanRejectsInvalidConfig(t *testing.T) {
	var out bytes.Buffer

	cfg := testConfig()
	cfg.TopK = 0

	_, err := newTestWorkflow(&out, nil).Scan(t.Context(), ScanArgs{RepoRoot: "/does/not/matter", Config: cfg})
	require.Error(t, err)
	assert.True(t, m.IsConfigurationError(err))
	assert.Empty(t, out.String())
}

func TestWorkflow_ScanUnreadableRoot(t *testing.T) {
	var out bytes.Buffer

	_, err := newTestWorkflow(&out, nil).Scan(t.Context(), ScanArgs{
		RepoRoot: filepath.Join(t.TempDir(), "missing"),
		Config:   testConfig(),
	})
	require.ErrorIs(t, err, m.ErrRepositoryUnreadable)
}

func TestWorkflow_ScanAbortedKeepsSpill(t *testing.T) {
	root := workflowRepo(t)
	output := filepath.Join(t.TempDir(), "artifact.json")

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var out bytes.Buffer
	wf := newTestWorkflow(&out, cancellingHarness{cancel: cancel})

	_, err := wf.Scan(ctx, ScanArgs{RepoRoot: root, Config: testConfig(), Output: output})
	require.Error(t, err)

	var aborted *m.ScanAborted
	require.True(t, errors.As(err, &aborted))
	assert.ErrorIs(t, err, context.Canceled)

	t.Cleanup(func() { _ = os.Remove(aborted.SpillPath) })

	assert.FileExists(t, aborted.SpillPath)
	assert.NoFileExists(t, output)
}

func TestWorkflow_ActCycle(t *testing.T) {
	root := workflowRepo(t)
	base := t.TempDir()
	output := filepath.Join(base, "artifact.json")
	qdir := filepath.Join(base, "quarantine")

	var out bytes.Buffer
	wf := newTestWorkflow(&out, nil)
	ctx := t.Context()

	_, err := wf.Scan(ctx, ScanArgs{RepoRoot: root, Config: testConfig(), Output: output})
	require.NoError(t, err)

	out.Reset()

	shown, err := wf.Entrypoints(ctx, ShowArgs{Artifact: output})
	require.NoError(t, err)
	assert.Equal(t, root, shown.Repo)
	assert.Contains(t, out.String(), "app/main.py")

	report, err := wf.Quarantine(ctx, QuarantineArgs{Artifact: output, Dir: qdir})
	require.NoError(t, err)

	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, m.Path("misc/unused.py"), report.Outcomes[0].Path)
	assert.Equal(t, m.StatusCommitted, report.Outcomes[0].Status)
	assert.NoFileExists(t, filepath.Join(root, "misc", "unused.py"))
	assert.FileExists(t, filepath.Join(qdir, string(m.TierGhost), "misc", "unused.py"))

	restored, err := wf.Restore(ctx, RestoreArgs{RepoRoot: root, Dir: qdir})
	require.NoError(t, err)

	require.Len(t, restored.Outcomes, 1)
	assert.Equal(t, m.StatusCommitted, restored.Outcomes[0].Status)
	assert.FileExists(t, filepath.Join(root, "misc", "unused.py"))

	diff, err := wf.Diff(ctx, DiffArgs{Older: output, Newer: output})
	require.NoError(t, err)
	assert.Empty(t, diff.Changes)
}

func TestWorkflow_RejectsUnknownArtifactVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	require.NoError(t, adapter.NewFileArtifactStore().Save(path, m.Artifact{Version: m.ArtifactVersion + 1}))

	var out bytes.Buffer

	_, err := newTestWorkflow(&out, nil).Show(t.Context(), ShowArgs{Artifact: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported artifact version")
}

func TestWorkflow_TracingOnlyAddsEvidence(t *testing.T) {
	root := workflowRepo(t)

	staticOnly := func(a m.Artifact) []m.Edge {
		var out []m.Edge

		for _, e := range a.Graph.Edges {
			if e.Kind == m.EdgeStatic {
				out = append(out, e)
			}
		}

		return out
	}

	scan := func(t *testing.T, h Harness, tracing bool) m.Artifact {
		t.Helper()

		cfg := testConfig()
		cfg.Trace.Enabled = tracing

		var out bytes.Buffer

		artifact, err := newTestWorkflow(&out, h).Scan(t.Context(), ScanArgs{
			RepoRoot: root,
			Config:   cfg,
			Output:   filepath.Join(t.TempDir(), "artifact.json"),
		})
		require.NoError(t, err)

		return artifact
	}

	baseline := scan(t, replayHarness{}, false)

	tests := []struct {
		name     string
		harness  replayHarness
		promoted []m.Path
	}{
		{
			name:    "completed run without new modules",
			harness: replayHarness{status: m.TraceCompleted},
		},
		{
			name:     "completed run loading an unimported module",
			harness:  replayHarness{status: m.TraceCompleted, edges: [][2]m.Path{{"app/helper.py", "misc/unused.py"}}},
			promoted: []m.Path{"misc/unused.py"},
		},
		{
			name:     "timed out run keeps its edges",
			harness:  replayHarness{status: m.TraceTimeout, edges: [][2]m.Path{{"app/main.py", "misc/unused.py"}}},
			promoted: []m.Path{"misc/unused.py"},
		},
		{
			name:    "crashed run",
			harness: replayHarness{status: m.TraceCrashed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			traced := scan(t, tt.harness, true)

			for p, tier := range baseline.Tiers {
				if tier == m.TierCore {
					assert.Equal(t, m.TierCore, traced.Tiers[p], "%s lost T0 under tracing", p)
				}
			}

			for _, p := range tt.promoted {
				assert.Equal(t, m.TierCore, traced.Tiers[p], p)
			}

			if diff := cmp.Diff(staticOnly(baseline), staticOnly(traced)); diff != "" {
				t.Errorf("static edges changed under tracing (-without +with):\n%s", diff)
			}
		})
	}
}

func TestWorkflow_ScanTargets(t *testing.T) {
	root := workflowRepo(t)

	tests := []struct {
		name   string
		target string
		roots  []m.Path
		unused m.Tier
	}{
		{"auto keeps configured roots", m.TargetAuto, nil, m.TierGhost},
		{"global", m.TargetGlobal, nil, m.TierGhost},
		{"engine infers the busiest folder", m.TargetEngine, []m.Path{"app"}, m.TierPeriphery},
		{"folder", "misc", []m.Path{"misc"}, m.TierGhost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Target = tt.target

			var out bytes.Buffer

			artifact, err := newTestWorkflow(&out, nil).Scan(t.Context(), ScanArgs{
				RepoRoot: root,
				Config:   cfg,
				Output:   filepath.Join(t.TempDir(), "artifact.json"),
			})
			require.NoError(t, err)

			assert.Equal(t, tt.target, artifact.Scope.Target)
			assert.Equal(t, tt.roots, artifact.Scope.Roots)
			assert.Equal(t, tt.roots, artifact.Config.EngineRoots)
			assert.Equal(t, tt.unused, artifact.Tiers["misc/unused.py"])
		})
	}
}

func TestWorkflow_ScanRejectsMissingTargetFolder(t *testing.T) {
	cfg := testConfig()
	cfg.Target = "services"

	var out bytes.Buffer

	_, err := newTestWorkflow(&out, nil).Scan(t.Context(), ScanArgs{
		RepoRoot: workflowRepo(t),
		Config:   cfg,
		Output:   filepath.Join(t.TempDir(), "artifact.json"),
	})
	require.Error(t, err)
	assert.True(t, m.IsConfigurationError(err))
	assert.Contains(t, err.Error(), "scan.target")
}

func TestWorkflow_ScanRecordsCartography(t *testing.T) {
	var out bytes.Buffer

	artifact, err := newTestWorkflow(&out, nil).Scan(t.Context(), ScanArgs{
		RepoRoot: workflowRepo(t),
		Config:   testConfig(),
		Output:   filepath.Join(t.TempDir(), "artifact.json"),
	})
	require.NoError(t, err)

	health := map[m.Path]m.FolderHealth{}
	for _, f := range artifact.Cartography.Folders {
		health[f.Path] = f.Health
	}

	assert.Equal(t, m.HealthRemovalCandidate, health["misc"])
	assert.NotEqual(t, m.HealthRemovalCandidate, health["app"])

	require.NotEmpty(t, artifact.Cartography.Clusters)
	assert.Equal(t, "app", artifact.Cartography.Clusters[0].Label)
	assert.Contains(t, out.String(), "removal-candidate")
}

func TestWorkflow_Prune(t *testing.T) {
	root := workflowRepo(t)
	base := t.TempDir()
	output := filepath.Join(base, "artifact.json")
	script := filepath.Join(base, "scripts", "prune.sh")

	var out bytes.Buffer
	wf := newTestWorkflow(&out, nil)

	_, err := wf.Scan(t.Context(), ScanArgs{RepoRoot: root, Config: testConfig(), Output: output})
	require.NoError(t, err)

	out.Reset()

	plan, err := wf.Prune(t.Context(), PruneArgs{Artifact: output, Script: script})
	require.NoError(t, err)

	assert.Equal(t, []m.FolderRemoval{{Folder: "misc", Files: []m.Path{"misc/unused.py"}}}, plan.Removals)
	assert.Contains(t, out.String(), "folders to remove 1, files to remove 1, files to move 0")

	data, err := os.ReadFile(script)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rm -f -- 'misc/unused.py'")

	// Planning never touches the repository.
	assert.FileExists(t, filepath.Join(root, "misc", "unused.py"))
}
