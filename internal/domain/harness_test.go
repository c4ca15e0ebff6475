package domain

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

// scriptedRun is what the fake runner does for one entrypoint.
type scriptedRun struct {
	events []string
	result adapter.ProcessResult
}

// fakeRunner plays the tracer's side of the protocol without a Python interpreter.
type fakeRunner struct {
	mu      sync.Mutex
	scripts map[string]scriptedRun
	specs   map[string]adapter.ProcessSpec
}

func newFakeRunner(scripts map[string]scriptedRun) *fakeRunner {
	return &fakeRunner{scripts: scripts, specs: make(map[string]adapter.ProcessSpec)}
}

func (r *fakeRunner) Run(_ context.Context, spec adapter.ProcessSpec) (adapter.ProcessResult, error) {
	var pc payloadConfig

	for _, kv := range spec.Env {
		if value, ok := strings.CutPrefix(kv, traceConfigEnv+"="); ok {
			if err := json.Unmarshal([]byte(value), &pc); err != nil {
				return adapter.ProcessResult{}, err
			}
		}
	}

	r.mu.Lock()
	r.specs[pc.Entry] = spec
	script, ok := r.scripts[pc.Entry]
	r.mu.Unlock()

	if !ok {
		return adapter.ProcessResult{}, errors.New("unexpected entry " + pc.Entry)
	}

	if len(script.events) > 0 {
		data := strings.Join(script.events, "\n") + "\n"
		if err := os.WriteFile(pc.Events, []byte(data), 0o644); err != nil {
			return adapter.ProcessResult{}, err
		}
	}

	return script.result, nil
}

func (r *fakeRunner) spec(entry string) (adapter.ProcessSpec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, ok := r.specs[entry]

	return spec, ok
}

func traceConfig() m.Config {
	cfg := testConfig()
	cfg.Trace.Enabled = true
	cfg.Trace.Timeout = 2 * time.Second

	return cfg
}

func fakeHarness(runner adapter.ProcessRunnerAdapter) *harness {
	return &harness{
		SourceFSAdapter:      adapter.NewLocalSourceFSAdapter(),
		ProcessRunnerAdapter: runner,
		lookPath:             func(string) (string, error) { return "/usr/bin/python3", nil },
	}
}

// targets queues paths for tracing without a classified role.
func targets(paths ...m.Path) []TraceTarget {
	out := make([]TraceTarget, len(paths))
	for i, p := range paths {
		out[i] = TraceTarget{Path: p}
	}

	return out
}

func TestHarness_Disabled(t *testing.T) {
	runner := newFakeRunner(nil)
	h := fakeHarness(runner)

	entries := []m.Path{"app/main.py"}

	result, err := h.Trace(t.Context(), t.TempDir(), targets(entries...), nodes(entries...), testConfig(), &MemorySink{})
	require.NoError(t, err)

	assert.Equal(t, m.SourceDisabled, result.Status)
	assert.Equal(t, m.TraceDisabled, result.Outcomes["app/main.py"].Status)
	assert.Empty(t, runner.specs)
}

func TestHarness_InterpreterMissing(t *testing.T) {
	h := fakeHarness(newFakeRunner(nil))
	h.lookPath = func(file string) (string, error) { return "", exec.ErrNotFound }

	entries := []m.Path{"app/main.py"}

	result, err := h.Trace(t.Context(), t.TempDir(), targets(entries...), nodes(entries...), traceConfig(), &MemorySink{})
	require.NoError(t, err)

	assert.Equal(t, m.SourceDegraded, result.Status)
	assert.Contains(t, result.Detail, "python3")
	assert.Equal(t, m.TraceSkipped, result.Outcomes["app/main.py"].Status)
}

func TestHarness_EmptyAllowListsAreEncodedAsArrays(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.py": "import os\n"})

	runner := newFakeRunner(map[string]scriptedRun{
		"main.py": {events: []string{`{"type":"start","entry":"main.py","mode":"auto"}`}},
	})
	h := fakeHarness(runner)

	cfg := traceConfig()
	cfg.Trace.WritablePaths = nil
	cfg.Trace.PermittedHosts = nil

	_, err := h.Trace(t.Context(), root, targets("main.py"), nodes("main.py"), cfg, &MemorySink{})
	require.NoError(t, err)

	spec, ok := runner.spec("main.py")
	require.True(t, ok)

	var raw string
	for _, kv := range spec.Env {
		if value, found := strings.CutPrefix(kv, traceConfigEnv+"="); found {
			raw = value
		}
	}

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &decoded))
	assert.Equal(t, []any{}, decoded["writable"])
	assert.Equal(t, []any{}, decoded["hosts"])
}

func TestHarness_CollectsRuntimeEvidence(t *testing.T) {
	defer goleak.VerifyNone(t)

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"app/main.py":    "import pkg.a\n",
		"pkg/a.py":       "import pkg.b\n",
		"pkg/b.py":       "",
		"tools/slow.py":  "import time\n",
		"tools/crash.py": "raise ValueError('boom')\n",
		".env":           "API_TOKEN=fake\n",
	})

	runner := newFakeRunner(map[string]scriptedRun{
		"app/main.py": {
			events: []string{
				`{"type":"start","entry":"app/main.py","mode":"auto"}`,
				`{"type":"import","from":"app/main.py","to":"pkg/a.py"}`,
				`{"type":"import","from":"pkg/a.py","to":"pkg/b.py"}`,
				`{"type":"import","from":"","to":"pkg/a.py"}`,
				`{"type":"import","from":"app/main.py","to":"venv/lib/site.py"}`,
				`{"type":"blocked","event":"socket.connect","detail":"example.com"}`,
				`{"type":"exit","code":0}`,
				`{"type":"import","from":"pkg/b.py","to":`,
			},
		},
		"tools/slow.py": {
			events: []string{`{"type":"import","from":"tools/slow.py","to":"pkg/b.py"}`},
			result: adapter.ProcessResult{TimedOut: true, ExitCode: -1},
		},
		"tools/crash.py": {
			result: adapter.ProcessResult{ExitCode: 1, Output: "Traceback (most recent call last):\nValueError: boom\n"},
		},
	})

	cfg := traceConfig()
	cfg.Trace.EnvFile = ".env"

	files := nodes("app/main.py", "pkg/a.py", "pkg/b.py", "tools/crash.py", "tools/slow.py")
	entries := []m.Path{"app/main.py", "tools/crash.py", "tools/slow.py"}
	sink := &MemorySink{}

	result, err := fakeHarness(runner).Trace(t.Context(), root, targets(entries...), files, cfg, sink)
	require.NoError(t, err)

	main := result.Outcomes["app/main.py"]
	assert.Equal(t, m.TraceCompleted, main.Status)
	assert.Equal(t, []string{"socket.connect example.com"}, main.Blocked)
	assert.Equal(t, 7, main.Events)

	assert.Equal(t, m.TraceTimeout, result.Outcomes["tools/slow.py"].Status)
	assert.Equal(t, "killed after 2s", result.Outcomes["tools/slow.py"].Detail)

	crash := result.Outcomes["tools/crash.py"]
	assert.Equal(t, m.TraceCrashed, crash.Status)
	assert.Equal(t, "exit code 1: ValueError: boom", crash.Detail)

	assert.Equal(t, m.SourceDegraded, result.Status)
	assert.Contains(t, result.Detail, "tools/slow.py: timeout")
	assert.Contains(t, result.Detail, "tools/crash.py: crashed")

	// Timed out runs keep the edges observed before the kill.
	assert.Equal(t, 3, result.Edges)
	assert.Equal(t, [][2]m.Path{
		{"app/main.py", "pkg/a.py"},
		{"pkg/a.py", "pkg/b.py"},
		{"tools/slow.py", "pkg/b.py"},
	}, edgeSet(sink.Items(), m.EdgeRuntime))

	traced := map[m.Path]bool{}
	for _, ev := range sink.Items() {
		if ev.Kind == EvidenceFlag && ev.Flag == m.FlagRuntimeTraced {
			traced[ev.To] = true
		}
	}

	// The crashed run left no event log.
	assert.Equal(t, map[m.Path]bool{
		"app/main.py": true, "pkg/a.py": true, "pkg/b.py": true, "tools/slow.py": true,
	}, traced)

	spec, ok := runner.spec("app/main.py")
	require.True(t, ok)

	assert.Equal(t, "/usr/bin/python3", spec.Command)
	assert.Equal(t, "-B", spec.Args[0])
	assert.Equal(t, root, spec.Dir)
	assert.Equal(t, 2*time.Second, spec.Timeout)
	assert.Contains(t, spec.Env, "API_TOKEN=fake")
	assert.Contains(t, spec.Env, "HTTPS_PROXY="+unroutableProxy)

	env := strings.Join(spec.Env, "\n")
	assert.NotContains(t, env, "HOME="+os.Getenv("HOME")+"\n")

	// Scratch directories are removed after each run.
	for _, kv := range spec.Env {
		if home, ok := strings.CutPrefix(kv, "HOME="); ok {
			assert.NoDirExists(t, filepath.Dir(home))
		}
	}
}

func TestHarness_BootEntrypointsGetBootTimeout(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"server.py": "import uvicorn\n",
		"cli.py":    "print('hi')\n",
	})

	runner := newFakeRunner(map[string]scriptedRun{
		"server.py": {result: adapter.ProcessResult{TimedOut: true, ExitCode: -1}},
		"cli.py":    {},
	})

	cfg := traceConfig()
	cfg.Trace.BootTimeout = 30 * time.Second

	entries := []TraceTarget{
		{Path: "server.py", Role: m.EntryBoot},
		{Path: "cli.py", Role: m.EntryTool},
	}

	result, err := fakeHarness(runner).Trace(t.Context(), root, entries, nodes("server.py", "cli.py"), cfg, &MemorySink{})
	require.NoError(t, err)

	server, ok := runner.spec("server.py")
	require.True(t, ok)
	assert.Equal(t, 30*time.Second, server.Timeout)
	assert.Equal(t, "killed after 30s", result.Outcomes["server.py"].Detail)

	cli, ok := runner.spec("cli.py")
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, cli.Timeout)
}

func TestTraceTarget_Timeout(t *testing.T) {
	cfg := m.TraceConfig{Timeout: 10 * time.Second, BootTimeout: 15 * time.Second}

	assert.Equal(t, 15*time.Second, TraceTarget{Role: m.EntryBoot}.Timeout(cfg))
	assert.Equal(t, 10*time.Second, TraceTarget{Role: m.EntryDriver}.Timeout(cfg))
	assert.Equal(t, 10*time.Second, TraceTarget{}.Timeout(cfg))

	cfg.BootTimeout = 0
	assert.Equal(t, 10*time.Second, TraceTarget{Role: m.EntryBoot}.Timeout(cfg))
}

func TestHarness_SkipsUnsafeEntrypointsInFullMode(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"ask.py":   "name = input('name? ')\n",
		"quiet.py": "print('hi')\n",
	})

	runner := newFakeRunner(map[string]scriptedRun{"quiet.py": {}})

	cfg := traceConfig()
	cfg.Trace.Mode = m.TraceModeFull

	entries := []m.Path{"ask.py", "quiet.py"}

	result, err := fakeHarness(runner).Trace(t.Context(), root, targets(entries...), nodes(entries...), cfg, &MemorySink{})
	require.NoError(t, err)

	assert.Equal(t, m.TraceSkipped, result.Outcomes["ask.py"].Status)
	assert.Equal(t, "reads standard input", result.Outcomes["ask.py"].Detail)
	assert.Equal(t, m.TraceCompleted, result.Outcomes["quiet.py"].Status)
	assert.Equal(t, m.SourceOK, result.Status)

	_, ran := runner.spec("ask.py")
	assert.False(t, ran)
}

func TestHarness_MissingEnvFileDegradesOnlyDetail(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"main.py": ""})

	cfg := traceConfig()
	cfg.Trace.EnvFile = "missing.env"

	result, err := fakeHarness(newFakeRunner(map[string]scriptedRun{"main.py": {}})).
		Trace(t.Context(), root, targets("main.py"), nodes("main.py"), cfg, &MemorySink{})
	require.NoError(t, err)

	assert.Equal(t, m.TraceCompleted, result.Outcomes["main.py"].Status)
	assert.Contains(t, result.Detail, "missing.env")
}

func TestHarness_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	result, err := fakeHarness(newFakeRunner(nil)).
		Trace(ctx, t.TempDir(), targets("main.py"), nodes("main.py"), traceConfig(), &MemorySink{})
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, m.TraceCancelled, result.Outcomes["main.py"].Status)
}

func TestSkipReason(t *testing.T) {
	python := m.FileNode{Path: "x.py", Language: m.LanguagePython}

	tests := []struct {
		name    string
		file    m.FileNode
		content string
		mode    m.TraceMode
		want    string
	}{
		{"go entrypoint", m.FileNode{Path: "main.go", Language: m.LanguageGo}, "", m.TraceModeAuto, "unsupported language"},
		{"auto mode ignores input", python, "input()", m.TraceModeAuto, ""},
		{"stdin", python, "data = sys.stdin.read()", m.TraceModeFull, "reads standard input"},
		{"positional argv", python, "path = sys.argv[1]", m.TraceModeFull, "reads positional sys.argv"},
		{"argv zero is fine", python, "prog = sys.argv[0]", m.TraceModeFull, ""},
		{"required option", python, `p.add_argument("--db", required=True)`, m.TraceModeFull, "declares required options"},
		{"positional argument", python, `p.add_argument("target")`, m.TraceModeFull, "declares required argument target"},
		{"optional positional", python, `p.add_argument('target', nargs="?")`, m.TraceModeFull, ""},
		{"flag", python, `p.add_argument("--verbose", action="store_true")`, m.TraceModeFull, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SkipReason(tt.file, []byte(tt.content), tt.mode))
		})
	}
}

func TestHarness_RealInterpreter(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a child interpreter")
	}

	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":   "import helper\n\ndef run():\n    import lazy\n",
		"helper.py": "VALUE = 1\n",
		"lazy.py":   "",
	})

	files := nodes("helper.py", "lazy.py", "main.py")
	sink := &MemorySink{}

	h := NewHarness(adapter.NewLocalSourceFSAdapter(), adapter.NewLocalProcessRunnerAdapter())

	cfg := traceConfig()
	cfg.Trace.Timeout = 20 * time.Second

	result, err := h.Trace(t.Context(), root, targets("main.py"), files, cfg, sink)
	require.NoError(t, err)

	assert.Equal(t, m.TraceCompleted, result.Outcomes["main.py"].Status, result.Outcomes["main.py"].Detail)
	assert.Equal(t, [][2]m.Path{{"main.py", "helper.py"}}, edgeSet(sink.Items(), m.EdgeRuntime))
}
