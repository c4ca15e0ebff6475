package domain

import (
	"bufio"
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

//go:embed tracedata/rie_trace.py
var tracerPayload []byte

const (
	payloadFileName = "rie_trace.py"
	eventsFileName  = "events.jsonl"
	traceConfigEnv  = "RIE_TRACE_CONFIG"
	// unroutableProxy is a TEST-NET-1 address; anything that honors proxy settings fails fast.
	unroutableProxy = "http://192.0.2.1:9"
)

var (
	stdinRe          = regexp.MustCompile(`\binput\s*\(|sys\.stdin\b`)
	argvIndexRe      = regexp.MustCompile(`sys\.argv\s*\[\s*[1-9]`)
	requiredOptionRe = regexp.MustCompile(`required\s*=\s*True`)
	addArgumentRe    = regexp.MustCompile(`add_argument\(\s*(?:"([^"]*)"|'([^']*)')([^)]*)\)`)
	optionalNargsRe  = regexp.MustCompile(`nargs\s*=\s*["'][?*]["']|default\s*=`)
)

// TraceOutcome is the result of tracing one entrypoint.
type TraceOutcome struct {
	Path    m.Path
	Status  m.TraceStatus
	Detail  string
	Blocked []string
	Events  int
}

// TraceResult summarizes the runtime evidence source.
type TraceResult struct {
	Outcomes map[m.Path]TraceOutcome
	Status   m.SourceStatus
	Detail   string
	Edges    int
}

// TraceTarget is an entrypoint queued for tracing.
type TraceTarget struct {
	Path m.Path
	Role m.EntryRole
}

// Timeout returns the time budget of the target. Boot entrypoints bring up long-lived
// infrastructure and get the boot timeout.
func (t TraceTarget) Timeout(cfg m.TraceConfig) time.Duration {
	if t.Role == m.EntryBoot && cfg.BootTimeout > 0 {
		return cfg.BootTimeout
	}

	return cfg.Timeout
}

// Harness executes entrypoints in isolated child interpreters and records module loads.
type Harness interface {
	Trace(ctx context.Context, repoRoot string, entries []TraceTarget, files []m.FileNode, cfg m.Config, sink EvidenceSink) (TraceResult, error)
}

type harness struct {
	adapter.SourceFSAdapter
	adapter.ProcessRunnerAdapter
	lookPath func(file string) (string, error)
}

// NewHarness creates a Harness running interpreters through the process runner.
func NewHarness(fs adapter.SourceFSAdapter, runner adapter.ProcessRunnerAdapter) Harness {
	return &harness{SourceFSAdapter: fs, ProcessRunnerAdapter: runner, lookPath: exec.LookPath}
}

type traceEvent struct {
	Type   string `json:"type"`
	From   string `json:"from"`
	To     string `json:"to"`
	Event  string `json:"event"`
	Detail string `json:"detail"`
	Code   int    `json:"code"`
}

type payloadConfig struct {
	Repo     string   `json:"repo"`
	Scratch  string   `json:"scratch"`
	Entry    string   `json:"entry"`
	Events   string   `json:"events"`
	Mode     string   `json:"mode"`
	Roots    []string `json:"roots"`
	Writable []string `json:"writable"`
	Hosts    []string `json:"hosts"`
}

func (h *harness) Trace(
	ctx context.Context,
	repoRoot string,
	entries []TraceTarget,
	files []m.FileNode,
	cfg m.Config,
	sink EvidenceSink,
) (TraceResult, error) {
	result := TraceResult{Outcomes: make(map[m.Path]TraceOutcome, len(entries)), Status: m.SourceOK}

	if !cfg.Trace.Enabled {
		result.Status = m.SourceDisabled
		for _, entry := range entries {
			result.Outcomes[entry.Path] = TraceOutcome{Path: entry.Path, Status: m.TraceDisabled}
		}

		return result, nil
	}

	interpreter, err := h.lookPath(cfg.Trace.Interpreter)
	if err != nil {
		slog.Warn("trace interpreter not found", "interpreter", cfg.Trace.Interpreter, "error", err)
		result.Status = m.SourceDegraded
		result.Detail = fmt.Sprintf("interpreter %q not found", cfg.Trace.Interpreter)

		for _, entry := range entries {
			result.Outcomes[entry.Path] = TraceOutcome{Path: entry.Path, Status: m.TraceSkipped, Detail: result.Detail}
		}

		return result, nil
	}

	extraEnv, envErr := h.readEnvFile(repoRoot, cfg.Trace.EnvFile)
	if envErr != nil {
		result.Detail = envErr.Error()
	}

	known := make(map[m.Path]m.FileNode, len(files))
	for _, f := range files {
		known[f.Path] = f
	}

	var mu sync.Mutex

	var group errgroup.Group
	if cfg.Parallel > 0 {
		group.SetLimit(cfg.Parallel)
	}

	for _, entry := range entries {
		current := entry

		group.Go(func() error {
			outcome, edges, err := h.traceOne(ctx, repoRoot, interpreter, current, known, cfg, extraEnv, sink)

			mu.Lock()
			defer mu.Unlock()

			result.Outcomes[current.Path] = outcome
			result.Edges += edges

			return err
		})
	}

	if err := group.Wait(); err != nil {
		return result, err
	}

	var troubled []string

	for _, entry := range entries {
		if o := result.Outcomes[entry.Path]; o.Status.Partial() {
			troubled = append(troubled, fmt.Sprintf("%s: %s", entry.Path, o.Status))
		}
	}

	if len(troubled) > 0 {
		result.Status = m.SourceDegraded
		result.Detail = strings.TrimPrefix(result.Detail+"; "+strings.Join(troubled, ", "), "; ")
	}

	slog.Info("tracing finished", "entries", len(entries), "edges", result.Edges, "status", result.Status)

	return result, ctx.Err()
}

func (h *harness) readEnvFile(repoRoot, envFile string) (map[string]string, error) {
	if envFile == "" {
		return nil, nil
	}

	values, err := godotenv.Read(filepath.Join(repoRoot, filepath.FromSlash(envFile)))
	if err != nil {
		slog.Warn("failed to read trace env file", "path", envFile, "error", err)
		return nil, fmt.Errorf("env file %s unreadable: %w", envFile, err)
	}

	return values, nil
}

// SkipReason returns why an entrypoint cannot be traced safely, or "" if it can.
func SkipReason(file m.FileNode, content []byte, mode m.TraceMode) string {
	if file.Language != m.LanguagePython {
		return "unsupported language"
	}

	if mode != m.TraceModeFull {
		return ""
	}

	switch {
	case stdinRe.Match(content):
		return "reads standard input"
	case argvIndexRe.Match(content):
		return "reads positional sys.argv"
	case requiredOptionRe.Match(content):
		return "declares required options"
	}

	for _, match := range addArgumentRe.FindAllSubmatch(content, -1) {
		name := string(match[1]) + string(match[2])
		if !strings.HasPrefix(name, "-") && !optionalNargsRe.Match(match[3]) {
			return "declares required argument " + name
		}
	}

	return ""
}

func (h *harness) traceOne(
	ctx context.Context,
	repoRoot, interpreter string,
	target TraceTarget,
	known map[m.Path]m.FileNode,
	cfg m.Config,
	extraEnv map[string]string,
	sink EvidenceSink,
) (TraceOutcome, int, error) {
	entry := target.Path
	timeout := target.Timeout(cfg.Trace)
	outcome := TraceOutcome{Path: entry}

	if ctx.Err() != nil {
		outcome.Status = m.TraceCancelled
		return outcome, 0, nil
	}

	file, ok := known[entry]
	if !ok {
		outcome.Status = m.TraceSkipped
		outcome.Detail = "not in inventory"

		return outcome, 0, nil
	}

	content, err := h.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(string(entry))))
	if err != nil {
		outcome.Status = m.TraceSkipped
		outcome.Detail = err.Error()

		return outcome, 0, nil
	}

	if reason := SkipReason(file, content, cfg.Trace.Mode); reason != "" {
		slog.Debug("skipping trace", "entry", entry, "reason", reason)
		outcome.Status = m.TraceSkipped
		outcome.Detail = reason

		return outcome, 0, nil
	}

	scratch, err := h.CreateTempDir("rie-trace-*")
	if err != nil {
		outcome.Status = m.TraceCrashed
		outcome.Detail = err.Error()

		return outcome, 0, nil
	}

	defer func() {
		if err := h.RemoveAll(scratch); err != nil {
			slog.Warn("failed to remove trace scratch", "path", scratch, "error", err)
		}
	}()

	spec, eventsPath, err := h.prepare(repoRoot, scratch, interpreter, entry, timeout, cfg, extraEnv)
	if err != nil {
		outcome.Status = m.TraceCrashed
		outcome.Detail = err.Error()

		return outcome, 0, nil
	}

	slog.Debug("tracing entrypoint", "entry", entry, "role", target.Role, "mode", cfg.Trace.Mode, "timeout", timeout)

	res, err := h.Run(ctx, spec)
	if err != nil {
		outcome.Status = m.TraceCrashed
		outcome.Detail = err.Error()

		return outcome, 0, nil
	}

	switch {
	case res.Cancelled:
		outcome.Status = m.TraceCancelled
	case res.TimedOut:
		outcome.Status = m.TraceTimeout
		outcome.Detail = fmt.Sprintf("killed after %s", timeout)
	case res.ExitCode != 0:
		outcome.Status = m.TraceCrashed
		outcome.Detail = fmt.Sprintf("exit code %d: %s", res.ExitCode, lastLine(res.Output))
	default:
		outcome.Status = m.TraceCompleted
	}

	edges, err := h.collectEvents(eventsPath, entry, known, &outcome, sink)

	return outcome, edges, err
}

func (h *harness) prepare(
	repoRoot, scratch, interpreter string,
	entry m.Path,
	timeout time.Duration,
	cfg m.Config,
	extraEnv map[string]string,
) (adapter.ProcessSpec, string, error) {
	payloadDir := filepath.Join(scratch, "payload")
	home := filepath.Join(scratch, "home")
	tmp := filepath.Join(scratch, "tmp")

	for _, dir := range []string{payloadDir, home, tmp} {
		if err := h.MkdirAll(dir); err != nil {
			return adapter.ProcessSpec{}, "", err
		}
	}

	payloadPath := filepath.Join(payloadDir, payloadFileName)
	if err := h.WriteFile(payloadPath, tracerPayload, 0o644); err != nil {
		return adapter.ProcessSpec{}, "", err
	}

	eventsPath := filepath.Join(scratch, eventsFileName)

	roots := []string{"."}
	for _, r := range cfg.PackageRoots {
		roots = append(roots, string(r))
	}

	pc := payloadConfig{
		Repo:     repoRoot,
		Scratch:  scratch,
		Entry:    string(entry),
		Events:   eventsPath,
		Mode:     string(cfg.Trace.Mode),
		Roots:    roots,
		Writable: append([]string{}, cfg.Trace.WritablePaths...),
		Hosts:    append([]string{}, cfg.Trace.PermittedHosts...),
	}

	encoded, err := json.Marshal(pc)
	if err != nil {
		return adapter.ProcessSpec{}, "", err
	}

	pythonPath := []string{payloadDir}
	for _, r := range roots {
		pythonPath = append(pythonPath, filepath.Join(repoRoot, filepath.FromSlash(r)))
	}

	env := map[string]string{
		"PATH":                       os.Getenv("PATH"),
		"LANG":                       "C.UTF-8",
		"HOME":                       home,
		"TMPDIR":                     tmp,
		"TEMP":                       tmp,
		"TMP":                        tmp,
		"XDG_CONFIG_HOME":            filepath.Join(home, ".config"),
		"XDG_CACHE_HOME":             filepath.Join(home, ".cache"),
		"XDG_DATA_HOME":              filepath.Join(home, ".local", "share"),
		"XDG_STATE_HOME":             filepath.Join(home, ".local", "state"),
		"XDG_RUNTIME_DIR":            tmp,
		"PYTHONDONTWRITEBYTECODE":    "1",
		"PYTHONUNBUFFERED":           "1",
		"PYTHONPATH":                 strings.Join(pythonPath, string(os.PathListSeparator)),
		"http_proxy":                 unroutableProxy,
		"https_proxy":                unroutableProxy,
		"HTTP_PROXY":                 unroutableProxy,
		"HTTPS_PROXY":                unroutableProxy,
		"no_proxy":                   "",
		"DISPLAY":                    "",
		"WAYLAND_DISPLAY":            "",
		"SDL_VIDEODRIVER":            "dummy",
		"QT_QPA_PLATFORM":            "offscreen",
		"MPLBACKEND":                 "Agg",
		"PYGAME_HIDE_SUPPORT_PROMPT": "1",
		"CI":                         "1",
		"RIE_TRACING":                "1",
	}

	for k, v := range extraEnv {
		env[k] = v
	}

	env[traceConfigEnv] = string(encoded)

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}

	return adapter.ProcessSpec{
		Command: interpreter,
		Args:    []string{"-B", payloadPath},
		Dir:     repoRoot,
		Env:     list,
		Timeout: timeout,
	}, eventsPath, nil
}

// collectEvents turns the event log into runtime evidence. A torn final line is ignored.
func (h *harness) collectEvents(
	eventsPath string,
	entry m.Path,
	known map[m.Path]m.FileNode,
	outcome *TraceOutcome,
	sink EvidenceSink,
) (int, error) {
	// #nosec G304 - events file lives in our scratch directory
	data, err := os.ReadFile(eventsPath)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}

	if err != nil {
		slog.Warn("failed to read trace events", "entry", entry, "error", err)
		return 0, nil
	}

	traced := map[m.Path]bool{entry: true}
	edges := make(map[[2]m.Path]bool)

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		var ev traceEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}

		outcome.Events++

		switch ev.Type {
		case "import":
			to := m.Path(ev.To)
			if _, ok := known[to]; !ok {
				continue
			}

			traced[to] = true

			from := m.Path(ev.From)
			if _, ok := known[from]; !ok {
				from = entry
			}

			if from != to {
				edges[[2]m.Path{from, to}] = true
			}
		case "blocked":
			outcome.Blocked = append(outcome.Blocked, ev.Event+" "+ev.Detail)
		case "error":
			if outcome.Detail == "" {
				outcome.Detail = ev.Detail
			}
		}
	}

	pairs := make([][2]m.Path, 0, len(edges))
	for pair := range edges {
		pairs = append(pairs, pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}

		return pairs[i][1] < pairs[j][1]
	})

	for _, pair := range pairs {
		if err := sink.Append(EdgeEvidence(pair[0], pair[1], m.EdgeRuntime, m.RuntimeWeight)); err != nil {
			return 0, err
		}
	}

	paths := make([]m.Path, 0, len(traced))
	for p := range traced {
		paths = append(paths, p)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	for _, p := range paths {
		if err := sink.Append(FlagEvidence(p, m.FlagRuntimeTraced, string(entry))); err != nil {
			return 0, err
		}
	}

	return len(pairs), nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
