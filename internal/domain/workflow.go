package domain

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"rie.dev/pkg/rie/internal/adapter"
	"rie.dev/pkg/rie/internal/controller"
	m "rie.dev/pkg/rie/internal/model"
)

// DefaultArtifactPath is where scan writes and the other commands read the artifact.
const DefaultArtifactPath = ".rie/artifact.json"

// ScanArgs contains the arguments for the scan phase.
type ScanArgs struct {
	RepoRoot string
	Config   m.Config
	// Output is the artifact path; DefaultArtifactPath when empty.
	Output string
}

// ShowArgs names a stored artifact.
type ShowArgs struct {
	Artifact string
}

// PruneArgs names a stored artifact and where to write the cleanup script.
type PruneArgs struct {
	Artifact string
	// Script is written only when set; rie never runs it.
	Script string
}

// DiffArgs names two artifacts to compare.
type DiffArgs struct {
	Older string
	Newer string
}

// Workflow runs the read-only scan phase and the mutating act phase.
type Workflow interface {
	Scan(ctx context.Context, args ScanArgs) (m.Artifact, error)
	Show(ctx context.Context, args ShowArgs) (m.Artifact, error)
	Entrypoints(ctx context.Context, args ShowArgs) (m.Artifact, error)
	Quarantine(ctx context.Context, args QuarantineArgs) (m.ActionReport, error)
	Restore(ctx context.Context, args RestoreArgs) (m.ActionReport, error)
	Diff(ctx context.Context, args DiffArgs) (TierDiff, error)
	Prune(ctx context.Context, args PruneArgs) (m.PrunePlan, error)
}

type workflow struct {
	adapter.ArtifactStore
	adapter.SourceFSAdapter
	adapter.ManifestAdapter
	controller.UI

	inventory   Inventory
	analyzer    StaticAnalyzer
	text        TextScanner
	harness     Harness
	quarantiner Quarantiner
	now         func() time.Time
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	artifactStore adapter.ArtifactStore,
	manifests adapter.ManifestAdapter,
	ui controller.UI,
	analyzer StaticAnalyzer,
	harness Harness,
) Workflow {
	return &workflow{
		ArtifactStore:   artifactStore,
		SourceFSAdapter: fsAdapter,
		ManifestAdapter: manifests,
		UI:              ui,
		inventory:       NewInventory(fsAdapter),
		analyzer:        analyzer,
		text:            NewTextScanner(fsAdapter),
		harness:         harness,
		quarantiner:     NewQuarantiner(fsAdapter),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// collected holds the output of every evidence producer.
type collected struct {
	static  StaticResult
	text    TextResult
	trace   TraceResult
	reasons map[m.Path][]m.CandidateReason
	roles   map[m.Path]m.EntryRole
}

// Scan builds the artifact for a repository. The configuration is validated before any
// repository I/O. Evidence producers append to a spill that is removed once the graph is
// built; when the scan is cancelled the spill is kept and returned in a ScanAborted error.
func (w *workflow) Scan(ctx context.Context, args ScanArgs) (m.Artifact, error) {
	cfg := args.Config
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return m.Artifact{}, err
	}

	root, err := filepath.Abs(args.RepoRoot)
	if err != nil {
		return m.Artifact{}, fmt.Errorf("%w: %w", m.ErrRepositoryUnreadable, err)
	}

	info, err := w.FileInfo(root)
	if err != nil || !info.IsDir() {
		slog.Error("repository root is not a readable directory", "path", root, "error", err)
		return m.Artifact{}, fmt.Errorf("%w: %s", m.ErrRepositoryUnreadable, root)
	}

	if err := w.Start(ctx, controller.WithScanMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return m.Artifact{}, err
	}
	defer w.Close(ctx)

	w.DisplayStage(ctx, "inventory", root)

	files, err := w.inventory.Files(root, cfg)
	if err != nil {
		return m.Artifact{}, err
	}

	if err := checkTarget(files, cfg); err != nil {
		slog.Error("invalid scan target", "error", err)
		return m.Artifact{}, err
	}

	sink, err := NewSpillSink("")
	if err != nil {
		return m.Artifact{}, fmt.Errorf("failed to create evidence spill: %w", err)
	}

	evidence, err := w.collect(ctx, root, files, cfg, sink)
	if err != nil {
		_ = sink.Close()

		if ctx.Err() != nil {
			slog.Warn("scan cancelled, keeping partial evidence", "spill", sink.Path())
			return m.Artifact{}, &m.ScanAborted{SpillPath: sink.Path(), Err: err}
		}

		_ = sink.Remove()

		return m.Artifact{}, err
	}

	if err := sink.Close(); err != nil {
		return m.Artifact{}, fmt.Errorf("failed to close evidence spill: %w", err)
	}

	w.DisplayStage(ctx, "graph", fmt.Sprintf("%d files", len(files)))

	artifact, err := w.finalize(root, files, cfg, sink, evidence)
	if err != nil {
		_ = sink.Remove()
		return m.Artifact{}, err
	}

	output := args.Output
	if output == "" {
		output = DefaultArtifactPath
	}

	if err := w.Save(output, artifact); err != nil {
		return m.Artifact{}, err
	}

	if err := sink.Remove(); err != nil {
		slog.Warn("failed to remove evidence spill", "path", sink.Path(), "error", err)
	}

	if err := w.DisplayScanSummary(ctx, artifact); err != nil {
		slog.Error("Failed to display scan summary", "error", err)
		return artifact, fmt.Errorf("display: %w", err)
	}

	return artifact, nil
}

// collect runs the static analyzer and text scanner concurrently, then traces the
// candidates they reveal. Every producer writes to sink.
func (w *workflow) collect(ctx context.Context, root string, files []m.FileNode, cfg m.Config, sink EvidenceSink) (collected, error) {
	var out collected

	w.DisplayStage(ctx, "evidence", "static imports and text references")

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		result, err := w.analyzer.Analyze(groupCtx, root, files, cfg, sink)
		out.static = result

		return err
	})

	group.Go(func() error {
		result, err := w.text.Scan(groupCtx, root, files, cfg, sink)
		out.text = result

		return err
	})

	if err := group.Wait(); err != nil {
		return out, err
	}

	decl, err := w.Declarations(root)
	if err != nil {
		slog.Warn("failed to read manifests", "error", err)
	}

	prelim := m.Graph{Nodes: append([]m.FileNode(nil), files...)}
	for _, p := range out.static.MainGuards {
		if node := prelim.NodeRef(p); node != nil {
			node.Flags |= m.FlagHasMainGuard
		}
	}

	out.reasons = FindCandidates(&prelim, decl, cfg.PackageRoots)
	out.roles = make(map[m.Path]m.EntryRole, len(out.reasons))

	entries := make([]TraceTarget, 0, len(out.reasons))

	for p := range out.reasons {
		node, _ := prelim.Node(p)

		content, err := w.ReadFile(filepath.Join(root, filepath.FromSlash(string(p))))
		if err != nil {
			slog.Warn("failed to read candidate", "path", p, "error", err)
		}

		out.roles[p] = ClassifyRole(node, content, out.static.Imports[p])
		entries = append(entries, TraceTarget{Path: p, Role: out.roles[p]})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	w.DisplayStage(ctx, "trace", fmt.Sprintf("%d candidates", len(entries)))

	out.trace, err = w.harness.Trace(ctx, root, entries, files, cfg, sink)
	if err != nil {
		return out, err
	}

	return out, nil
}

func (w *workflow) finalize(root string, files []m.FileNode, cfg m.Config, spill EvidenceReader, ev collected) (m.Artifact, error) {
	g, err := BuildGraph(files, spill)
	if err != nil {
		return m.Artifact{}, err
	}

	scope := ResolveScope(g, cfg)
	cfg.EngineRoots = scope.Roots

	domains := NewDomainResolver(cfg)
	domains.AssignDomains(&g)

	surfaces := ResolveSurfaces(&g, cfg)

	candidates := ScoreCandidates(g, ScoreInput{
		Reasons:     ev.reasons,
		Roles:       ev.roles,
		Traces:      ev.trace.Outcomes,
		EngineRoots: cfg.EngineRoots,
	})

	for _, c := range candidates {
		score := c.Composite
		g.NodeRef(c.Path).Score = &score
	}

	picks, covered := Triangulate(candidates, cfg.TopK)
	coverage := ApplyCoverage(g, surfaces.Surfaces, candidates, covered)

	tiers := ClassifyTiers(&g, candidates, domains, cfg)
	violations := PolicyViolations(g, tiers, surfaces.Violations, cfg)

	artifact := m.Artifact{
		Version:      m.ArtifactVersion,
		Repo:         root,
		CreatedAt:    w.now(),
		Config:       cfg,
		Scope:        scope,
		Evidence:     evidenceReports(ev),
		Graph:        g,
		Surfaces:     surfaces.Surfaces,
		CrossSurface: surfaces.Cross,
		Candidates:   candidates,
		TracePartial: TracePartial(cfg.Trace.Enabled, candidates),
		Split:        SplitScores(candidates),
		Triangulation: m.Triangulation{
			K:        cfg.TopK,
			Picks:    picks,
			Covered:  len(covered),
			Coverage: coverage,
		},
		Violations:  violations,
		Tiers:       tiers.Tiers,
		Cartography: MapFolders(g, tiers.Tiers),
		External:    ev.static.External,
	}

	slog.Info("scan finished", "files", len(g.Nodes), "edges", len(g.Edges),
		"candidates", len(candidates), "violations", len(violations))

	return artifact, nil
}

func evidenceReports(ev collected) []m.EvidenceReport {
	static := m.EvidenceReport{
		Source:   m.SourceStatic,
		Status:   m.SourceOK,
		Failures: ev.static.Failures,
		Edges:    ev.static.Edges,
	}

	if ev.static.Failures > 0 {
		static.Status = m.SourceDegraded
		static.Detail = fmt.Sprintf("%d files failed to parse", ev.static.Failures)
	}

	runtime := m.EvidenceReport{
		Source: m.SourceRuntime,
		Status: ev.trace.Status,
		Detail: ev.trace.Detail,
		Edges:  ev.trace.Edges,
	}

	for _, o := range ev.trace.Outcomes {
		if o.Status.Partial() {
			runtime.Failures++
		}
	}

	text := m.EvidenceReport{Source: m.SourceText, Status: m.SourceOK, Edges: ev.text.Edges}
	if ev.text.Skipped > 0 {
		text.Detail = fmt.Sprintf("%d files skipped (binary or oversized)", ev.text.Skipped)
	}

	return []m.EvidenceReport{static, runtime, text}
}

// Show displays a stored artifact.
func (w *workflow) Show(ctx context.Context, args ShowArgs) (m.Artifact, error) {
	artifact, err := w.load(args.Artifact)
	if err != nil {
		return m.Artifact{}, err
	}

	if err := w.Start(ctx, controller.WithShowMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return artifact, err
	}

	if err := w.DisplayScanSummary(ctx, artifact); err != nil {
		w.Close(ctx)
		slog.Error("Failed to display scan summary", "error", err)

		return artifact, fmt.Errorf("display: %w", err)
	}

	w.Wait(ctx)
	w.Close(ctx)

	return artifact, nil
}

// Entrypoints displays the ranked candidates and the triangulation of a stored artifact.
func (w *workflow) Entrypoints(ctx context.Context, args ShowArgs) (m.Artifact, error) {
	artifact, err := w.load(args.Artifact)
	if err != nil {
		return m.Artifact{}, err
	}

	if err := w.Start(ctx, controller.WithShowMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return artifact, err
	}

	if err := w.DisplayEntrypoints(ctx, artifact.Candidates, artifact.Triangulation); err != nil {
		w.Close(ctx)
		slog.Error("Failed to display entrypoints", "error", err)

		return artifact, fmt.Errorf("display: %w", err)
	}

	w.Wait(ctx)
	w.Close(ctx)

	return artifact, nil
}

// Quarantine relocates the files of the selected tiers. Tiers and directory fall back to
// the configuration captured in the artifact.
func (w *workflow) Quarantine(ctx context.Context, args QuarantineArgs) (m.ActionReport, error) {
	artifact, err := w.load(args.Artifact)
	if err != nil {
		return m.ActionReport{}, err
	}

	if len(args.Tiers) == 0 {
		args.Tiers = artifact.Config.Quarantine.Tiers
	}

	if args.Dir == "" {
		args.Dir = artifact.Config.Quarantine.Dir
	}

	if args.RepoRoot == "" {
		args.RepoRoot = artifact.Repo
	}

	if err := w.Start(ctx, controller.WithActionMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return m.ActionReport{}, err
	}
	defer w.Close(ctx)

	report, err := w.quarantiner.Quarantine(ctx, artifact, args)
	if err != nil {
		return report, err
	}

	return report, w.DisplayActionReport(ctx, report)
}

// Restore moves committed relocations back using the ledger alone.
func (w *workflow) Restore(ctx context.Context, args RestoreArgs) (m.ActionReport, error) {
	if err := w.Start(ctx, controller.WithActionMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return m.ActionReport{}, err
	}
	defer w.Close(ctx)

	report, err := w.quarantiner.Restore(ctx, args)
	if err != nil {
		return report, err
	}

	return report, w.DisplayActionReport(ctx, report)
}

// Diff compares the tier maps of two artifacts.
func (w *workflow) Diff(ctx context.Context, args DiffArgs) (TierDiff, error) {
	older, err := w.load(args.Older)
	if err != nil {
		return TierDiff{}, err
	}

	newer, err := w.load(args.Newer)
	if err != nil {
		return TierDiff{}, err
	}

	diff, err := DiffTiers(older, newer, args.Older, args.Newer)
	if err != nil {
		return TierDiff{}, err
	}

	if err := w.Start(ctx, controller.WithShowMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return diff, err
	}
	defer w.Close(ctx)

	if err := w.DisplayTierDiff(ctx, diff.Changes, diff.Unified); err != nil {
		return diff, fmt.Errorf("display: %w", err)
	}

	return diff, nil
}

// Prune proposes a cleanup from a stored artifact and optionally writes it as a script.
func (w *workflow) Prune(ctx context.Context, args PruneArgs) (m.PrunePlan, error) {
	artifact, err := w.load(args.Artifact)
	if err != nil {
		return m.PrunePlan{}, err
	}

	plan := PlanPrune(artifact)

	if args.Script != "" {
		if err := w.MkdirAll(filepath.Dir(args.Script)); err != nil {
			return plan, fmt.Errorf("failed to create script directory: %w", err)
		}

		if err := w.WriteFile(args.Script, []byte(PruneScript(artifact.Repo, plan)), 0o755); err != nil {
			return plan, fmt.Errorf("failed to write prune script: %w", err)
		}

		slog.Info("prune script written", "path", args.Script, "files", plan.FilesToRemove(), "moves", len(plan.Moves))
	}

	if err := w.Start(ctx, controller.WithShowMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return plan, err
	}

	if err := w.DisplayPrunePlan(ctx, plan); err != nil {
		w.Close(ctx)
		return plan, fmt.Errorf("display: %w", err)
	}

	w.Wait(ctx)
	w.Close(ctx)

	return plan, nil
}

func (w *workflow) load(path string) (m.Artifact, error) {
	if path == "" {
		path = DefaultArtifactPath
	}

	artifact, err := w.Load(path)
	if err != nil {
		return m.Artifact{}, err
	}

	if artifact.Version != m.ArtifactVersion {
		return m.Artifact{}, fmt.Errorf("unsupported artifact version %d in %s", artifact.Version, path)
	}

	return artifact, nil
}
