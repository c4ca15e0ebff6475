package domain

import (
	"sort"
	"strings"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

// Composite score weights.
const (
	WeightReach      = 0.35
	WeightCentrality = 0.25
	WeightFilename   = 0.15
	WeightRole       = 0.15
	WeightMainGuard  = 0.10
)

var launcherNames = setOf(
	"main.py", "__main__.py", "app.py", "server.py", "run.py", "start.py", "launch.py",
	"manage.py", "wsgi.py", "asgi.py", "cli.py", "main.go",
	"index.js", "main.js", "app.js", "server.js", "start.js", "cli.js",
)

var launcherFragments = []string{"main", "app", "server", "cli", "run"}

// FindCandidates returns every entrypoint candidate with the reasons it qualifies.
// Test files are candidates only when a manifest declares them.
func FindCandidates(g *m.Graph, decl adapter.Declarations, packageRoots []m.Path) map[m.Path][]m.CandidateReason {
	out := make(map[m.Path][]m.CandidateReason)

	declared := make(map[m.Path]bool)
	for _, p := range decl.Paths {
		declared[p] = true
	}

	for _, mod := range decl.Modules {
		if p, ok := resolveDeclaredModule(g, mod, packageRoots); ok {
			declared[p] = true
		}
	}

	for _, n := range g.Nodes {
		var reasons []m.CandidateReason

		if n.Flags.Has(m.FlagHasMainGuard) {
			reasons = append(reasons, m.ReasonMainGuard)
		}

		if launcherNames[n.Path.Base()] {
			reasons = append(reasons, m.ReasonLauncherName)
		}

		if declared[n.Path] {
			reasons = append(reasons, m.ReasonDeclared)
		} else if n.Role == m.RoleTest {
			continue
		}

		if len(reasons) > 0 {
			out[n.Path] = reasons
		}
	}

	return out
}

// resolveDeclaredModule maps a dotted module from a manifest to a file: the module itself,
// or the package's __main__.py for `python -m pkg`.
func resolveDeclaredModule(g *m.Graph, module string, packageRoots []m.Path) (m.Path, bool) {
	rel := m.Path(strings.ReplaceAll(module, ".", "/"))
	roots := append([]m.Path{".", "src"}, packageRoots...)

	for _, root := range roots {
		for _, candidate := range []m.Path{rel + ".py", rel + "/__main__.py", rel + "/__init__.py"} {
			p := joinPath(root, candidate)
			if _, ok := g.Node(p); ok {
				return p, true
			}
		}
	}

	return "", false
}

// FilenameScore rates how much a file name looks like a launcher.
func FilenameScore(p m.Path) float64 {
	if launcherNames[p.Base()] {
		return 1.0
	}

	stem := strings.ToLower(p.Stem())
	for _, frag := range launcherFragments {
		if strings.Contains(stem, frag) {
			return 0.5
		}
	}

	return 0
}

// ScoreInput carries the per-candidate facts gathered by the scan.
type ScoreInput struct {
	Reasons map[m.Path][]m.CandidateReason
	Roles   map[m.Path]m.EntryRole
	Traces  map[m.Path]TraceOutcome
	// EngineRoots bound which candidates may be selected by triangulation.
	EngineRoots []m.Path
}

// ScoreCandidates computes component and composite scores. The static composite uses
// reach and centrality over static edges only, normalized by the same maxima as the full
// composite, so the trace-dependent share is never negative.
func ScoreCandidates(g m.Graph, in ScoreInput) []m.Candidate {
	idx := NewGraphIndex(g)
	degree := idx.OutDegree()
	staticDegree := idx.StaticOutDegree()

	paths := make([]m.Path, 0, len(in.Reasons))
	for p := range in.Reasons {
		paths = append(paths, p)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	reaches := make(map[m.Path][]m.Path, len(paths))
	staticReaches := make(map[m.Path][]m.Path, len(paths))
	maxReach := 0

	for _, p := range paths {
		reaches[p] = idx.Reach(p)
		staticReaches[p] = idx.ReachStatic(p)
		maxReach = max(maxReach, len(reaches[p]))
	}

	out := make([]m.Candidate, 0, len(paths))

	for _, p := range paths {
		node, _ := g.Node(p)
		role := in.Roles[p]

		if role == "" {
			role = m.EntryUnknown
		}

		scores := m.ComponentScores{
			Reach:      ratio(len(reaches[p]), maxReach),
			Centrality: degree[p],
			Filename:   FilenameScore(p),
			Role:       RoleScore(role),
		}

		if node.Flags.Has(m.FlagHasMainGuard) {
			scores.MainGuard = 1
		}

		composite := compositeOf(scores)

		staticScores := scores
		staticScores.Reach = ratio(len(staticReaches[p]), maxReach)
		staticScores.Centrality = staticDegree[p]
		staticComposite := compositeOf(staticScores)

		trace := TraceOutcome{Status: m.TraceDisabled}
		if t, ok := in.Traces[p]; ok {
			trace = t
		}

		out = append(out, m.Candidate{
			Path:            p,
			Reasons:         in.Reasons[p],
			Role:            role,
			Scores:          scores,
			Composite:       composite,
			StaticComposite: staticComposite,
			TraceComposite:  composite - staticComposite,
			EngineScope:     InEngineScope(p, in.EngineRoots),
			Covered:         reaches[p],
			Trace:           trace.Status,
			TraceDetail:     trace.Detail,
			Blocked:         trace.Blocked,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Composite != out[j].Composite {
			return out[i].Composite > out[j].Composite
		}

		return out[i].Path < out[j].Path
	})

	return out
}

// TracePartial reports whether tracing ran and left at least one candidate without a
// completed trace.
func TracePartial(traceEnabled bool, candidates []m.Candidate) bool {
	if !traceEnabled {
		return false
	}

	for _, c := range candidates {
		if c.Trace != m.TraceCompleted {
			return true
		}
	}

	return false
}

// SplitScores sums the static-only and trace-dependent composite contributions.
func SplitScores(candidates []m.Candidate) m.ScoreSplit {
	var split m.ScoreSplit

	for _, c := range candidates {
		split.StaticOnly += c.StaticComposite
		split.TraceDependent += c.TraceComposite
	}

	return split
}

func compositeOf(s m.ComponentScores) float64 {
	return WeightReach*s.Reach +
		WeightCentrality*s.Centrality +
		WeightFilename*s.Filename +
		WeightRole*s.Role +
		WeightMainGuard*s.MainGuard
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}

	return float64(n) / float64(d)
}
