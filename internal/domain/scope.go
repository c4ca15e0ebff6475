package domain

import (
	"log/slog"
	"sort"

	m "rie.dev/pkg/rie/internal/model"
)

// scopeSkipDirs never become an inferred engine scope.
var scopeSkipDirs = map[string]bool{
	"docs": true, "doc": true, "tests": true, "test": true, "reports": true, "examples": true,
}

// ScopeScore ranks a top-level folder as the engine of a repository.
type ScopeScore struct {
	Root  m.Path
	Score int
}

// InferScopes ranks top-level folders by 3 points per runtime traced source file plus one
// per source file with any live evidence. Archived, test and documentation folders are skipped.
func InferScopes(g m.Graph, archivePaths []string) []ScopeScore {
	scores := make(map[m.Path]int)

	for _, n := range g.Nodes {
		segs := n.Path.Segments()
		if len(segs) < 2 || !n.IsSource() || n.Role == m.RoleTest {
			continue
		}

		if scopeSkipDirs[segs[0]] || IsArchived(n.Path, archivePaths) {
			continue
		}

		top := m.Path(segs[0])

		if n.Flags.Has(m.FlagRuntimeTraced) {
			scores[top] += 3
		}

		if n.Flags.Any(m.FlagRuntimeTraced | m.FlagStaticallyImported | m.FlagHasMainGuard) {
			scores[top]++
		}
	}

	out := make([]ScopeScore, 0, len(scores))
	for root, score := range scores {
		out = append(out, ScopeScore{Root: root, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}

		return out[i].Root < out[j].Root
	})

	return out
}

// ResolveScope turns the scan target into engine roots. Auto keeps the configured roots;
// global drops them; engine falls back to the best inferred folder when none are
// configured; any other target is a folder that becomes the only root.
func ResolveScope(g m.Graph, cfg m.Config) m.Scope {
	target := cfg.Target
	if target == "" {
		target = m.TargetAuto
	}

	scope := m.Scope{Target: target}

	switch target {
	case m.TargetAuto:
		scope.Roots = cfg.EngineRoots
	case m.TargetGlobal:
	case m.TargetEngine:
		if len(cfg.EngineRoots) > 0 {
			scope.Roots = cfg.EngineRoots
			break
		}

		inferred := InferScopes(g, cfg.ArchivePaths)
		if len(inferred) == 0 {
			slog.Warn("no engine folder could be inferred, scanning the whole repository")
			break
		}

		scope.Roots = []m.Path{inferred[0].Root}
		scope.Inferred = true

		slog.Info("inferred engine scope", "root", inferred[0].Root, "score", inferred[0].Score)
	default:
		scope.Roots = []m.Path{cfg.TargetFolder()}
	}

	return scope
}

// checkTarget fails when a folder target holds no inventoried file.
func checkTarget(files []m.FileNode, cfg m.Config) error {
	folder := cfg.TargetFolder()
	if folder == "" {
		return nil
	}

	for _, f := range files {
		if f.Path.Within(folder) {
			return nil
		}
	}

	return &m.ConfigurationError{Field: "scan.target", Reason: "no files under " + string(folder)}
}
