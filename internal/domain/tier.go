package domain

import (
	"sort"

	m "rie.dev/pkg/rie/internal/model"
)

// genericNames never count as shadowing: every package has one.
var genericNames = setOf("", "__init__", "__main__", "main", "setup", "conftest", "manage",
	"wsgi", "asgi", "index", "app", "doc", "version", "constants", "types")

// TierResult is the classification of every file.
type TierResult struct {
	Tiers map[m.Path]m.Tier
	// Shadows maps a non-core file to the core file whose importable name it repeats.
	Shadows map[m.Path]m.Path
}

// ClassifyTiers applies the decision table in order: core (reachable from an engine-scope
// candidate), periphery (outside engine scope or periphery domain), shadow (legacy naming,
// archive path or shadowing), periphery (any remaining evidence), ghost.
// Node Tier and Reason fields are set in place.
func ClassifyTiers(g *m.Graph, candidates []m.Candidate, domains *DomainResolver, cfg m.Config) TierResult {
	var roots []m.Path

	for _, c := range candidates {
		if c.EngineScope {
			roots = append(roots, c.Path)
		}
	}

	core := make(map[m.Path]bool)
	for _, p := range NewGraphIndex(*g).Reach(roots...) {
		core[p] = true
	}

	activeNames := make(map[string]m.Path)

	for _, n := range g.Nodes {
		if !core[n.Path] || !n.IsSource() {
			continue
		}

		name := ImportableName(n.Path)
		if genericNames[name] {
			continue
		}

		if _, ok := activeNames[name]; !ok {
			activeNames[name] = n.Path
		}
	}

	result := TierResult{Tiers: make(map[m.Path]m.Tier, len(g.Nodes)), Shadows: make(map[m.Path]m.Path)}

	for i := range g.Nodes {
		n := &g.Nodes[i]

		if !core[n.Path] && n.IsSource() {
			if active, ok := activeNames[ImportableName(n.Path)]; ok {
				result.Shadows[n.Path] = active
			}
		}

		n.Tier, n.Reason = decideTier(*n, core[n.Path], result.Shadows[n.Path], domains, cfg)
		result.Tiers[n.Path] = n.Tier
	}

	return result
}

func decideTier(n m.FileNode, core bool, shadows m.Path, domains *DomainResolver, cfg m.Config) (m.Tier, string) {
	switch {
	case core:
		return m.TierCore, "reachable from an engine-scope entrypoint"
	case !InEngineScope(n.Path, cfg.EngineRoots):
		return m.TierPeriphery, "outside engine scope"
	case domains.Periphery(n.Domain):
		return m.TierPeriphery, "periphery domain " + n.Domain
	case HasLegacyName(n.Path):
		return m.TierShadow, "legacy naming"
	case IsArchived(n.Path, cfg.ArchivePaths):
		return m.TierShadow, "inside archive path"
	case shadows != "":
		return m.TierShadow, "shadows active module " + string(shadows)
	case n.Flags.Has(m.FlagRuntimeTraced):
		return m.TierPeriphery, "runtime traced but unreachable from entrypoints"
	case n.Flags.Has(m.FlagStaticallyImported):
		return m.TierPeriphery, "imported only by unreachable code"
	case n.Flags.Has(m.FlagTextReferenced):
		return m.TierPeriphery, "text reference only"
	}

	return m.TierGhost, "no evidence"
}

// SortViolations orders violations by kind, then by their file list.
func SortViolations(vs []m.Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Kind != vs[j].Kind {
			return vs[i].Kind < vs[j].Kind
		}

		a, b := vs[i].Files, vs[j].Files
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}

		return len(a) < len(b)
	})
}
