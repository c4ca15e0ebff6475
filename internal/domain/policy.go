package domain

import (
	"fmt"
	"sort"

	m "rie.dev/pkg/rie/internal/model"
)

// runtimeSegments mark a runtime module whose direct use from a test is an error rather
// than a warning.
var runtimeSegments = map[string]bool{"core": true, "engine": true, "runtime": true}

// PolicyViolations derives shadowing, archive and test coupling findings from a classified
// graph and merges them with the boundary violations of the surface resolver. The result
// is sorted.
func PolicyViolations(g m.Graph, tiers TierResult, boundary []m.Violation, cfg m.Config) []m.Violation {
	out := append([]m.Violation(nil), boundary...)

	shadows := make([]m.Path, 0, len(tiers.Shadows))
	for p := range tiers.Shadows {
		shadows = append(shadows, p)
	}

	sort.Slice(shadows, func(i, j int) bool { return shadows[i] < shadows[j] })

	for _, p := range shadows {
		active := tiers.Shadows[p]
		out = append(out, m.Violation{
			Kind:   m.ViolationShadowing,
			Files:  []m.Path{p, active},
			Detail: fmt.Sprintf("%s repeats module name %q of core file %s", p, ImportableName(p), active),
		})
	}

	for _, n := range g.Nodes {
		if !IsArchived(n.Path, cfg.ArchivePaths) {
			continue
		}

		switch {
		case n.Tier == m.TierCore:
			out = append(out, m.Violation{
				Kind:   m.ViolationArchiveDrift,
				Files:  []m.Path{n.Path},
				Detail: fmt.Sprintf("%s is in an archive path but reachable from an entrypoint", n.Path),
			})
		case n.Flags.Has(m.FlagRuntimeTraced):
			out = append(out, m.Violation{
				Kind:   m.ViolationArchiveDrift,
				Files:  []m.Path{n.Path},
				Detail: fmt.Sprintf("%s is in an archive path but was loaded at runtime", n.Path),
			})
		}
	}

	out = append(out, archiveImports(g, cfg.ArchivePaths)...)
	out = append(out, testRuntimeImports(g, cfg.ArchivePaths)...)

	SortViolations(out)

	return out
}

// archiveImports flags live edges from code outside every archive path into one.
func archiveImports(g m.Graph, archivePaths []string) []m.Violation {
	var out []m.Violation

	seen := make(map[[2]m.Path]bool)

	for _, e := range g.Edges {
		if !e.Kind.Live() || seen[[2]m.Path{e.From, e.To}] {
			continue
		}

		if IsArchived(e.From, archivePaths) || !IsArchived(e.To, archivePaths) {
			continue
		}

		seen[[2]m.Path{e.From, e.To}] = true
		out = append(out, m.Violation{
			Kind:   m.ViolationArchiveImport,
			Files:  []m.Path{e.From, e.To},
			Detail: fmt.Sprintf("%s imports archived file %s", e.From, e.To),
		})
	}

	return out
}

// testRuntimeImports flags tests importing runtime modules directly. Modules under a core,
// engine or runtime directory are errors; anything else is a warning.
func testRuntimeImports(g m.Graph, archivePaths []string) []m.Violation {
	var out []m.Violation

	for _, e := range g.Edges {
		if e.Kind != m.EdgeStatic {
			continue
		}

		from, ok := g.Node(e.From)
		if !ok || from.Role != m.RoleTest {
			continue
		}

		to, ok := g.Node(e.To)
		if !ok || !to.IsSource() || to.Role == m.RoleTest || IsArchived(to.Path, archivePaths) {
			continue
		}

		severity := m.SeverityWarn

		for _, seg := range to.Path.Segments() {
			if runtimeSegments[seg] {
				severity = m.SeverityError
				break
			}
		}

		out = append(out, m.Violation{
			Kind:     m.ViolationTestRuntime,
			Files:    []m.Path{e.From, e.To},
			Detail:   fmt.Sprintf("%s imports runtime module %s; isolate it behind an interface", e.From, e.To),
			Severity: severity,
		})
	}

	return out
}
