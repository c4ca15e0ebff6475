package domain

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	m "rie.dev/pkg/rie/internal/model"
)

// Surface detection thresholds.
const (
	MinSurfaceSources = 3
	SplitSurfaceFiles = 20
	MinSplitChildren  = 2
)

// SurfaceResult is the partition of the graph into surfaces.
type SurfaceResult struct {
	Surfaces   []m.Surface
	Cross      []m.CrossSurfaceEdge
	Violations []m.Violation
}

// InEngineScope reports whether p lies under an engine root. No roots means everything is
// in scope.
func InEngineScope(p m.Path, roots []m.Path) bool {
	if len(roots) == 0 {
		return true
	}

	for _, r := range roots {
		if p.Within(r) {
			return true
		}
	}

	return false
}

// ResolveSurfaces assigns every node of g to exactly one surface (longest matching root),
// counts cross-surface live edges and reports disallowed ones as boundary violations.
func ResolveSurfaces(g *m.Graph, cfg m.Config) SurfaceResult {
	surfaces := detectSurfaces(g.Nodes, cfg.Surfaces)

	// Longest root first so the deepest surface claims a file.
	byDepth := append([]m.Surface(nil), surfaces...)
	sort.SliceStable(byDepth, func(i, j int) bool { return len(byDepth[i].Root) > len(byDepth[j].Root) })

	stats := make(map[string]*m.Surface, len(surfaces)+1)
	for i := range surfaces {
		stats[surfaces[i].Name] = &surfaces[i]
	}

	root := m.Surface{Name: m.RootSurface, Root: "."}

	for i := range g.Nodes {
		node := &g.Nodes[i]
		node.Surface = m.RootSurface

		for _, s := range byDepth {
			if node.Path.Within(s.Root) {
				node.Surface = s.Name
				break
			}
		}

		target := stats[node.Surface]
		if target == nil {
			target = &root
		}

		target.FileCount++

		if node.Flags.Has(m.FlagRuntimeTraced) {
			target.TracedCount++
		}

		if InEngineScope(node.Path, cfg.EngineRoots) {
			target.EngineScope = true
		}
	}

	if root.FileCount > 0 {
		surfaces = append(surfaces, root)
	}

	// The append may have reallocated.
	for i := range surfaces {
		stats[surfaces[i].Name] = &surfaces[i]
	}

	warnUnknownAllow(cfg.Allow, stats)

	cross, violations := crossSurface(g, cfg, stats)

	sort.Slice(surfaces, func(i, j int) bool { return surfaces[i].Name < surfaces[j].Name })

	return SurfaceResult{Surfaces: surfaces, Cross: cross, Violations: violations}
}

func detectSurfaces(nodes []m.FileNode, declared []m.SurfaceDecl) []m.Surface {
	var surfaces []m.Surface

	names := make(map[string]bool)
	roots := make(map[m.Path]bool)

	for _, d := range declared {
		surfaces = append(surfaces, m.Surface{Name: d.Name, Root: d.Root, Configured: true})
		names[d.Name] = true
		roots[d.Root] = true
	}

	var auto []m.Path

	for dir, count := range sourceCountByChild(nodes, ".") {
		if count >= MinSurfaceSources {
			auto = append(auto, dir)
		}
	}

	sort.Slice(auto, func(i, j int) bool { return auto[i] < auto[j] })

	for len(auto) > 0 {
		dir := auto[0]
		auto = auto[1:]

		if roots[dir] || names[string(dir)] {
			continue
		}

		surfaces = append(surfaces, m.Surface{Name: string(dir), Root: dir})
		names[string(dir)] = true
		roots[dir] = true

		auto = append(auto, splitChildren(nodes, dir)...)
	}

	return surfaces
}

// splitChildren returns the child directories a large surface splits into, or nil.
func splitChildren(nodes []m.FileNode, dir m.Path) []m.Path {
	files := 0

	for _, n := range nodes {
		if n.Path.Within(dir) {
			files++
		}
	}

	if files < SplitSurfaceFiles {
		return nil
	}

	var children []m.Path

	for child, count := range sourceCountByChild(nodes, dir) {
		if count >= MinSurfaceSources {
			children = append(children, child)
		}
	}

	if len(children) < MinSplitChildren {
		return nil
	}

	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })

	slog.Debug("splitting surface", "root", dir, "children", children)

	return children
}

// sourceCountByChild counts source files per immediate child directory of dir.
func sourceCountByChild(nodes []m.FileNode, dir m.Path) map[m.Path]int {
	counts := make(map[m.Path]int)

	prefix := ""
	if dir != "." {
		prefix = string(dir) + "/"
	}

	for _, n := range nodes {
		if !n.IsSource() || !strings.HasPrefix(string(n.Path), prefix) {
			continue
		}

		rest := strings.TrimPrefix(string(n.Path), prefix)

		i := strings.Index(rest, "/")
		if i < 0 {
			continue
		}

		counts[m.Path(prefix+rest[:i])]++
	}

	return counts
}

func warnUnknownAllow(allow []m.SurfacePair, known map[string]*m.Surface) {
	for _, a := range allow {
		for _, name := range []string{a.From, a.To} {
			if _, ok := known[name]; !ok {
				slog.Warn("cross-surface allow rule names an unknown surface", "surface", name)
			}
		}
	}
}

func crossSurface(g *m.Graph, cfg m.Config, stats map[string]*m.Surface) ([]m.CrossSurfaceEdge, []m.Violation) {
	allowed := make(map[m.SurfacePair]bool, len(cfg.Allow))
	for _, a := range cfg.Allow {
		allowed[a] = true
	}

	counts := make(map[m.SurfacePair]int)
	pairs := make(map[[2]m.Path]bool)

	var violations []m.Violation

	for _, e := range g.Edges {
		if !e.Kind.Live() {
			continue
		}

		from, _ := g.Node(e.From)
		to, _ := g.Node(e.To)

		if from.Surface == to.Surface {
			continue
		}

		pair := m.SurfacePair{From: from.Surface, To: to.Surface}
		key := [2]m.Path{e.From, e.To}

		if pairs[key] {
			continue
		}

		pairs[key] = true
		counts[pair]++
		stats[pair.From].CrossOut++
		stats[pair.To].CrossIn++

		if allowed[pair] || !InEngineScope(e.From, cfg.EngineRoots) || !InEngineScope(e.To, cfg.EngineRoots) {
			continue
		}

		violations = append(violations, m.Violation{
			Kind:        m.ViolationBoundary,
			Files:       []m.Path{e.From, e.To},
			Detail:      fmt.Sprintf("%s imports %s across surfaces %s -> %s", e.From, e.To, pair.From, pair.To),
			FromSurface: pair.From,
			ToSurface:   pair.To,
		})
	}

	cross := make([]m.CrossSurfaceEdge, 0, len(counts))
	for pair, n := range counts {
		cross = append(cross, m.CrossSurfaceEdge{From: pair.From, To: pair.To, Count: n})
	}

	sort.Slice(cross, func(i, j int) bool {
		if cross[i].From != cross[j].From {
			return cross[i].From < cross[j].From
		}

		return cross[i].To < cross[j].To
	})

	return cross, violations
}
