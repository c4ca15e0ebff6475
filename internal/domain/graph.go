package domain

import (
	"fmt"
	"log/slog"
	"sort"

	m "rie.dev/pkg/rie/internal/model"
)

type edgeKey struct {
	from m.Path
	to   m.Path
	kind m.EdgeKind
}

var kindOrder = map[m.EdgeKind]int{m.EdgeStatic: 0, m.EdgeRuntime: 1, m.EdgeText: 2}

// BuildGraph folds every evidence record into a graph over files. It must only be called
// after all producers have finished. Self edges and edges to unknown files are dropped and
// duplicate (from, to, kind) triples collapse, keeping the highest weight.
func BuildGraph(files []m.FileNode, evidence EvidenceReader) (m.Graph, error) {
	g := m.Graph{Nodes: append([]m.FileNode(nil), files...)}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].Path < g.Nodes[j].Path })

	weights := make(map[edgeKey]float64)
	dropped := 0

	err := evidence.Range(func(_ uint64, ev Evidence) error {
		switch ev.Kind {
		case EvidenceFlag:
			if node := g.NodeRef(ev.To); node != nil {
				node.Flags |= ev.Flag
			}
		case EvidenceEdge:
			if ev.From == ev.To || g.NodeRef(ev.From) == nil || g.NodeRef(ev.To) == nil {
				dropped++
				return nil
			}

			key := edgeKey{from: ev.From, to: ev.To, kind: ev.EdgeKind}
			if w, ok := weights[key]; !ok || ev.Weight > w {
				weights[key] = ev.Weight
			}
		}

		return nil
	})
	if err != nil {
		slog.Error("failed to replay evidence", "error", err)
		return m.Graph{}, fmt.Errorf("failed to replay evidence: %w", err)
	}

	g.Edges = make([]m.Edge, 0, len(weights))
	for key, w := range weights {
		g.Edges = append(g.Edges, m.Edge{From: key.from, To: key.to, Kind: key.kind, Weight: w})

		target := g.NodeRef(key.to)

		switch key.kind {
		case m.EdgeStatic:
			target.Flags |= m.FlagStaticallyImported
		case m.EdgeRuntime:
			target.Flags |= m.FlagRuntimeTraced
		case m.EdgeText:
			target.Flags |= m.FlagTextReferenced
		}
	}

	SortEdges(g.Edges)

	slog.Debug("graph built", "nodes", len(g.Nodes), "edges", len(g.Edges), "dropped", dropped)

	return g, nil
}

// SortEdges orders edges by (from, to, kind).
func SortEdges(edges []m.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.From != b.From {
			return a.From < b.From
		}

		if a.To != b.To {
			return a.To < b.To
		}

		return kindOrder[a.Kind] < kindOrder[b.Kind]
	})
}

// GraphIndex answers reachability and centrality queries over a finished graph.
type GraphIndex struct {
	live   map[m.Path][]m.Path
	static map[m.Path][]m.Path
}

// NewGraphIndex builds adjacency lists for live (static and runtime) and static-only edges.
func NewGraphIndex(g m.Graph) *GraphIndex {
	idx := &GraphIndex{live: make(map[m.Path][]m.Path), static: make(map[m.Path][]m.Path)}

	// Edges are sorted by (from, to), so consecutive duplicates across kinds are adjacent.
	for _, e := range g.Edges {
		if !e.Kind.Live() {
			continue
		}

		if out := idx.live[e.From]; len(out) == 0 || out[len(out)-1] != e.To {
			idx.live[e.From] = append(out, e.To)
		}

		if e.Kind == m.EdgeStatic {
			idx.static[e.From] = append(idx.static[e.From], e.To)
		}
	}

	return idx
}

// Reach returns every file reachable from roots over live edges, roots included, sorted.
func (x *GraphIndex) Reach(roots ...m.Path) []m.Path {
	return reach(x.live, roots)
}

// ReachStatic is Reach restricted to static edges.
func (x *GraphIndex) ReachStatic(roots ...m.Path) []m.Path {
	return reach(x.static, roots)
}

// OutDegree returns live out-degree per file normalized by the maximum, in [0, 1].
func (x *GraphIndex) OutDegree() map[m.Path]float64 {
	out := make(map[m.Path]float64, len(x.live))

	maxDegree := 0
	for _, targets := range x.live {
		maxDegree = max(maxDegree, len(targets))
	}

	if maxDegree == 0 {
		return out
	}

	for p, targets := range x.live {
		out[p] = float64(len(targets)) / float64(maxDegree)
	}

	return out
}

// StaticOutDegree is the static-only out-degree, normalized by the live maximum so it never
// exceeds OutDegree.
func (x *GraphIndex) StaticOutDegree() map[m.Path]float64 {
	out := make(map[m.Path]float64, len(x.static))

	maxDegree := 0
	for _, targets := range x.live {
		maxDegree = max(maxDegree, len(targets))
	}

	if maxDegree == 0 {
		return out
	}

	for p, targets := range x.static {
		out[p] = float64(len(targets)) / float64(maxDegree)
	}

	return out
}

// reach is a visited-set fixed point, so cycles terminate.
func reach(adj map[m.Path][]m.Path, roots []m.Path) []m.Path {
	visited := make(map[m.Path]bool, len(roots))
	queue := make([]m.Path, 0, len(roots))

	for _, r := range roots {
		if !visited[r] {
			visited[r] = true
			queue = append(queue, r)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adj[current] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	out := make([]m.Path, 0, len(visited))
	for p := range visited {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}
