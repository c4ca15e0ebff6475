package model

// EdgeKind names the evidence source of an edge.
type EdgeKind string

// Edge kinds in their canonical sort order.
const (
	EdgeStatic  EdgeKind = "static"
	EdgeRuntime EdgeKind = "runtime"
	EdgeText    EdgeKind = "text"
)

// Edge weights by kind. Text edges carry their own weight, capped by MaxTextWeight.
const (
	StaticWeight  = 1.0
	RuntimeWeight = 1.0
	MaxTextWeight = 0.5
)

// Live reports whether the edge kind propagates reachability.
func (k EdgeKind) Live() bool {
	return k == EdgeStatic || k == EdgeRuntime
}

// Edge is a directed reference from one file to another.
type Edge struct {
	From   Path     `json:"from"`
	To     Path     `json:"to"`
	Kind   EdgeKind `json:"kind"`
	Weight float64  `json:"weight"`
}

// Graph is the fused dependency graph. Nodes are sorted by path and edges by (from, to, kind).
type Graph struct {
	Nodes []FileNode `json:"nodes"`
	Edges []Edge     `json:"edges"`
}

// Node returns the node stored for p.
func (g *Graph) Node(p Path) (FileNode, bool) {
	i, ok := g.index(p)
	if !ok {
		return FileNode{}, false
	}

	return g.Nodes[i], true
}

// NodeRef returns a pointer into the node slice so the finalizing stages can annotate it.
func (g *Graph) NodeRef(p Path) *FileNode {
	i, ok := g.index(p)
	if !ok {
		return nil
	}

	return &g.Nodes[i]
}

func (g *Graph) index(p Path) (int, bool) {
	lo, hi := 0, len(g.Nodes)
	for lo < hi {
		mid := (lo + hi) / 2
		if g.Nodes[mid].Path < p {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo < len(g.Nodes) && g.Nodes[lo].Path == p {
		return lo, true
	}

	return 0, false
}

// Paths returns the node paths in sorted order.
func (g *Graph) Paths() []Path {
	out := make([]Path, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Path
	}

	return out
}
