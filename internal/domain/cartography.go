package domain

import (
	"math"
	"sort"

	m "rie.dev/pkg/rie/internal/model"
)

// Evidence points per file when averaging a folder score.
const (
	runtimePoints   = 5
	staticPoints    = 3
	referencePoints = 1
)

// rootCluster labels clusters dominated by top-level files.
const rootCluster = "root"

func isActive(t m.Tier) bool {
	return t == m.TierCore || t == m.TierPeriphery
}

// MapFolders rolls the tiered files up into per-folder health and groups the active files
// into clusters connected by live edges.
func MapFolders(g m.Graph, tiers map[m.Path]m.Tier) m.Cartography {
	return m.Cartography{
		Folders:  folderStats(g, tiers),
		Clusters: activeClusters(g, tiers),
	}
}

func folderStats(g m.Graph, tiers map[m.Path]m.Tier) []m.FolderStats {
	byFolder := make(map[m.Path]*m.FolderStats)
	points := make(map[m.Path]int)

	for _, n := range g.Nodes {
		tier, ok := tiers[n.Path]
		if !ok {
			continue
		}

		dir := n.Path.Dir()

		rec := byFolder[dir]
		if rec == nil {
			rec = &m.FolderStats{Path: dir}
			byFolder[dir] = rec
		}

		rec.Total++

		if isActive(tier) {
			rec.Active++
		} else {
			rec.Legacy++
		}

		if n.Flags.Has(m.FlagRuntimeTraced) {
			rec.Runtime++
			points[dir] += runtimePoints
		}

		if n.Flags.Has(m.FlagStaticallyImported) {
			rec.Static++
			points[dir] += staticPoints
		}

		if n.Flags.Has(m.FlagTextReferenced) {
			rec.Referenced++
			points[dir] += referencePoints
		}
	}

	out := make([]m.FolderStats, 0, len(byFolder))

	for dir, rec := range byFolder {
		rec.ActiveRatio = round(float64(rec.Active)/float64(rec.Total), 2)
		rec.ScoreAvg = round(float64(points[dir])/float64(rec.Total), 1)
		rec.Health = classifyHealth(*rec)
		out = append(out, *rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })

	return out
}

func classifyHealth(rec m.FolderStats) m.FolderHealth {
	switch {
	case rec.Runtime > 0:
		return m.HealthCoreRuntime
	case rec.Active > 0 && rec.Legacy > 0:
		return m.HealthActiveMixed
	case rec.Active > 0:
		return m.HealthFullyActive
	default:
		return m.HealthRemovalCandidate
	}
}

func activeClusters(g m.Graph, tiers map[m.Path]m.Tier) []m.Cluster {
	active := make(map[m.Path]bool)

	for p, t := range tiers {
		if isActive(t) {
			active[p] = true
		}
	}

	adj := make(map[m.Path][]m.Path)

	for _, e := range g.Edges {
		if !e.Kind.Live() || !active[e.From] || !active[e.To] {
			continue
		}

		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}

	starts := make([]m.Path, 0, len(active))
	for p := range active {
		starts = append(starts, p)
	}

	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	visited := make(map[m.Path]bool, len(active))

	var out []m.Cluster

	for _, start := range starts {
		if visited[start] {
			continue
		}

		var members []m.Path

		queue := []m.Path{start}
		visited[start] = true

		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			members = append(members, current)

			for _, next := range adj[current] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}

		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, m.Cluster{Label: clusterLabel(members), Files: members})
	}

	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Files) > len(out[j].Files) })

	return out
}

func clusterLabel(members []m.Path) string {
	counts := make(map[string]int)

	for _, p := range members {
		label := rootCluster
		if segs := p.Segments(); len(segs) > 1 {
			label = segs[0]
		}

		counts[label]++
	}

	best := ""
	for label, n := range counts {
		if n > counts[best] || (n == counts[best] && label < best) {
			best = label
		}
	}

	return best
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
