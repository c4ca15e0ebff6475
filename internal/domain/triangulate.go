package domain

import (
	m "rie.dev/pkg/rie/internal/model"
)

// Triangulate selects up to k engine-scope candidates by greedy set cover. Each step picks
// the candidate adding the most uncovered files; ties go to the higher composite, then the
// smaller path. Selection stops at k picks or when no candidate adds anything.
// It has no side effects and does not modify candidates.
func Triangulate(candidates []m.Candidate, k int) ([]m.Pick, map[m.Path]bool) {
	covered := make(map[m.Path]bool)
	chosen := make(map[m.Path]bool)

	var picks []m.Pick

	for len(picks) < k {
		best := -1
		bestGain := 0

		for i, c := range candidates {
			if !c.EngineScope || chosen[c.Path] {
				continue
			}

			gain := 0

			for _, p := range c.Covered {
				if !covered[p] {
					gain++
				}
			}

			if gain == 0 {
				continue
			}

			if best < 0 || better(gain, c, bestGain, candidates[best]) {
				best = i
				bestGain = gain
			}
		}

		if best < 0 {
			break
		}

		winner := candidates[best]
		chosen[winner.Path] = true

		for _, p := range winner.Covered {
			covered[p] = true
		}

		picks = append(picks, m.Pick{Path: winner.Path, Gain: bestGain, Composite: winner.Composite, Total: len(covered)})
	}

	return picks, covered
}

func better(gain int, c m.Candidate, bestGain int, best m.Candidate) bool {
	if gain != bestGain {
		return gain > bestGain
	}

	if c.Composite != best.Composite {
		return c.Composite > best.Composite
	}

	return c.Path < best.Path
}

// ApplyCoverage fills the per-surface activity and coverage metrics. A file is active when
// it is statically imported, runtime traced or itself a candidate.
func ApplyCoverage(g m.Graph, surfaces []m.Surface, candidates []m.Candidate, covered map[m.Path]bool) map[string]float64 {
	isCandidate := make(map[m.Path]bool, len(candidates))
	for _, c := range candidates {
		isCandidate[c.Path] = true
	}

	index := make(map[string]int, len(surfaces))
	for i := range surfaces {
		index[surfaces[i].Name] = i
		surfaces[i].ActiveCount = 0
		surfaces[i].Covered = 0
	}

	for _, n := range g.Nodes {
		i, ok := index[n.Surface]
		if !ok {
			continue
		}

		if n.Flags.Any(m.FlagStaticallyImported|m.FlagRuntimeTraced) || isCandidate[n.Path] {
			surfaces[i].ActiveCount++

			if covered[n.Path] {
				surfaces[i].Covered++
			}
		}
	}

	coverage := make(map[string]float64, len(surfaces))

	for i := range surfaces {
		surfaces[i].Coverage = ratio(surfaces[i].Covered, surfaces[i].ActiveCount)
		coverage[surfaces[i].Name] = surfaces[i].Coverage
	}

	return coverage
}
