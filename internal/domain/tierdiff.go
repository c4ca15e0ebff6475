package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	m "rie.dev/pkg/rie/internal/model"
)

// TierDiff compares the tier maps of two artifacts.
type TierDiff struct {
	Changes []m.TierChange
	Unified string
}

// DiffTiers returns the per-file changes and a unified diff of "path tier" lines.
func DiffTiers(older, newer m.Artifact, olderName, newerName string) (TierDiff, error) {
	paths := make(map[m.Path]bool, len(older.Tiers)+len(newer.Tiers))
	for p := range older.Tiers {
		paths[p] = true
	}

	for p := range newer.Tiers {
		paths[p] = true
	}

	sorted := make([]m.Path, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var diff TierDiff

	for _, p := range sorted {
		from, to := older.Tiers[p], newer.Tiers[p]
		if from != to {
			diff.Changes = append(diff.Changes, m.TierChange{Path: p, From: from, To: to})
		}
	}

	if len(diff.Changes) == 0 {
		return diff, nil
	}

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        tierLines(older.Tiers),
		B:        tierLines(newer.Tiers),
		FromFile: olderName,
		ToFile:   newerName,
		Context:  1,
	})
	if err != nil {
		return diff, fmt.Errorf("failed to diff tiers: %w", err)
	}

	diff.Unified = unified

	return diff, nil
}

func tierLines(tiers map[m.Path]m.Tier) []string {
	lines := make([]string, 0, len(tiers))
	for p, t := range tiers {
		lines = append(lines, fmt.Sprintf("%s\t%s %s\n", p, t, t.Label()))
	}

	sort.Strings(lines)

	return lines
}

// FormatChange renders a change for plain output.
func FormatChange(c m.TierChange) string {
	from, to := string(c.From), string(c.To)
	if from == "" {
		from = "(absent)"
	}

	if to == "" {
		to = "(absent)"
	}

	return strings.Join([]string{string(c.Path), from, "->", to}, " ")
}
