package domain

import (
	"fmt"
	"sort"
	"strings"

	m "rie.dev/pkg/rie/internal/model"
)

// protectedFolders are never proposed for full removal.
var protectedFolders = map[string]bool{"docs": true, "doc": true, "tests": true, "test": true, "tools": true}

// toolKeywords route archived files moved back into service under tools/.
var toolKeywords = []string{"anim", "rig", "asset", "tool"}

// PlanPrune proposes a cleanup from the tiers of an artifact. Top-level files and folders
// holding a picked entrypoint are left alone.
func PlanPrune(artifact m.Artifact) m.PrunePlan {
	engine := make(map[m.Path]bool, len(artifact.Triangulation.Picks))
	for _, p := range artifact.Triangulation.Picks {
		engine[p.Path] = true
	}

	byFolder := make(map[m.Path][]m.Path)
	for p := range artifact.Tiers {
		byFolder[p.Dir()] = append(byFolder[p.Dir()], p)
	}

	folders := make([]m.Path, 0, len(byFolder))
	for f := range byFolder {
		folders = append(folders, f)
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i] < folders[j] })

	plan := m.PrunePlan{}

	for _, folder := range folders {
		if folder == "." {
			continue
		}

		files := byFolder[folder]
		sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })

		var active, legacy []m.Path

		holdsEngine := false

		for _, f := range files {
			holdsEngine = holdsEngine || engine[f]

			if isActive(artifact.Tiers[f]) {
				active = append(active, f)
			} else {
				legacy = append(legacy, f)
			}
		}

		if holdsEngine {
			continue
		}

		protected := protectedFolders[strings.ToLower(folder.Segments()[0])]

		switch {
		case len(active) == 0 && !protected:
			plan.Removals = append(plan.Removals, m.FolderRemoval{Folder: folder, Files: legacy})
		case len(active) > 0 && len(legacy) > 0:
			plan.Partial = append(plan.Partial, m.PartialPrune{Folder: folder, Remove: legacy, Keep: active})
		}

		for _, f := range active {
			if IsArchived(f, artifact.Config.ArchivePaths) {
				plan.Moves = append(plan.Moves, m.Move{Source: f, Destination: suggestDestination(f), Reason: "active file in archive"})
			}
		}
	}

	return plan
}

// suggestDestination drops the archive segments of p and places it under tools/ or runtime/.
func suggestDestination(p m.Path) m.Path {
	var kept []string

	for _, seg := range p.Segments() {
		if !defaultArchiveSegments[strings.ToLower(seg)] {
			kept = append(kept, seg)
		}
	}

	prefix := "runtime/"

	lower := strings.ToLower(string(p))
	for _, kw := range toolKeywords {
		if strings.Contains(lower, kw) {
			prefix = "tools/"
			break
		}
	}

	return m.Path(prefix + strings.Join(kept, "/"))
}

// PruneScript renders plan as a POSIX shell script: moves first, then file deletions,
// then folder removals.
func PruneScript(repo string, plan m.PrunePlan) string {
	var b strings.Builder

	b.WriteString("#!/bin/sh\n")
	b.WriteString("# Cleanup proposed by rie prune. Review every line before running it.\n")
	b.WriteString("set -eu\n\n")
	fmt.Fprintf(&b, "cd %s\n", shellQuote(repo))

	if len(plan.Moves) > 0 {
		b.WriteString("\n# Move active files out of archives.\n")

		for _, mv := range plan.Moves {
			fmt.Fprintf(&b, "mkdir -p %s\n", shellQuote(string(mv.Destination.Dir())))
			fmt.Fprintf(&b, "mv -- %s %s\n", shellQuote(string(mv.Source)), shellQuote(string(mv.Destination)))
		}
	}

	if len(plan.Partial) > 0 {
		b.WriteString("\n# Remove legacy files from mixed folders.\n")

		for _, pp := range plan.Partial {
			for _, f := range pp.Remove {
				fmt.Fprintf(&b, "rm -f -- %s\n", shellQuote(string(f)))
			}
		}
	}

	if len(plan.Removals) > 0 {
		b.WriteString("\n# Remove fully legacy folders.\n")

		for _, r := range plan.Removals {
			for _, f := range r.Files {
				fmt.Fprintf(&b, "rm -f -- %s\n", shellQuote(string(f)))
			}

			fmt.Fprintf(&b, "rmdir -- %s 2>/dev/null || true\n", shellQuote(string(r.Folder)))
		}
	}

	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
