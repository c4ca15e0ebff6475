package controller

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	m "rie.dev/pkg/rie/internal/model"
)

var tierOrder = []m.Tier{m.TierCore, m.TierPeriphery, m.TierShadow, m.TierGhost}

func newTable(buf *bytes.Buffer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(buf)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)

	return table
}

// renderScanSummary renders the evidence status, tier counts, surfaces, top-K picks and
// violations of an artifact.
func renderScanSummary(artifact m.Artifact) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Repository: %s\n", artifact.Repo)
	fmt.Fprintf(&b, "Scanned:    %s\n", artifact.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Scope:      %s\n\n", scopeLine(artifact.Scope))

	if degraded := artifact.Degraded(); len(degraded) > 0 {
		names := make([]string, len(degraded))
		for i, d := range degraded {
			names[i] = string(d)
		}

		fmt.Fprintf(&b, "WARNING: degraded evidence (%s); tiers may be less precise.\n\n", strings.Join(names, ", "))
	}

	if artifact.TracePartial {
		b.WriteString("NOTE: tracing was partial; some candidates have no completed trace.\n\n")
	}

	b.WriteString(renderEvidence(artifact.Evidence))
	b.WriteString("\n")
	b.WriteString(renderTierCounts(artifact))
	b.WriteString("\n")
	b.WriteString(renderSurfaces(artifact.Surfaces))
	b.WriteString("\n")
	b.WriteString(renderPicks(artifact.Triangulation))

	if len(artifact.Violations) > 0 {
		b.WriteString("\n")
		b.WriteString(renderViolations(artifact.Violations))
	}

	if len(artifact.Cartography.Folders) > 0 {
		b.WriteString("\n")
		b.WriteString(renderCartography(artifact.Cartography))
	}

	return b.String()
}

func scopeLine(scope m.Scope) string {
	if len(scope.Roots) == 0 {
		return "whole repository (" + orAuto(scope.Target) + ")"
	}

	roots := make([]string, len(scope.Roots))
	for i, r := range scope.Roots {
		roots[i] = string(r)
	}

	line := strings.Join(roots, ", ") + " (" + orAuto(scope.Target)
	if scope.Inferred {
		line += ", inferred"
	}

	return line + ")"
}

func orAuto(target string) string {
	if target == "" {
		return m.TargetAuto
	}

	return target
}

func renderEvidence(reports []m.EvidenceReport) string {
	var buf bytes.Buffer

	table := newTable(&buf, []string{"Evidence", "Status", "Edges", "Failures", "Detail"})
	for _, r := range reports {
		table.Append([]string{string(r.Source), string(r.Status), fmt.Sprintf("%d", r.Edges), fmt.Sprintf("%d", r.Failures), r.Detail})
	}

	table.Render()

	return buf.String()
}

func renderTierCounts(artifact m.Artifact) string {
	var buf bytes.Buffer

	counts := artifact.TierCounts()
	total := 0

	table := newTable(&buf, []string{"Tier", "Label", "Files"})
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})

	for _, t := range tierOrder {
		table.Append([]string{string(t), t.Label(), fmt.Sprintf("%d", counts[t])})
		total += counts[t]
	}

	table.SetFooter([]string{"", "Total", fmt.Sprintf("%d", total)})
	table.Render()

	return buf.String()
}

func renderSurfaces(surfaces []m.Surface) string {
	var buf bytes.Buffer

	table := newTable(&buf, []string{"Surface", "Root", "Files", "Active", "Traced", "Coverage", "Out", "In"})
	for _, s := range surfaces {
		name := s.Name
		if s.Configured {
			name += "*"
		}

		if !s.EngineScope {
			name += " (outside engine)"
		}

		table.Append([]string{
			name,
			string(s.Root),
			fmt.Sprintf("%d", s.FileCount),
			fmt.Sprintf("%d", s.ActiveCount),
			fmt.Sprintf("%d", s.TracedCount),
			fmt.Sprintf("%.0f%%", s.Coverage*100),
			fmt.Sprintf("%d", s.CrossOut),
			fmt.Sprintf("%d", s.CrossIn),
		})
	}

	table.Render()

	return buf.String()
}

func renderPicks(tri m.Triangulation) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Top %d entrypoints (%d files covered)\n", tri.K, tri.Covered)

	table := newTable(&buf, []string{"#", "Entrypoint", "Gain", "Total", "Composite"})
	for i, p := range tri.Picks {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			string(p.Path),
			fmt.Sprintf("+%d", p.Gain),
			fmt.Sprintf("%d", p.Total),
			fmt.Sprintf("%.3f", p.Composite),
		})
	}

	table.Render()

	return buf.String()
}

func renderViolations(violations []m.Violation) string {
	var buf bytes.Buffer

	table := newTable(&buf, []string{"Violation", "Files", "Detail"})
	for _, v := range violations {
		files := make([]string, len(v.Files))
		for i, f := range v.Files {
			files[i] = string(f)
		}

		kind := string(v.Kind)
		if v.Severity != "" {
			kind += " (" + string(v.Severity) + ")"
		}

		table.Append([]string{kind, strings.Join(files, " -> "), v.Detail})
	}

	table.Render()

	return buf.String()
}

// renderCartography lists folder health, worst first, and the active clusters.
func renderCartography(c m.Cartography) string {
	var buf bytes.Buffer

	folders := append([]m.FolderStats(nil), c.Folders...)
	sort.SliceStable(folders, func(i, j int) bool { return folders[i].ActiveRatio < folders[j].ActiveRatio })

	table := newTable(&buf, []string{"Folder", "Health", "Files", "Active", "Legacy", "Runtime", "Score"})
	for _, f := range folders {
		table.Append([]string{
			string(f.Path),
			string(f.Health),
			fmt.Sprintf("%d", f.Total),
			fmt.Sprintf("%d", f.Active),
			fmt.Sprintf("%d", f.Legacy),
			fmt.Sprintf("%d", f.Runtime),
			fmt.Sprintf("%.1f", f.ScoreAvg),
		})
	}

	table.Render()

	if len(c.Clusters) > 1 {
		fmt.Fprintf(&buf, "\n%d independent clusters:", len(c.Clusters))

		for _, cl := range c.Clusters {
			fmt.Fprintf(&buf, " %s (%d)", cl.Label, len(cl.Files))
		}

		buf.WriteString("\n")
	}

	return buf.String()
}

// renderPrunePlan renders a cleanup proposal.
func renderPrunePlan(plan m.PrunePlan) string {
	var buf bytes.Buffer

	if len(plan.Removals)+len(plan.Partial)+len(plan.Moves) == 0 {
		buf.WriteString("Nothing to prune.\n")
		return buf.String()
	}

	table := newTable(&buf, []string{"Action", "Path", "Detail"})

	for _, mv := range plan.Moves {
		table.Append([]string{"move", string(mv.Source), fmt.Sprintf("-> %s (%s)", mv.Destination, mv.Reason)})
	}

	for _, pp := range plan.Partial {
		table.Append([]string{"prune", string(pp.Folder), fmt.Sprintf("remove %d, keep %d", len(pp.Remove), len(pp.Keep))})
	}

	for _, r := range plan.Removals {
		table.Append([]string{"remove", string(r.Folder), fmt.Sprintf("%d legacy files", len(r.Files))})
	}

	table.Render()

	fmt.Fprintf(&buf, "folders to remove %d, files to remove %d, files to move %d\n",
		len(plan.Removals), plan.FilesToRemove(), len(plan.Moves))

	return buf.String()
}

// renderEntrypoints renders every candidate with its component scores. Picked candidates
// carry their triangulation rank.
func renderEntrypoints(candidates []m.Candidate, tri m.Triangulation) string {
	var buf bytes.Buffer

	rank := make(map[m.Path]int, len(tri.Picks))
	for i, p := range tri.Picks {
		rank[p.Path] = i + 1
	}

	table := newTable(&buf, []string{
		"Pick", "Entrypoint", "Role", "Reach", "Central", "Name", "RoleS", "Main", "Composite", "Static", "Trace",
	})

	for _, c := range candidates {
		pick := ""
		if r, ok := rank[c.Path]; ok {
			pick = fmt.Sprintf("%d", r)
		}

		trace := string(c.Trace)
		if c.TraceDetail != "" {
			trace += ": " + c.TraceDetail
		}

		table.Append([]string{
			pick,
			string(c.Path),
			string(c.Role),
			fmt.Sprintf("%.2f", c.Scores.Reach),
			fmt.Sprintf("%.2f", c.Scores.Centrality),
			fmt.Sprintf("%.2f", c.Scores.Filename),
			fmt.Sprintf("%.2f", c.Scores.Role),
			fmt.Sprintf("%.0f", c.Scores.MainGuard),
			fmt.Sprintf("%.3f", c.Composite),
			fmt.Sprintf("%.3f", c.StaticComposite),
			trace,
		})
	}

	table.Render()

	return buf.String()
}

func renderActionReport(report m.ActionReport) string {
	var buf bytes.Buffer

	verb := "Quarantine"
	if report.Kind == m.LedgerRestore {
		verb = "Restore"
	}

	if report.DryRun {
		verb += " (dry run)"
	}

	fmt.Fprintf(&buf, "%s: %d files\n", verb, len(report.Outcomes))

	table := newTable(&buf, []string{"Path", "Status", "Destination", "Detail"})
	for _, o := range report.Outcomes {
		table.Append([]string{string(o.Path), string(o.Status), o.Destination, o.Detail})
	}

	table.Render()

	fmt.Fprintf(&buf, "committed %d, failed %d, skipped %d, pending %d\n",
		report.Count(m.StatusCommitted), report.Count(m.StatusFailed),
		report.Count(m.StatusSkipped), report.Count(m.StatusPending))

	return buf.String()
}

func renderTierDiff(changes []m.TierChange, unified string) string {
	var buf bytes.Buffer

	if len(changes) == 0 {
		buf.WriteString("No tier changes.\n")
		return buf.String()
	}

	sorted := append([]m.TierChange(nil), changes...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	table := newTable(&buf, []string{"Path", "From", "To"})
	for _, c := range sorted {
		table.Append([]string{string(c.Path), tierCell(c.From), tierCell(c.To)})
	}

	table.Render()

	if unified != "" {
		buf.WriteString("\n")
		buf.WriteString(unified)
	}

	return buf.String()
}

func tierCell(t m.Tier) string {
	if t == "" {
		return "-"
	}

	return fmt.Sprintf("%s %s", t, t.Label())
}
