package model

import "time"

// ArtifactVersion is bumped whenever the artifact layout changes incompatibly.
const ArtifactVersion = 1

// SourceStatus describes how well an evidence source performed.
type SourceStatus string

// Evidence source statuses.
const (
	SourceOK       SourceStatus = "ok"
	SourceDegraded SourceStatus = "degraded"
	SourceDisabled SourceStatus = "disabled"
)

// EvidenceSource names a producer of edges.
type EvidenceSource string

// Evidence sources.
const (
	SourceStatic  EvidenceSource = "static"
	SourceRuntime EvidenceSource = "runtime"
	SourceText    EvidenceSource = "text"
)

// EvidenceReport is the outcome of one evidence source.
type EvidenceReport struct {
	Source   EvidenceSource `json:"source"`
	Status   SourceStatus   `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Failures int            `json:"failures"`
	Edges    int            `json:"edges"`
}

// Artifact is the immutable result of a scan and the only input of the act phase.
type Artifact struct {
	Version       int                `json:"version"`
	Repo          string             `json:"repo"`
	CreatedAt     time.Time          `json:"created_at"`
	Config        Config             `json:"config"`
	Scope         Scope              `json:"scope"`
	Evidence      []EvidenceReport   `json:"evidence"`
	Graph         Graph              `json:"graph"`
	Surfaces      []Surface          `json:"surfaces"`
	CrossSurface  []CrossSurfaceEdge `json:"cross_surface"`
	Candidates    []Candidate        `json:"candidates"`
	TracePartial  bool               `json:"trace_partial"`
	Split         ScoreSplit         `json:"split"`
	Triangulation Triangulation      `json:"triangulation"`
	Violations    []Violation        `json:"violations"`
	Tiers         map[Path]Tier      `json:"tiers"`
	Cartography   Cartography        `json:"cartography"`
	External      int                `json:"external_imports"`
}

// Degraded lists the evidence sources that did not report ok or disabled.
func (a Artifact) Degraded() []EvidenceSource {
	var out []EvidenceSource

	for _, e := range a.Evidence {
		if e.Status == SourceDegraded {
			out = append(out, e.Source)
		}
	}

	return out
}

// TierCounts returns the number of files per tier.
func (a Artifact) TierCounts() map[Tier]int {
	counts := map[Tier]int{TierCore: 0, TierPeriphery: 0, TierShadow: 0, TierGhost: 0}
	for _, t := range a.Tiers {
		counts[t]++
	}

	return counts
}
