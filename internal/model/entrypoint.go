package model

// EntryRole is the rule-based category of an entrypoint.
type EntryRole string

// Entrypoint roles in descending precedence.
const (
	EntryBoot    EntryRole = "boot"
	EntryDriver  EntryRole = "driver"
	EntryTool    EntryRole = "tool"
	EntryTest    EntryRole = "test"
	EntryUnknown EntryRole = "unknown"
)

// CandidateReason explains why a file is an entrypoint candidate.
type CandidateReason string

// Candidate reasons.
const (
	ReasonMainGuard    CandidateReason = "main-guard"
	ReasonLauncherName CandidateReason = "launcher-name"
	ReasonDeclared     CandidateReason = "declared"
)

// TraceStatus is the outcome of a sandboxed execution.
type TraceStatus string

// Trace statuses.
const (
	TraceCompleted TraceStatus = "completed"
	TraceTimeout   TraceStatus = "timeout"
	TraceCrashed   TraceStatus = "crashed"
	TraceSkipped   TraceStatus = "skipped"
	TraceCancelled TraceStatus = "cancelled"
	TraceDisabled  TraceStatus = "disabled"
)

// Partial reports whether events were cut short but kept.
func (s TraceStatus) Partial() bool {
	return s == TraceTimeout || s == TraceCrashed || s == TraceCancelled
}

// ComponentScores are the normalized inputs to the composite score.
type ComponentScores struct {
	Reach      float64 `json:"reach"`
	Centrality float64 `json:"centrality"`
	Filename   float64 `json:"filename"`
	Role       float64 `json:"role"`
	MainGuard  float64 `json:"main_guard"`
}

// Candidate is an entrypoint with its scores and coverage.
type Candidate struct {
	Path            Path              `json:"path"`
	Reasons         []CandidateReason `json:"reasons"`
	Role            EntryRole         `json:"role"`
	Scores          ComponentScores   `json:"scores"`
	Composite       float64           `json:"composite"`
	StaticComposite float64           `json:"static_composite"`
	TraceComposite  float64           `json:"trace_composite"`
	EngineScope     bool              `json:"engine_scope"`
	Covered         []Path            `json:"covered"`
	Trace           TraceStatus       `json:"trace"`
	TraceDetail     string            `json:"trace_detail,omitempty"`
	Blocked         []string          `json:"blocked,omitempty"`
}

// Pick is one step of triangulation.
type Pick struct {
	Path      Path    `json:"path"`
	Gain      int     `json:"gain"`
	Composite float64 `json:"composite"`
	Total     int     `json:"total"`
}

// Triangulation is the ordered top-K selection and per-surface coverage.
type Triangulation struct {
	K        int                `json:"k"`
	Picks    []Pick             `json:"picks"`
	Covered  int                `json:"covered"`
	Coverage map[string]float64 `json:"coverage"`
}

// ScoreSplit separates static-only from trace-dependent contributions.
type ScoreSplit struct {
	StaticOnly     float64 `json:"static_only"`
	TraceDependent float64 `json:"trace_dependent"`
}
