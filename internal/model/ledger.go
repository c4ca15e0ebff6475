package model

import "time"

// LedgerKind is the operation recorded by a ledger entry.
type LedgerKind string

// Ledger kinds.
const (
	LedgerMove    LedgerKind = "move"
	LedgerRestore LedgerKind = "restore"
)

// LedgerStatus is the state of one relocation transaction.
type LedgerStatus string

// Ledger statuses. Pending is the only non-terminal state.
const (
	StatusPending   LedgerStatus = "pending"
	StatusCommitted LedgerStatus = "committed"
	StatusFailed    LedgerStatus = "failed"
	StatusSkipped   LedgerStatus = "skipped"
)

// LedgerEntry is one record of the append-only relocation log. Source and Destination
// are absolute paths.
type LedgerEntry struct {
	OpID        string       `json:"op_id"`
	Time        time.Time    `json:"time"`
	Source      string       `json:"source"`
	Destination string       `json:"destination"`
	Path        Path         `json:"path"`
	Tier        Tier         `json:"tier,omitempty"`
	Kind        LedgerKind   `json:"kind"`
	Status      LedgerStatus `json:"status"`
	Error       string       `json:"error,omitempty"`
}

// Outcome is the per-file result reported to the user after quarantine or restore.
type Outcome struct {
	Path        Path         `json:"path"`
	Source      string       `json:"source"`
	Destination string       `json:"destination"`
	Status      LedgerStatus `json:"status"`
	Detail      string       `json:"detail,omitempty"`
}

// ActionReport summarizes a quarantine or restore batch.
type ActionReport struct {
	Kind     LedgerKind `json:"kind"`
	DryRun   bool       `json:"dry_run"`
	Outcomes []Outcome  `json:"outcomes"`
}

// Count returns how many outcomes have the given status.
func (r ActionReport) Count(status LedgerStatus) int {
	n := 0

	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}

	return n
}
