package model

import (
	"fmt"
	"strings"
)

// Tier is the risk classification driving quarantine.
type Tier string

// Tiers.
const (
	TierCore      Tier = "T0"
	TierPeriphery Tier = "T1"
	TierShadow    Tier = "T2"
	TierGhost     Tier = "T3"
)

// Label returns the human readable tier name.
func (t Tier) Label() string {
	switch t {
	case TierCore:
		return "Core"
	case TierPeriphery:
		return "Periphery"
	case TierShadow:
		return "Shadow"
	case TierGhost:
		return "Ghost"
	}

	return "Unknown"
}

// ParseTier accepts "T2", "t2" or the label ("shadow").
func ParseTier(s string) (Tier, error) {
	v := strings.ToLower(strings.TrimSpace(s))

	switch v {
	case "t0", "core":
		return TierCore, nil
	case "t1", "periphery":
		return TierPeriphery, nil
	case "t2", "shadow":
		return TierShadow, nil
	case "t3", "ghost":
		return TierGhost, nil
	}

	return "", fmt.Errorf("unknown tier %q", s)
}

// ViolationKind classifies a policy violation.
type ViolationKind string

// Violation kinds. Archive-import is live code importing a retired file; test-runtime is a
// test importing a runtime module directly.
const (
	ViolationBoundary      ViolationKind = "boundary"
	ViolationShadowing     ViolationKind = "shadowing"
	ViolationArchiveDrift  ViolationKind = "archive-drift"
	ViolationArchiveImport ViolationKind = "archive-import"
	ViolationTestRuntime   ViolationKind = "test-runtime"
)

// Severity grades findings that are not always defects.
type Severity string

// Severities.
const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Violation is a derived, read-only policy finding.
type Violation struct {
	Kind        ViolationKind `json:"kind"`
	Files       []Path        `json:"files"`
	Detail      string        `json:"detail"`
	FromSurface string        `json:"from_surface,omitempty"`
	ToSurface   string        `json:"to_surface,omitempty"`
	Severity    Severity      `json:"severity,omitempty"`
}

// TierChange is one file whose tier differs between two artifacts. An empty tier means the
// file is absent from that artifact.
type TierChange struct {
	Path Path `json:"path"`
	From Tier `json:"from,omitempty"`
	To   Tier `json:"to,omitempty"`
}
