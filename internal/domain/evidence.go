package domain

import (
	"sync"

	m "rie.dev/pkg/rie/internal/model"
	"rie.dev/pkg/rie/pkg"
)

// EvidenceKind distinguishes edge records from flag records.
type EvidenceKind uint8

// Evidence record kinds.
const (
	EvidenceEdge EvidenceKind = iota + 1
	EvidenceFlag
)

// Evidence is one observation by an evidence producer. Records are appended to a spill
// file as they are produced and only folded into the graph after every producer finished.
type Evidence struct {
	Kind     EvidenceKind
	From     m.Path
	To       m.Path
	EdgeKind m.EdgeKind
	Weight   float64
	Flag     m.Flags
	Detail   string
}

// EdgeEvidence builds an edge record.
func EdgeEvidence(from, to m.Path, kind m.EdgeKind, weight float64) Evidence {
	return Evidence{Kind: EvidenceEdge, From: from, To: to, EdgeKind: kind, Weight: weight}
}

// FlagEvidence builds a flag record for path.
func FlagEvidence(path m.Path, flag m.Flags, detail string) Evidence {
	return Evidence{Kind: EvidenceFlag, To: path, Flag: flag, Detail: detail}
}

// EvidenceSink receives records from concurrent producers.
type EvidenceSink interface {
	Append(item Evidence) error
}

// SpillSink wraps a FileSpill; the spill is already safe for concurrent appends.
type SpillSink struct {
	pkg.FileSpill[Evidence]
}

// NewSpillSink creates a spill-backed sink under dir.
func NewSpillSink(dir string) (*SpillSink, error) {
	spill, err := pkg.NewFileSpill[Evidence](dir)
	if err != nil {
		return nil, err
	}

	return &SpillSink{FileSpill: spill}, nil
}

// MemorySink keeps records in memory. Used by tests and small helpers.
type MemorySink struct {
	mu    sync.Mutex
	items []Evidence
}

// Append implements EvidenceSink.
func (s *MemorySink) Append(item Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = append(s.items, item)

	return nil
}

// Items returns a copy of the collected records.
func (s *MemorySink) Items() []Evidence {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Evidence(nil), s.items...)
}

// Range visits the collected records in append order.
func (s *MemorySink) Range(fn func(index uint64, item Evidence) error) error {
	for i, item := range s.Items() {
		if err := fn(uint64(i), item); err != nil {
			return err
		}
	}

	return nil
}

// EvidenceReader replays collected records. Both sinks implement it.
type EvidenceReader interface {
	Range(fn func(index uint64, item Evidence) error) error
}
