package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"rie.dev/pkg/rie/internal/adapter"
	m "rie.dev/pkg/rie/internal/model"
)

const quarantinePrefix = "_quarantine_"

// QuarantineArgs selects what to relocate.
type QuarantineArgs struct {
	// Artifact is the artifact path used by the workflow.
	Artifact string
	RepoRoot string
	Tiers    []m.Tier
	// Dir overrides the default sibling quarantine directory.
	Dir    string
	DryRun bool
}

// RestoreArgs selects what to move back.
type RestoreArgs struct {
	RepoRoot string
	Dir      string
	DryRun   bool
}

// Quarantiner relocates files selected from an artifact and reverses relocations using
// the ledger alone.
type Quarantiner interface {
	Quarantine(ctx context.Context, artifact m.Artifact, args QuarantineArgs) (m.ActionReport, error)
	Restore(ctx context.Context, args RestoreArgs) (m.ActionReport, error)
	// Ledger returns the folded state per operation id, last record wins.
	Ledger(repoRoot, dir string) ([]m.LedgerEntry, error)
}

type quarantiner struct {
	adapter.SourceFSAdapter
	ledgers func(dir string) adapter.LedgerStore
	now     func() time.Time
	newID   func() string
}

// NewQuarantiner creates a Quarantiner writing JSONL ledgers.
func NewQuarantiner(fs adapter.SourceFSAdapter) Quarantiner {
	return &quarantiner{
		SourceFSAdapter: fs,
		ledgers:         func(dir string) adapter.LedgerStore { return adapter.NewJSONLLedgerStore(dir) },
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
	}
}

// QuarantineDir returns the quarantine directory for repoRoot: override when set, else
// the sibling _quarantine_<repo>. It must lie outside the repository.
func QuarantineDir(repoRoot, override string) (string, error) {
	root, err := filepath.Abs(repoRoot)
	if err != nil {
		return "", err
	}

	dir := override
	if dir == "" {
		dir = filepath.Join(filepath.Dir(root), quarantinePrefix+filepath.Base(root))
	}

	dir, err = filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	if dir == root || strings.HasPrefix(dir, root+string(filepath.Separator)) {
		return "", &m.ConfigurationError{Field: "quarantine.dir", Reason: "must be outside the repository root"}
	}

	return dir, nil
}

func (q *quarantiner) Quarantine(ctx context.Context, artifact m.Artifact, args QuarantineArgs) (m.ActionReport, error) {
	report := m.ActionReport{Kind: m.LedgerMove, DryRun: args.DryRun}

	root, err := filepath.Abs(args.RepoRoot)
	if err != nil {
		return report, err
	}

	if filepath.Clean(artifact.Repo) != root {
		slog.Error("artifact belongs to another repository", "artifact", artifact.Repo, "repo", root)
		return report, fmt.Errorf("%w: artifact %s, repository %s", m.ErrArtifactStale, artifact.Repo, root)
	}

	dir, err := QuarantineDir(root, args.Dir)
	if err != nil {
		return report, err
	}

	selected := selectTiers(artifact.Graph, args.Tiers)

	if args.DryRun {
		for _, n := range selected {
			report.Outcomes = append(report.Outcomes, m.Outcome{
				Path:        n.Path,
				Source:      filepath.Join(root, filepath.FromSlash(string(n.Path))),
				Destination: destination(dir, n),
				Status:      m.StatusPending,
				Detail:      "dry run",
			})
		}

		return report, nil
	}

	lock, err := adapter.AcquireLock(dir)
	if err != nil {
		return report, err
	}
	defer lock.Release()

	store := q.ledgers(dir)

	if err := q.reconcile(store); err != nil {
		return report, err
	}

	for _, n := range selected {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		report.Outcomes = append(report.Outcomes, q.move(store, root, dir, n))
	}

	slog.Info("quarantine finished", "dir", dir, "committed", report.Count(m.StatusCommitted),
		"failed", report.Count(m.StatusFailed))

	return report, nil
}

func selectTiers(g m.Graph, tiers []m.Tier) []m.FileNode {
	want := make(map[m.Tier]bool, len(tiers))
	for _, t := range tiers {
		want[t] = true
	}

	var out []m.FileNode

	for _, n := range g.Nodes {
		if want[n.Tier] {
			out = append(out, n)
		}
	}

	return out
}

func destination(dir string, n m.FileNode) string {
	return filepath.Join(dir, string(n.Tier), filepath.FromSlash(string(n.Path)))
}

// move performs one write-ahead relocation. Failures are recorded, never returned.
func (q *quarantiner) move(store adapter.LedgerStore, root, dir string, n m.FileNode) m.Outcome {
	entry := m.LedgerEntry{
		OpID:        q.newID(),
		Time:        q.now(),
		Source:      filepath.Join(root, filepath.FromSlash(string(n.Path))),
		Destination: destination(dir, n),
		Path:        n.Path,
		Tier:        n.Tier,
		Kind:        m.LedgerMove,
	}

	outcome := m.Outcome{Path: n.Path, Source: entry.Source, Destination: entry.Destination}

	fail := func(reason string) m.Outcome {
		entry.Status = m.StatusFailed
		entry.Error = reason
		entry.Time = q.now()

		if err := store.Append(entry); err != nil {
			slog.Error("failed to record failed move", "path", n.Path, "error", err)
		}

		outcome.Status = m.StatusFailed
		outcome.Detail = reason

		return outcome
	}

	hash, err := q.HashFile(entry.Source)
	if err != nil {
		return fail("unreadable at source: " + err.Error())
	}

	if hash != n.Hash {
		return fail("changed since scan")
	}

	entry.Status = m.StatusPending
	if err := store.Append(entry); err != nil {
		outcome.Status = m.StatusFailed
		outcome.Detail = "ledger write failed: " + err.Error()

		return outcome
	}

	if err := q.Move(entry.Source, entry.Destination); err != nil {
		reason := err.Error()

		switch {
		case errors.Is(err, os.ErrExist):
			reason = "destination collision: " + entry.Destination
		case errors.Is(err, os.ErrPermission):
			reason = "permission denied: " + err.Error()
		}

		slog.Warn("move failed", "path", n.Path, "error", err)

		return fail(reason)
	}

	entry.Status = m.StatusCommitted
	entry.Time = q.now()

	if err := store.Append(entry); err != nil {
		slog.Error("failed to commit move", "path", n.Path, "op", entry.OpID, "error", err)
		outcome.Detail = "moved, commit record pending reconciliation"
	}

	outcome.Status = m.StatusCommitted

	return outcome
}

type ledgerOp struct {
	move  m.LedgerEntry
	last  m.LedgerEntry
	order int
}

// foldLedger groups records by op id. order is the position of the last committed move,
// used for reverse chronological restore.
func foldLedger(records []m.LedgerEntry) (map[string]*ledgerOp, []string) {
	ops := make(map[string]*ledgerOp)

	var ids []string

	for i, r := range records {
		op, ok := ops[r.OpID]
		if !ok {
			op = &ledgerOp{}
			ops[r.OpID] = op
			ids = append(ids, r.OpID)
		}

		if r.Kind == m.LedgerMove {
			op.move = r
			op.order = i
		}

		op.last = r
	}

	return ops, ids
}

// reconcile resolves pending records left by an interrupted run by looking at where the
// file actually is.
func (q *quarantiner) reconcile(store adapter.LedgerStore) error {
	records, err := store.Records()
	if err != nil {
		return err
	}

	ops, ids := foldLedger(records)

	for _, id := range ids {
		last := ops[id].last
		if last.Status != m.StatusPending {
			continue
		}

		from, to := last.Source, last.Destination
		if last.Kind == m.LedgerRestore {
			from, to = last.Destination, last.Source
		}

		resolved := last
		resolved.Time = q.now()

		atTarget, err := q.Exists(to)
		if err != nil {
			return err
		}

		if atTarget {
			resolved.Status = m.StatusCommitted
		} else {
			resolved.Status = m.StatusFailed
			resolved.Error = "interrupted"
		}

		slog.Warn("reconciled pending ledger entry", "op", id, "kind", last.Kind, "from", from, "status", resolved.Status)

		if err := store.Append(resolved); err != nil {
			return fmt.Errorf("failed to reconcile ledger: %w", err)
		}
	}

	return nil
}

func (q *quarantiner) Ledger(repoRoot, dir string) ([]m.LedgerEntry, error) {
	qdir, err := QuarantineDir(repoRoot, dir)
	if err != nil {
		return nil, err
	}

	records, err := q.ledgers(qdir).Records()
	if err != nil {
		return nil, err
	}

	ops, ids := foldLedger(records)

	out := make([]m.LedgerEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, ops[id].last)
	}

	return out, nil
}

func (q *quarantiner) Restore(ctx context.Context, args RestoreArgs) (m.ActionReport, error) {
	report := m.ActionReport{Kind: m.LedgerRestore, DryRun: args.DryRun}

	dir, err := QuarantineDir(args.RepoRoot, args.Dir)
	if err != nil {
		return report, err
	}

	store := q.ledgers(dir)

	if !args.DryRun {
		lock, err := adapter.AcquireLock(dir)
		if err != nil {
			return report, err
		}
		defer lock.Release()

		if err := q.reconcile(store); err != nil {
			return report, err
		}
	}

	records, err := store.Records()
	if err != nil {
		return report, err
	}

	ops, ids := foldLedger(records)

	// Reverse chronological order of the moves.
	sort.SliceStable(ids, func(i, j int) bool { return ops[ids[i]].order > ops[ids[j]].order })

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		op := ops[id]
		if op.move.OpID == "" {
			continue
		}

		outcome, ok := q.restoreOne(store, op, args.DryRun)
		if ok {
			report.Outcomes = append(report.Outcomes, outcome)
		}
	}

	slog.Info("restore finished", "dir", dir, "committed", report.Count(m.StatusCommitted),
		"skipped", report.Count(m.StatusSkipped), "failed", report.Count(m.StatusFailed))

	return report, nil
}

// restoreOne moves a committed move back. ok is false for operations that never moved
// anything (failed moves), which are not part of the restore report.
func (q *quarantiner) restoreOne(store adapter.LedgerStore, op *ledgerOp, dryRun bool) (m.Outcome, bool) {
	last := op.last
	outcome := m.Outcome{Path: op.move.Path, Source: op.move.Destination, Destination: op.move.Source}

	switch {
	case last.Kind == m.LedgerMove && last.Status != m.StatusCommitted:
		return outcome, false
	case last.Kind == m.LedgerRestore && last.Status == m.StatusCommitted:
		outcome.Status = m.StatusSkipped
		outcome.Detail = "already restored"

		return outcome, true
	}

	present, err := q.Exists(op.move.Destination)
	if err != nil || !present {
		outcome.Status = m.StatusSkipped
		outcome.Detail = "missing at destination"

		return outcome, true
	}

	if occupied, _ := q.Exists(op.move.Source); occupied {
		conflict := &m.RestoreConflict{Path: op.move.Source}
		slog.Warn("restore conflict", "path", op.move.Path, "error", conflict)

		outcome.Status = m.StatusFailed
		outcome.Detail = conflict.Error()

		return outcome, true
	}

	if dryRun {
		outcome.Status = m.StatusPending
		outcome.Detail = "dry run"

		return outcome, true
	}

	entry := op.move
	entry.Kind = m.LedgerRestore
	entry.Status = m.StatusPending
	entry.Error = ""
	entry.Time = q.now()

	if err := store.Append(entry); err != nil {
		outcome.Status = m.StatusFailed
		outcome.Detail = "ledger write failed: " + err.Error()

		return outcome, true
	}

	if err := q.Move(op.move.Destination, op.move.Source); err != nil {
		entry.Status = m.StatusFailed
		entry.Error = err.Error()
		entry.Time = q.now()

		slog.Warn("restore failed", "path", op.move.Path, "error", err)

		outcome.Status = m.StatusFailed
		outcome.Detail = err.Error()

		if appendErr := store.Append(entry); appendErr != nil {
			slog.Warn("failed to record failed restore", "path", op.move.Path, "op", entry.OpID, "error", appendErr)
			outcome.Detail += "; failure record pending reconciliation"
		}

		return outcome, true
	}

	entry.Status = m.StatusCommitted
	entry.Time = q.now()

	if err := store.Append(entry); err != nil {
		slog.Error("failed to commit restore", "path", op.move.Path, "op", entry.OpID, "error", err)
		outcome.Detail = "restored, commit record pending reconciliation"
	}

	outcome.Status = m.StatusCommitted

	return outcome, true
}
