package adapter

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	m "rie.dev/pkg/rie/internal/model"
)

// LedgerFileName is the ledger file inside the quarantine directory.
const LedgerFileName = "ledger.jsonl"

// LedgerStore is the append-only persistence of ledger records.
type LedgerStore interface {
	// Append durably writes one record.
	Append(entry m.LedgerEntry) error
	// Records returns every record in write order.
	Records() ([]m.LedgerEntry, error)
	Path() string
}

// JSONLLedgerStore keeps one JSON record per line and fsyncs after every append.
type JSONLLedgerStore struct {
	path string
}

// NewJSONLLedgerStore returns a store writing to dir/ledger.jsonl.
func NewJSONLLedgerStore(dir string) *JSONLLedgerStore {
	return &JSONLLedgerStore{path: filepath.Join(dir, LedgerFileName)}
}

// Path implements LedgerStore.
func (s *JSONLLedgerStore) Path() string {
	return s.path
}

// Append implements LedgerStore.
func (s *JSONLLedgerStore) Append(entry m.LedgerEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		slog.Error("failed to create ledger directory", "path", s.path, "error", err)
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	// #nosec G304 - ledger lives in the quarantine directory
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Error("failed to open ledger", "path", s.path, "error", err)
		return fmt.Errorf("failed to open ledger: %w", err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()
		slog.Error("failed to append ledger entry", "path", s.path, "op", entry.OpID, "error", err)

		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync ledger: %w", err)
	}

	return f.Close()
}

// Records implements LedgerStore. A torn final line (crash mid-write) is skipped.
func (s *JSONLLedgerStore) Records() ([]m.LedgerEntry, error) {
	// #nosec G304 - ledger lives in the quarantine directory
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		slog.Error("failed to open ledger", "path", s.path, "error", err)
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	var out []m.LedgerEntry

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++

		if len(scanner.Bytes()) == 0 {
			continue
		}

		var entry m.LedgerEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			slog.Warn("skipping unreadable ledger line", "path", s.path, "line", lineNo, "error", err)
			continue
		}

		out = append(out, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}

	return out, nil
}
