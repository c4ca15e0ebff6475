//go:build windows

package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	m "rie.dev/pkg/rie/internal/model"
)

// LockFileName is the lock file created inside the quarantine directory.
const LockFileName = "rie.lock"

// Lock is an exclusive lock backed by O_EXCL file creation.
type Lock struct {
	path string
}

// AcquireLock creates the lock file; an existing file means the lock is held.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	path := filepath.Join(dir, LockFileName)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil, m.ErrLocked
	}

	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	_, _ = file.WriteString(strconv.Itoa(os.Getpid()))
	_ = file.Close()

	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.path == "" {
		return
	}

	_ = os.Remove(l.path)
	l.path = ""
}
