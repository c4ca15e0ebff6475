//go:build !windows

package adapter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	m "rie.dev/pkg/rie/internal/model"
)

// LockFileName is the lock file created inside the quarantine directory.
const LockFileName = "rie.lock"

// Lock is an exclusive advisory lock serializing quarantine and restore runs.
type Lock struct {
	path string
	file *os.File
}

// AcquireLock takes the lock in dir without blocking. It wraps model.ErrLocked when
// another process holds it.
func AcquireLock(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	path := filepath.Join(dir, LockFileName)

	// #nosec G304 - fixed file name in the quarantine directory
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()

		if content, readErr := os.ReadFile(path); readErr == nil && len(content) > 0 {
			pid := strings.TrimSpace(string(content))
			return nil, fmt.Errorf("%w (PID %s)", m.ErrLocked, pid)
		}

		return nil, m.ErrLocked
	}

	if err := file.Truncate(0); err != nil {
		unlockAndClose(file)
		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := file.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		unlockAndClose(file)
		return nil, fmt.Errorf("writing PID to lock file: %w", err)
	}

	slog.Debug("acquired lock", "path", path)

	return &Lock{path: path, file: file}, nil
}

// Release releases the lock and removes the lock file.
func (l *Lock) Release() {
	if l == nil || l.file == nil {
		return
	}

	_ = os.Remove(l.path)
	unlockAndClose(l.file)
	l.file = nil

	slog.Debug("released lock", "path", l.path)
}

func unlockAndClose(file *os.File) {
	_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
	_ = file.Close()
}
