// Package adapter contains infrastructure adapters (filesystem, parsers, processes, stores)
// that the domain layer consumes through interfaces.
package adapter

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	lru "github.com/hashicorp/golang-lru/v2"

	m "rie.dev/pkg/rie/internal/model"
)

// DefaultReadCacheSize is the number of file bodies kept by the read cache.
const DefaultReadCacheSize = 2048

// SourceFSAdapter abstracts filesystem access so the analysis and ledger logic can be
// tested against temp directories without touching os directly.
//
//nolint:interfacebloat // A richer interface keeps workflow logic decoupled from os/fs.
type SourceFSAdapter interface {
	// Walk visits every regular file under root. Directories named in skipDirs are pruned.
	Walk(root string, skipDirs map[string]bool, fn FilepathWalkFunc) error

	// ReadFile loads a file from disk. Repeated reads are served from an LRU cache.
	ReadFile(path string) ([]byte, error)

	// HashFile returns the SHA-256 fingerprint of the file at path.
	HashFile(path string) (string, error)

	// FileInfo returns metadata for a path.
	FileInfo(path string) (os.FileInfo, error)

	// Exists reports whether anything exists at path (without following symlinks).
	Exists(path string) (bool, error)

	// MkdirAll creates a directory and its parents.
	MkdirAll(path string) error

	// Move relocates a file, falling back to copy+remove across devices.
	Move(src, dst string) error

	// CreateTempDir creates a scratch directory.
	CreateTempDir(pattern string) (string, error)

	// RemoveAll removes a directory and all its contents.
	RemoveAll(path string) error

	// WriteFile writes content to a file with the given permissions.
	WriteFile(path string, content []byte, perm os.FileMode) error

	// RelPath returns target relative to base in canonical slash form.
	RelPath(base, target string) (m.Path, error)
}

// FilepathWalkFunc mirrors the callback shape used by filepath.Walk without leaking it
// into the domain layer.
type FilepathWalkFunc func(path string, info os.FileInfo, err error) error

// LocalSourceFSAdapter is the os-backed SourceFSAdapter.
type LocalSourceFSAdapter struct {
	cache *lru.Cache[string, []byte]
}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter with the default cache size.
func NewLocalSourceFSAdapter() *LocalSourceFSAdapter {
	return NewCachedSourceFSAdapter(DefaultReadCacheSize)
}

// NewCachedSourceFSAdapter constructs a LocalSourceFSAdapter caching up to size file bodies.
// A size of zero disables the cache.
func NewCachedSourceFSAdapter(size int) *LocalSourceFSAdapter {
	a := &LocalSourceFSAdapter{}

	if size > 0 {
		cache, err := lru.New[string, []byte](size)
		if err != nil {
			slog.Warn("read cache disabled", "size", size, "error", err)
		} else {
			a.cache = cache
		}
	}

	return a
}

// Walk iterates over regular files under root.
func (a *LocalSourceFSAdapter) Walk(root string, skipDirs map[string]bool, fn FilepathWalkFunc) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fn(path, info, err)
		}

		if info.IsDir() {
			if path != root && skipDirs[info.Name()] {
				return filepath.SkipDir
			}

			return nil
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		return fn(path, info, nil)
	})
}

// ReadFile loads file contents, consulting the cache first.
func (a *LocalSourceFSAdapter) ReadFile(path string) ([]byte, error) {
	if a.cache != nil {
		if data, ok := a.cache.Get(path); ok {
			return data, nil
		}
	}

	// #nosec G304 - path comes from the repository walk
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		a.cache.Add(path, data)
	}

	return data, nil
}

// HashFile returns the SHA-256 hash of the file at the provided path.
func (a *LocalSourceFSAdapter) HashFile(path string) (string, error) {
	// #nosec G304 - path comes from the repository walk or the ledger
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = f.Close()
	}()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalSourceFSAdapter) FileInfo(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Exists reports whether path is present.
func (a *LocalSourceFSAdapter) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	return false, err
}

// MkdirAll creates path with 0o750 permissions.
func (a *LocalSourceFSAdapter) MkdirAll(path string) error {
	return os.MkdirAll(path, 0o750)
}

// Move renames src to dst. The destination directory is created; an existing
// destination is never overwritten.
func (a *LocalSourceFSAdapter) Move(src, dst string) error {
	a.forget(src, dst)

	if exists, err := a.Exists(dst); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("destination %s: %w", dst, os.ErrExist)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return err
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	slog.Debug("cross-device move, copying", "src", src, "dst", dst)

	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if err := a.copyFile(src, dst, info.Mode()); err != nil {
		_ = os.Remove(dst)
		return err
	}

	return os.Remove(src)
}

// copyFile copies a single file.
func (a *LocalSourceFSAdapter) copyFile(src, dst string, mode os.FileMode) error {
	// #nosec G304 - src is a repository file recorded in the ledger
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}

	defer func() { _ = sourceFile.Close() }()

	// #nosec G304 - dst is computed from the quarantine directory
	destFile, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		_ = destFile.Close()
		return err
	}

	return destFile.Close()
}

// CreateTempDir creates a temporary directory.
func (a *LocalSourceFSAdapter) CreateTempDir(pattern string) (string, error) {
	return os.MkdirTemp("", pattern)
}

// RemoveAll removes a directory and all its contents.
func (a *LocalSourceFSAdapter) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// WriteFile writes content to a file with the given permissions.
func (a *LocalSourceFSAdapter) WriteFile(path string, content []byte, perm os.FileMode) error {
	a.forget(path)
	return os.WriteFile(path, content, perm)
}

// RelPath returns the relative path from base to target.
func (a *LocalSourceFSAdapter) RelPath(base, target string) (m.Path, error) {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", err
	}

	return m.Path(filepath.ToSlash(rel)), nil
}

func (a *LocalSourceFSAdapter) forget(paths ...string) {
	if a.cache == nil {
		return
	}

	for _, p := range paths {
		a.cache.Remove(p)
	}
}
