package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	m "rie.dev/pkg/rie/internal/model"
)

// CompressedSuffix selects zstd compression for an artifact path.
const CompressedSuffix = ".zst"

// ArtifactStore persists the scan artifact, the only contract between scan and act.
type ArtifactStore interface {
	Save(path string, artifact m.Artifact) error
	Load(path string) (m.Artifact, error)
}

// FileArtifactStore writes indented JSON, zstd-compressed when the path ends in .zst.
type FileArtifactStore struct{}

// NewFileArtifactStore constructs a FileArtifactStore.
func NewFileArtifactStore() *FileArtifactStore {
	return &FileArtifactStore{}
}

// Save writes the artifact atomically (temp file + rename).
func (s *FileArtifactStore) Save(path string, artifact m.Artifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		slog.Error("failed to encode artifact", "path", path, "error", err)
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	if strings.HasSuffix(path, CompressedSuffix) {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}

		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		slog.Error("failed to create artifact directory", "path", path, "error", err)
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".artifact-*")
	if err != nil {
		return fmt.Errorf("failed to create temp artifact: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write artifact: %w", err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to close artifact: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		slog.Error("failed to move artifact into place", "path", path, "error", err)

		return fmt.Errorf("failed to save artifact: %w", err)
	}

	slog.Info("saved artifact", "path", path, "bytes", len(data))

	return nil
}

// Load reads an artifact written by Save.
func (s *FileArtifactStore) Load(path string) (m.Artifact, error) {
	// #nosec G304 - artifact path is supplied by the user
	f, err := os.Open(path)
	if err != nil {
		slog.Error("failed to open artifact", "path", path, "error", err)
		return m.Artifact{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	var r io.Reader = f

	if strings.HasSuffix(path, CompressedSuffix) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return m.Artifact{}, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		defer dec.Close()

		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return m.Artifact{}, fmt.Errorf("failed to read artifact: %w", err)
	}

	var artifact m.Artifact

	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&artifact); err != nil {
		slog.Error("failed to decode artifact", "path", path, "error", err)
		return m.Artifact{}, fmt.Errorf("failed to decode artifact: %w", err)
	}

	if artifact.Version != m.ArtifactVersion {
		return m.Artifact{}, fmt.Errorf("unsupported artifact version %d (want %d)", artifact.Version, m.ArtifactVersion)
	}

	return artifact, nil
}
