package model

import (
	"errors"
	"fmt"
)

// Fatal conditions. Everything else degrades evidence instead of aborting.
var (
	ErrRepositoryUnreadable = errors.New("repository root is unreadable")
	ErrLocked               = errors.New("quarantine is locked by another process")
	ErrArtifactStale        = errors.New("artifact does not belong to this repository")
)

// ConfigurationError reports a malformed surface, domain or scan setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

// RestoreConflict is reported when the original location of a quarantined file is occupied.
type RestoreConflict struct {
	Path string
}

func (e *RestoreConflict) Error() string {
	return fmt.Sprintf("restore conflict: %s already exists", e.Path)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// ScanAborted is returned when a scan is cancelled after evidence collection started.
// The evidence gathered so far is kept in SpillPath.
type ScanAborted struct {
	SpillPath string
	Err       error
}

func (e *ScanAborted) Error() string {
	return fmt.Sprintf("scan aborted, partial evidence kept in %s: %v", e.SpillPath, e.Err)
}

func (e *ScanAborted) Unwrap() error {
	return e.Err
}
