// Package controller provides output adapters for displaying scan artifacts and ledger reports.
package controller

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	m "rie.dev/pkg/rie/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeScan StartMode = iota
	ModeShow
	ModeAction
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// Mode returns the selected mode.
func (c StartConfig) Mode() StartMode {
	return c.mode
}

// WithScanMode shows stage progress while a scan runs.
func WithScanMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeScan
	}
}

// WithShowMode displays a stored artifact.
func WithShowMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeShow
	}
}

// WithActionMode displays quarantine and restore outcomes.
func WithActionMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeAction
	}
}

func newStartConfig(options ...StartOption) StartConfig {
	cfg := StartConfig{mode: ModeShow}
	for _, opt := range options {
		opt(&cfg)
	}

	return cfg
}

// UI defines the interface for displaying scan and act results.
// Implementations can use different output methods (simple text, TUI, etc).
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayStage(ctx context.Context, stage string, detail string)
	DisplayScanSummary(ctx context.Context, artifact m.Artifact) error
	DisplayEntrypoints(ctx context.Context, candidates []m.Candidate, triangulation m.Triangulation) error
	DisplayActionReport(ctx context.Context, report m.ActionReport) error
	DisplayTierDiff(ctx context.Context, changes []m.TierChange, unified string) error
	DisplayPrunePlan(ctx context.Context, plan m.PrunePlan) error
}

// NewUI returns a TUI for terminals and a SimpleUI otherwise. Output follows the
// command's current writer, so tests can redirect it with SetOut.
func NewUI(cmd *cobra.Command, tty bool) UI {
	out := commandWriter{cmd: cmd}
	if tty {
		return NewTUI(out)
	}

	return NewSimpleUI(out)
}

// IsTTY reports whether f is an interactive terminal.
func IsTTY(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

type commandWriter struct {
	cmd *cobra.Command
}

func (w commandWriter) Write(p []byte) (int, error) {
	return w.cmd.OutOrStdout().Write(p)
}

var _ io.Writer = commandWriter{}
