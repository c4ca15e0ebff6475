package controller

import (
	"context"
	"fmt"
	"io"

	m "rie.dev/pkg/rie/internal/model"
)

// SimpleUI writes plain tables to an output stream, typically cobra's OutOrStdout.
type SimpleUI struct {
	out  io.Writer
	mode StartMode
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(out io.Writer) *SimpleUI {
	return &SimpleUI{out: out}
}

// Start initializes the UI.
func (s *SimpleUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mode = newStartConfig(options...).Mode()

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(_ context.Context) {}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(_ context.Context) {
	// SimpleUI doesn't block - it just prints and continues
}

// DisplayStage prints scan progress.
func (s *SimpleUI) DisplayStage(ctx context.Context, stage string, detail string) {
	if ctx.Err() != nil || s.mode != ModeScan {
		return
	}

	s.printf("==> %s: %s\n", stage, detail)
}

// DisplayScanSummary prints the artifact summary tables.
func (s *SimpleUI) DisplayScanSummary(ctx context.Context, artifact m.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("\n%s", renderScanSummary(artifact))

	return nil
}

// DisplayEntrypoints prints the ranked candidates.
func (s *SimpleUI) DisplayEntrypoints(ctx context.Context, candidates []m.Candidate, triangulation m.Triangulation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(candidates) == 0 {
		s.printf("No entrypoint candidates found.\n")
		return nil
	}

	s.printf("%s", renderEntrypoints(candidates, triangulation))

	return nil
}

// DisplayActionReport prints quarantine or restore outcomes.
func (s *SimpleUI) DisplayActionReport(ctx context.Context, report m.ActionReport) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderActionReport(report))

	return nil
}

// DisplayTierDiff prints tier changes between two artifacts.
func (s *SimpleUI) DisplayTierDiff(ctx context.Context, changes []m.TierChange, unified string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderTierDiff(changes, unified))

	return nil
}

// DisplayPrunePlan prints the proposed cleanup.
func (s *SimpleUI) DisplayPrunePlan(ctx context.Context, plan m.PrunePlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.printf("%s", renderPrunePlan(plan))

	return nil
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
