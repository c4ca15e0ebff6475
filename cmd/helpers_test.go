package cmd

import (
	"context"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/mock"

	"rie.dev/pkg/rie/internal/domain"
	m "rie.dev/pkg/rie/internal/model"
)

// resetConfig restores viper to its defaults before and after the test. Commands built
// in a test rebind their keys to fresh flags, which would otherwise leak into later tests.
func resetConfig(t *testing.T) {
	t.Helper()

	viper.Reset()
	setDefaults()

	t.Cleanup(func() {
		viper.Reset()
		setDefaults()
	})
}

// useWorkflow swaps the package workflow for the duration of the test.
func useWorkflow(t *testing.T, wf domain.Workflow) {
	t.Helper()

	original := workflow
	workflow = wf

	t.Cleanup(func() { workflow = original })
}

type mockWorkflow struct {
	mock.Mock
}

func (w *mockWorkflow) Scan(ctx context.Context, args domain.ScanArgs) (m.Artifact, error) {
	ret := w.Called(ctx, args)
	return ret.Get(0).(m.Artifact), ret.Error(1)
}

func (w *mockWorkflow) Show(ctx context.Context, args domain.ShowArgs) (m.Artifact, error) {
	ret := w.Called(ctx, args)
	return ret.Get(0).(m.Artifact), ret.Error(1)
}

func (w *mockWorkflow) Entrypoints(ctx context.Context, args domain.ShowArgs) (m.Artifact, error) {
	ret := w.Called(ctx, args)
	return ret.Get(0).(m.Artifact), ret.Error(1)
}

func (w *mockWorkflow) Quarantine(ctx context.Context, args domain.QuarantineArgs) (m.ActionReport, error) {
	ret := w.Called(ctx, args)
	return ret.Get(0).(m.ActionReport), ret.Error(1)
}

func (w *mockWorkflow) Restore(ctx context.Context, args domain.RestoreArgs) (m.ActionReport, error) {
	ret := w.Called(ctx, args)
	return ret.Get(0).(m.ActionReport), ret.Error(1)
}

func (w *mockWorkflow) Diff(ctx context.Context, args domain.DiffArgs) (domain.TierDiff, error) {
	ret := w.Called(ctx, args)
	return ret.Get(0).(domain.TierDiff), ret.Error(1)
}

func (w *mockWorkflow) Prune(ctx context.Context, args domain.PruneArgs) (m.PrunePlan, error) {
	ret := w.Called(ctx, args)
	return ret.Get(0).(m.PrunePlan), ret.Error(1)
}

var _ domain.Workflow = (*mockWorkflow)(nil)
