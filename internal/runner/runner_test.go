package runner_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/runner"
	"github.com/dteg/orchestrator/internal/runner/fakeetl"
	"github.com/stretchr/testify/require"
)

func newRecord() *domain.ExecutionRecord {
	return &domain.ExecutionRecord{
		ID:        "exec-1",
		Status:    domain.StatusRunning,
		Trigger:   domain.TriggerCron,
		StartTime: time.Now().UTC(),
	}
}

func TestRunSuccess(t *testing.T) {
	engine := fakeetl.New()
	r := runner.New(engine, slog.Default())

	rec := newRecord()
	pc := &domain.PipelineConfig{ID: "p1", Steps: []domain.PipelineStep{{Name: "extract", Type: "noop"}}}

	r.Run(context.Background(), pc, rec)

	require.Equal(t, domain.StatusSuccess, rec.Status)
	require.NotNil(t, rec.EndTime)
	require.Nil(t, rec.ErrorMessage)
	require.NotEmpty(t, rec.Logs)
}

func TestRunFailure(t *testing.T) {
	engine := fakeetl.New()
	engine.FailingPipelineIDs["p1"] = "connector unreachable"
	r := runner.New(engine, slog.Default())

	rec := newRecord()
	pc := &domain.PipelineConfig{ID: "p1"}

	r.Run(context.Background(), pc, rec)

	require.Equal(t, domain.StatusFailed, rec.Status)
	require.NotNil(t, rec.EndTime)
	require.NotNil(t, rec.ErrorMessage)
	require.Contains(t, *rec.ErrorMessage, "connector unreachable")
}

func TestRunRecoversPanic(t *testing.T) {
	r := runner.New(panicEngine{}, slog.Default())
	rec := newRecord()

	r.Run(context.Background(), &domain.PipelineConfig{ID: "p1"}, rec)

	require.Equal(t, domain.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
}

type panicEngine struct{}

func (panicEngine) Run(ctx context.Context, pc *domain.PipelineConfig) ([]string, error) {
	panic("boom")
}
