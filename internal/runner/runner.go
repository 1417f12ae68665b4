// Package runner implements spec.md §4.6: in-process pipeline execution
// that never raises to its caller — every outcome is reflected on the
// ExecutionRecord it is given.
package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/dteg/orchestrator/internal/domain"
)

// ETLEngine is the opaque "run a pipeline" collaborator spec.md §1 treats
// as external: the extractor/transformer/loader runtime itself is out of
// scope for this module. It must never block past ctx's deadline/cancel.
type ETLEngine interface {
	Run(ctx context.Context, pc *domain.PipelineConfig) (logs []string, err error)
}

// Runner is the PipelineRunner of spec.md §4.6.
type Runner struct {
	engine ETLEngine
	logger *slog.Logger
}

// New builds a Runner that delegates to engine.
func New(engine ETLEngine, logger *slog.Logger) *Runner {
	return &Runner{engine: engine, logger: logger.With("component", "runner")}
}

// Run executes pc in the current process, capturing logs and mutating rec
// in place to a terminal state. It never panics or returns an error to the
// caller — PIPELINE_FAILURE is recorded on rec, not propagated.
func (r *Runner) Run(ctx context.Context, pc *domain.PipelineConfig, rec *domain.ExecutionRecord) {
	r.logger.InfoContext(ctx, "pipeline run starting", "execution_id", rec.ID, "pipeline_id", pc.ID)

	logs, err := r.safeRun(ctx, pc)
	for _, line := range logs {
		rec.AppendLog(line)
	}

	now := time.Now().UTC()
	if err != nil {
		msg := err.Error()
		rec.MarkTerminal(domain.StatusFailed, &msg, now)
		r.logger.ErrorContext(ctx, "pipeline run failed", "execution_id", rec.ID, "error", err)
		return
	}
	rec.MarkTerminal(domain.StatusSuccess, nil, now)
	r.logger.InfoContext(ctx, "pipeline run succeeded", "execution_id", rec.ID)
}

// safeRun recovers a panicking engine so one bad pipeline cannot take down
// the scheduler tick that dispatched it synchronously.
func (r *Runner) safeRun(ctx context.Context, pc *domain.PipelineConfig) (logs []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = panicAsError(p)
		}
	}()
	return r.engine.Run(ctx, pc)
}
