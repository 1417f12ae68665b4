// Package fakeetl provides an in-memory ETLEngine for tests and for
// operators without a real ETL plugin runtime wired in.
package fakeetl

import (
	"context"
	"fmt"

	"github.com/dteg/orchestrator/internal/domain"
)

// Engine runs each step as a no-op, optionally failing for configured
// pipeline ids — enough to exercise the orchestration core's success and
// failure paths without a real extractor/transformer/loader.
type Engine struct {
	FailingPipelineIDs map[string]string // pipeline id -> error message
}

// New returns an Engine that succeeds for every pipeline.
func New() *Engine {
	return &Engine{FailingPipelineIDs: map[string]string{}}
}

func (e *Engine) Run(ctx context.Context, pc *domain.PipelineConfig) ([]string, error) {
	logs := make([]string, 0, len(pc.Steps)+1)
	logs = append(logs, fmt.Sprintf("starting pipeline %s (%d steps)", pc.ID, len(pc.Steps)))

	for _, step := range pc.Steps {
		select {
		case <-ctx.Done():
			return logs, ctx.Err()
		default:
		}
		logs = append(logs, fmt.Sprintf("step %s (%s) ok", step.Name, step.Type))
	}

	if msg, fails := e.FailingPipelineIDs[pc.ID]; fails {
		return logs, fmt.Errorf("%s", msg)
	}
	return logs, nil
}
