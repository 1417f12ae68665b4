// Package queue implements the optional TaskQueue of spec.md §4.5: handing
// pipeline execution off to a distributed worker pool addressed by a broker
// URL. Absence of a configured TaskQueue is not an error — callers fall
// back to in-process execution.
package queue

import (
	"context"

	"github.com/dteg/orchestrator/internal/domain"
)

// TaskStatus mirrors spec.md §4.5's status vocabulary.
type TaskStatus string

const (
	TaskPending TaskStatus = "PENDING"
	TaskRunning TaskStatus = "RUNNING"
	TaskSuccess TaskStatus = "SUCCESS"
	TaskFailure TaskStatus = "FAILURE"
	TaskUnknown TaskStatus = "UNKNOWN"
)

// TaskHandle identifies a submitted task. In this implementation it is the
// execution id, so results can be looked up without a separate mapping.
type TaskHandle string

// TaskQueue is the broker-backed dispatch seam of spec.md §4.5.
type TaskQueue interface {
	// Submit hands pc off for async execution under executionID and returns
	// immediately, before execution starts.
	Submit(ctx context.Context, pc *domain.PipelineConfig, executionID string) (TaskHandle, error)
	Status(ctx context.Context, handle TaskHandle) (TaskStatus, error)
	Cancel(ctx context.Context, handle TaskHandle, force bool) (bool, error)
	ActiveTasks(ctx context.Context) ([]TaskHandle, error)
	// Result returns the terminal ExecutionRecord a worker published for
	// handle, once Status reports it SUCCESS or FAILURE.
	Result(ctx context.Context, handle TaskHandle) (*domain.ExecutionRecord, error)
}
