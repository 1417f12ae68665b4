// Package domain holds the orchestration core's persistent types: the
// scheduled pipeline configuration and the record of each attempted run.
package domain

import (
	"errors"
	"time"
)

var (
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrInvalidCronExpr      = errors.New("invalid cron expression")
	ErrSelfDependency       = errors.New("a schedule cannot depend on itself")
	ErrDuplicateDependency  = errors.New("dependency already present")
	ErrDependencyCycle      = errors.New("adding this dependency would create a cycle")
	ErrUnknownDependency    = errors.New("dependency references an unknown schedule")
)

// PipelineRefKind discriminates how ScheduleConfig.PipelineRef resolves.
type PipelineRefKind string

const (
	PipelineRefPath PipelineRefKind = "path"
	PipelineRefID   PipelineRefKind = "id"
)

// ScheduleConfig is one scheduled pipeline. See spec.md §3.
type ScheduleConfig struct {
	ID                string          `json:"id"`
	PipelineRefKind   PipelineRefKind `json:"pipeline_ref_kind"`
	PipelineRef       string          `json:"pipeline_ref"`
	CronExpression    string          `json:"cron_expression"`
	Enabled           bool            `json:"enabled"`
	Dependencies      []string        `json:"dependencies"`
	MaxRetries        int             `json:"max_retries"`
	RetryDelaySeconds int             `json:"retry_delay_seconds"`
	NextRun           time.Time       `json:"next_run"`
	LastRunTime       *time.Time      `json:"last_run_time,omitempty"`
	LastRunStatus     *ExecutionStatus `json:"last_run_status,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Clone returns a deep-enough copy safe to hand out of the scheduler's lock.
func (s *ScheduleConfig) Clone() *ScheduleConfig {
	if s == nil {
		return nil
	}
	out := *s
	out.Dependencies = append([]string(nil), s.Dependencies...)
	if s.LastRunTime != nil {
		t := *s.LastRunTime
		out.LastRunTime = &t
	}
	if s.LastRunStatus != nil {
		st := *s.LastRunStatus
		out.LastRunStatus = &st
	}
	return &out
}

// HasDependency reports whether depID is already listed.
func (s *ScheduleConfig) HasDependency(depID string) bool {
	for _, d := range s.Dependencies {
		if d == depID {
			return true
		}
	}
	return false
}
