package domain

import (
	"errors"
	"time"
)

var (
	ErrExecutionNotFound = errors.New("execution record not found")
)

// ExecutionStatus is the ExecutionRecord state-machine position (spec.md §4.7.5).
type ExecutionStatus string

const (
	StatusPending   ExecutionStatus = "PENDING"
	StatusRunning   ExecutionStatus = "RUNNING"
	StatusSuccess   ExecutionStatus = "SUCCESS"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusRetrying  ExecutionStatus = "RETRYING"
	StatusCancelled ExecutionStatus = "CANCELLED"
)

// IsTerminal reports whether no further transitions occur from this status.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// TriggerKind records what caused an ExecutionRecord to be created.
type TriggerKind string

const (
	TriggerCron       TriggerKind = "CRON"
	TriggerManual     TriggerKind = "MANUAL"
	TriggerAPI        TriggerKind = "API"
	TriggerDependency TriggerKind = "DEPENDENCY"
)

// ExecutionRecord is one attempted pipeline run. See spec.md §3.
type ExecutionRecord struct {
	ID             string          `json:"id"`
	ScheduleID     string          `json:"schedule_id"`
	PipelineID     string          `json:"pipeline_id"`
	Status         ExecutionStatus `json:"status"`
	Trigger        TriggerKind     `json:"trigger"`
	StartTime      time.Time       `json:"start_time"`
	EndTime        *time.Time      `json:"end_time,omitempty"`
	RetryCount     int             `json:"retry_count"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	Logs           []string        `json:"logs"`
	AttemptChainID string          `json:"attempt_chain_id,omitempty"`
}

// AppendLog adds one captured log line. Logs are append-only until terminal.
func (e *ExecutionRecord) AppendLog(line string) {
	e.Logs = append(e.Logs, line)
}

// MarkTerminal transitions the record to a terminal status, setting EndTime.
func (e *ExecutionRecord) MarkTerminal(status ExecutionStatus, errMsg *string, now time.Time) {
	e.Status = status
	e.EndTime = &now
	e.ErrorMessage = errMsg
}

// Clone returns a deep-enough copy safe to hand out of the scheduler's lock.
func (e *ExecutionRecord) Clone() *ExecutionRecord {
	if e == nil {
		return nil
	}
	out := *e
	out.Logs = append([]string(nil), e.Logs...)
	if e.EndTime != nil {
		t := *e.EndTime
		out.EndTime = &t
	}
	if e.ErrorMessage != nil {
		m := *e.ErrorMessage
		out.ErrorMessage = &m
	}
	return &out
}
