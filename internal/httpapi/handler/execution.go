package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orchestrator"
	"github.com/dteg/orchestrator/internal/store/executionstore"
)

// ExecutionHandler exposes execution history and control operations over
// HTTP (spec.md §4.3, §4.7.4, §5).
type ExecutionHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewExecutionHandler builds an ExecutionHandler.
func NewExecutionHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{orch: orch, logger: logger.With("component", "execution_handler")}
}

type executionResponse struct {
	ID             string                 `json:"id"`
	ScheduleID     string                 `json:"schedule_id"`
	PipelineID     string                 `json:"pipeline_id"`
	Status         domain.ExecutionStatus `json:"status"`
	Trigger        domain.TriggerKind     `json:"trigger"`
	StartTime      time.Time              `json:"start_time"`
	EndTime        *time.Time             `json:"end_time,omitempty"`
	RetryCount     int                    `json:"retry_count"`
	ErrorMessage   *string                `json:"error_message,omitempty"`
	Logs           []string               `json:"logs"`
	AttemptChainID string                 `json:"attempt_chain_id"`
}

func toExecutionResponse(rec *domain.ExecutionRecord) executionResponse {
	if rec == nil {
		return executionResponse{}
	}
	return executionResponse{
		ID:             rec.ID,
		ScheduleID:     rec.ScheduleID,
		PipelineID:     rec.PipelineID,
		Status:         rec.Status,
		Trigger:        rec.Trigger,
		StartTime:      rec.StartTime,
		EndTime:        rec.EndTime,
		RetryCount:     rec.RetryCount,
		ErrorMessage:   rec.ErrorMessage,
		Logs:           rec.Logs,
		AttemptChainID: rec.AttemptChainID,
	}
}

// GetByID returns a single execution record.
func (h *ExecutionHandler) GetByID(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.orch.GetExecution(id)
	if err != nil {
		writeOrchError(c, h.logger, "get execution", err)
		return
	}
	c.JSON(http.StatusOK, toExecutionResponse(rec))
}

// List returns execution history, optionally filtered by schedule_id,
// pipeline_id, or status query params.
func (h *ExecutionHandler) List(c *gin.Context) {
	f := executionstore.Filter{
		PipelineID: c.Query("pipeline_id"),
		ScheduleID: c.Query("schedule_id"),
		Status:     domain.ExecutionStatus(c.Query("status")),
	}

	recs, err := h.orch.ListExecutions(f)
	if err != nil {
		h.logger.Error("list executions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	items := make([]executionResponse, len(recs))
	for i, rec := range recs {
		items[i] = toExecutionResponse(rec)
	}
	c.JSON(http.StatusOK, gin.H{"executions": items})
}

// Running lists every execution currently in flight.
func (h *ExecutionHandler) Running(c *gin.Context) {
	recs := h.orch.RunningExecutions()
	items := make([]executionResponse, len(recs))
	for i, rec := range recs {
		items[i] = toExecutionResponse(rec)
	}
	c.JSON(http.StatusOK, gin.H{"executions": items})
}

// Cancel best-effort cancels an in-flight execution (spec.md §5).
func (h *ExecutionHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	force := c.Query("force") == "true"

	ok, err := h.orch.CancelExecution(c.Request.Context(), id, force)
	if err != nil {
		writeOrchError(c, h.logger, "cancel execution", err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errExecutionNotFound})
		return
	}
	c.Status(http.StatusNoContent)
}
