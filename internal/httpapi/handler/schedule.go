package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orcherr"
	"github.com/dteg/orchestrator/internal/orchestrator"
)

// ScheduleHandler exposes the Orchestrator's schedule operations over HTTP
// (spec.md §4.1/§4.8), grounded on the teacher's ScheduleHandler shape.
type ScheduleHandler struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewScheduleHandler builds a ScheduleHandler.
func NewScheduleHandler(orch *orchestrator.Orchestrator, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{orch: orch, logger: logger.With("component", "schedule_handler")}
}

type createScheduleRequest struct {
	ID                string   `json:"id"`
	PipelineRefKind   string   `json:"pipeline_ref_kind" binding:"required,oneof=path id"`
	PipelineRef       string   `json:"pipeline_ref"      binding:"required"`
	CronExpression    string   `json:"cron_expression"   binding:"required"`
	Enabled           bool     `json:"enabled"`
	Dependencies      []string `json:"dependencies"`
	MaxRetries        int      `json:"max_retries"`
	RetryDelaySeconds int      `json:"retry_delay_seconds"`
}

type scheduleResponse struct {
	ID                string                  `json:"id"`
	PipelineRefKind   domain.PipelineRefKind  `json:"pipeline_ref_kind"`
	PipelineRef       string                  `json:"pipeline_ref"`
	CronExpression    string                  `json:"cron_expression"`
	Enabled           bool                    `json:"enabled"`
	Dependencies      []string                `json:"dependencies"`
	MaxRetries        int                     `json:"max_retries"`
	RetryDelaySeconds int                     `json:"retry_delay_seconds"`
	NextRun           time.Time               `json:"next_run"`
	LastRunTime       *time.Time              `json:"last_run_time,omitempty"`
	LastRunStatus     *domain.ExecutionStatus `json:"last_run_status,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

func toScheduleResponse(cfg *domain.ScheduleConfig) scheduleResponse {
	return scheduleResponse{
		ID:                cfg.ID,
		PipelineRefKind:   cfg.PipelineRefKind,
		PipelineRef:       cfg.PipelineRef,
		CronExpression:    cfg.CronExpression,
		Enabled:           cfg.Enabled,
		Dependencies:      cfg.Dependencies,
		MaxRetries:        cfg.MaxRetries,
		RetryDelaySeconds: cfg.RetryDelaySeconds,
		NextRun:           cfg.NextRun,
		LastRunTime:       cfg.LastRunTime,
		LastRunStatus:     cfg.LastRunStatus,
		CreatedAt:         cfg.CreatedAt,
		UpdatedAt:         cfg.UpdatedAt,
	}
}

func writeOrchError(c *gin.Context, logger *slog.Logger, op string, err error) {
	switch {
	case orcherr.Is(err, orcherr.KindNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errScheduleNotFound})
	case orcherr.Is(err, orcherr.KindValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error(op, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
	}
}

// Create adds a new schedule (spec.md §4.1).
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req createScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	cfg, err := h.orch.AddSchedule(c.Request.Context(), orchestrator.CreateScheduleInput{
		ID:                req.ID,
		PipelineRefKind:   domain.PipelineRefKind(req.PipelineRefKind),
		PipelineRef:       req.PipelineRef,
		CronExpression:    req.CronExpression,
		Enabled:           req.Enabled,
		Dependencies:      req.Dependencies,
		MaxRetries:        req.MaxRetries,
		RetryDelaySeconds: req.RetryDelaySeconds,
	})
	if err != nil {
		writeOrchError(c, h.logger, "create schedule", err)
		return
	}

	c.JSON(http.StatusCreated, toScheduleResponse(cfg))
}

// List returns every schedule.
func (h *ScheduleHandler) List(c *gin.Context) {
	cfgs := h.orch.ListSchedules()
	items := make([]scheduleResponse, len(cfgs))
	for i, cfg := range cfgs {
		items[i] = toScheduleResponse(cfg)
	}
	c.JSON(http.StatusOK, gin.H{"schedules": items})
}

// GetByID returns a single schedule.
func (h *ScheduleHandler) GetByID(c *gin.Context) {
	id := c.Param("id")
	cfg, err := h.orch.GetSchedule(id)
	if err != nil {
		writeOrchError(c, h.logger, "get schedule", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(cfg))
}

type updateScheduleRequest struct {
	CronExpression    *string   `json:"cron_expression"`
	Enabled           *bool     `json:"enabled"`
	Dependencies      *[]string `json:"dependencies"`
	MaxRetries        *int      `json:"max_retries"`
	RetryDelaySeconds *int      `json:"retry_delay_seconds"`
}

// Update applies a partial update to a schedule.
func (h *ScheduleHandler) Update(c *gin.Context) {
	id := c.Param("id")
	var req updateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	cfg, err := h.orch.UpdateSchedule(c.Request.Context(), id, orchestrator.UpdateScheduleInput{
		CronExpression:    req.CronExpression,
		Enabled:           req.Enabled,
		Dependencies:      req.Dependencies,
		MaxRetries:        req.MaxRetries,
		RetryDelaySeconds: req.RetryDelaySeconds,
	})
	if err != nil {
		writeOrchError(c, h.logger, "update schedule", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(cfg))
}

// Delete removes a schedule.
func (h *ScheduleHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.orch.RemoveSchedule(c.Request.Context(), id); err != nil {
		writeOrchError(c, h.logger, "delete schedule", err)
		return
	}
	c.Status(http.StatusNoContent)
}

type dependencyRequest struct {
	DependencyID string `json:"dependency_id" binding:"required"`
}

// AddDependency adds a single dependency edge (spec.md §4.8), rejecting
// cycles and unknown schedules.
func (h *ScheduleHandler) AddDependency(c *gin.Context) {
	id := c.Param("id")
	var req dependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidRequest})
		return
	}

	cfg, err := h.orch.AddDependency(c.Request.Context(), id, req.DependencyID)
	if err != nil {
		writeOrchError(c, h.logger, "add dependency", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(cfg))
}

// RemoveDependency drops a single dependency edge (spec.md §4.8).
func (h *ScheduleHandler) RemoveDependency(c *gin.Context) {
	id := c.Param("id")
	depID := c.Param("dep_id")

	cfg, err := h.orch.RemoveDependency(c.Request.Context(), id, depID)
	if err != nil {
		writeOrchError(c, h.logger, "remove dependency", err)
		return
	}
	c.JSON(http.StatusOK, toScheduleResponse(cfg))
}

// Run triggers an out-of-band execution (spec.md §4.7.4). ?async=true
// submits to the TaskQueue if one is configured instead of blocking.
func (h *ScheduleHandler) Run(c *gin.Context) {
	id := c.Param("id")
	async := c.Query("async") == "true"

	rec, err := h.orch.RunNow(c.Request.Context(), id, async)
	if err != nil {
		if rec == nil {
			writeOrchError(c, h.logger, "run schedule", err)
			return
		}
		// Partial failure: e.g. queue submission failed but a RUNNING
		// record was already created and persisted.
		h.logger.Error("run schedule", "schedule_id", id, "error", err)
	}
	c.JSON(http.StatusAccepted, toExecutionResponse(rec))
}
