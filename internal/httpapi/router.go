// Package httpapi is the minimal management HTTP surface of spec.md §6:
// schedule CRUD, dependency edges, run, execution status, cancel — never the out-of-scope
// dashboard. It talks to the orchestration core only through
// internal/orchestrator, grounded on the teacher's transport/http package.
package httpapi

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/dteg/orchestrator/internal/health"
	"github.com/dteg/orchestrator/internal/httpapi/handler"
	"github.com/dteg/orchestrator/internal/httpapi/middleware"
	"github.com/dteg/orchestrator/internal/orchestrator"
)

// NewRouter assembles the gin engine: public health/login routes, and
// bearer-guarded schedule/execution routes. /metrics is served separately
// by metrics.NewServer.
func NewRouter(orch *orchestrator.Orchestrator, checker *health.Checker, logger *slog.Logger, adminUsername, adminPassword string, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	authHandler := handler.NewAuthHandler(adminUsername, adminPassword, jwtKey)
	scheduleHandler := handler.NewScheduleHandler(orch, logger)
	executionHandler := handler.NewExecutionHandler(orch, logger)
	healthHandler := handler.NewHealthHandler(checker)

	r.GET("/livez", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.POST("/auth/login", authHandler.Login)

	auth := middleware.Auth(jwtKey)

	schedules := r.Group("/schedules", auth)
	schedules.POST("", scheduleHandler.Create)
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/:id", scheduleHandler.GetByID)
	schedules.PATCH("/:id", scheduleHandler.Update)
	schedules.DELETE("/:id", scheduleHandler.Delete)
	schedules.POST("/:id/run", scheduleHandler.Run)
	schedules.POST("/:id/dependencies", scheduleHandler.AddDependency)
	schedules.DELETE("/:id/dependencies/:dep_id", scheduleHandler.RemoveDependency)

	executions := r.Group("/executions", auth)
	executions.GET("", executionHandler.List)
	executions.GET("/running", executionHandler.Running)
	executions.GET("/:id", executionHandler.GetByID)
	executions.POST("/:id/cancel", executionHandler.Cancel)

	return r
}
