// Package wiring assembles the orchestration core's collaborators from
// config, shared between cmd/dtegctl and cmd/dtegd so the CLI and the
// daemon never disagree about how a Scheduler gets built (spec.md §6).
package wiring

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/dteg/orchestrator/config"
	"github.com/dteg/orchestrator/internal/orchestrator"
	"github.com/dteg/orchestrator/internal/queue"
	"github.com/dteg/orchestrator/internal/queue/redisqueue"
	"github.com/dteg/orchestrator/internal/registry"
	"github.com/dteg/orchestrator/internal/runner"
	"github.com/dteg/orchestrator/internal/runner/fakeetl"
	"github.com/dteg/orchestrator/internal/scheduler"
	"github.com/dteg/orchestrator/internal/store/executionstore"
	"github.com/dteg/orchestrator/internal/store/schedulestore"
)

// Components bundles everything a CLI command or daemon process needs,
// built from a single StorageBaseDir (spec.md §6's persisted state
// layout).
type Components struct {
	ScheduleStore  *schedulestore.Store
	ExecutionStore *executionstore.Store
	Registry       *registry.Registry
	Runner         *runner.Runner
	Queue          queue.TaskQueue // nil when BROKER_URL/RESULT_BACKEND_URL are unset
	Scheduler      *scheduler.Scheduler
	Orchestrator   *orchestrator.Orchestrator
}

// Build constructs every collaborator named in cfg and loads the current
// schedule set from disk. The ETL runtime itself stays an external
// collaborator (spec.md §1) — absent a real plugin, it runs fakeetl so the
// orchestration core has something to dispatch to.
func Build(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	scheduleDir := filepath.Join(cfg.StorageBaseDir, "schedules")
	executionDir := filepath.Join(cfg.StorageBaseDir, "executions")
	pipelineDir := filepath.Join(cfg.StorageBaseDir, "pipelines")
	for _, dir := range []string{scheduleDir, executionDir, pipelineDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir %s: %w", dir, err)
		}
	}

	scheduleStore, err := schedulestore.New(scheduleDir, logger)
	if err != nil {
		return nil, fmt.Errorf("schedule store: %w", err)
	}
	executionStore, err := executionstore.New(executionDir, logger)
	if err != nil {
		return nil, fmt.Errorf("execution store: %w", err)
	}

	reg := registry.New(registry.NewFileCatalog(pipelineDir))
	eng := fakeetl.New()
	run := runner.New(eng, logger)

	var tq queue.TaskQueue
	if cfg.QueueConfigured() {
		tq, err = NewRedisQueue(cfg)
		if err != nil {
			return nil, fmt.Errorf("task queue: %w", err)
		}
	}

	sch, err := scheduler.New(scheduler.Config{
		ScheduleStore:  scheduleStore,
		ExecutionStore: executionStore,
		Registry:       reg,
		Runner:         run,
		TaskQueue:      tq,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		ScheduleStore:  scheduleStore,
		ExecutionStore: executionStore,
		Scheduler:      sch,
		Logger:         logger,
	})

	return &Components{
		ScheduleStore:  scheduleStore,
		ExecutionStore: executionStore,
		Registry:       reg,
		Runner:         run,
		Queue:          tq,
		Scheduler:      sch,
		Orchestrator:   orch,
	}, nil
}

// NewRedisQueue parses BrokerURL into the addr/password/db redisqueue.New
// wants. ResultBackendURL is expected to address the same Redis instance
// (spec.md §4.5 treats both as one TaskQueue). Exported so cmd/dtegworker
// can connect to the identical broker without duplicating the config
// parsing.
func NewRedisQueue(cfg *config.Config) (*redisqueue.Queue, error) {
	opts, err := redis.ParseURL(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse BROKER_URL: %w", err)
	}
	return redisqueue.New(opts.Addr, opts.Password, opts.DB, cfg.QueueName)
}
