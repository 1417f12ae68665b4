// Command dtegworker is the distributed-execution half of spec.md §4.5: it
// consumes pipeline envelopes pushed onto the broker by a dtegd/dtegctl
// async dispatch, runs them through the same PipelineRunner the in-process
// path uses, and publishes the terminal ExecutionRecord back so dtegd's
// tick loop can pick it up via TaskQueue.Status/Result. Any number of
// workers may run against the same BROKER_URL; BRPOP hands each envelope to
// exactly one of them.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/dteg/orchestrator/config"
	"github.com/dteg/orchestrator/internal/domain"
	ctxlog "github.com/dteg/orchestrator/internal/log"
	"github.com/dteg/orchestrator/internal/queue"
	"github.com/dteg/orchestrator/internal/queue/redisqueue"
	"github.com/dteg/orchestrator/internal/runner"
	"github.com/dteg/orchestrator/internal/runner/fakeetl"
	"github.com/dteg/orchestrator/internal/wiring"
)

// consumeTimeout bounds each BRPOP so ctx cancellation during shutdown is
// observed promptly instead of blocking indefinitely on an empty queue.
const consumeTimeout = 5 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if !cfg.QueueConfigured() {
		log.Fatal("dtegworker requires BROKER_URL and RESULT_BACKEND_URL to be set")
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	q, err := wiring.NewRedisQueue(cfg)
	if err != nil {
		log.Fatalf("task queue: %v", err)
	}
	defer q.Close()

	run := runner.New(fakeetl.New(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started", "queue", cfg.QueueName)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shut down")
			return
		default:
		}

		if err := consumeOne(ctx, q, run, logger); err != nil {
			logger.Error("consume failed", "error", err)
		}
	}
}

// consumeOne blocks for up to consumeTimeout waiting for the next envelope,
// runs it if one arrived, and publishes the terminal result.
func consumeOne(ctx context.Context, q *redisqueue.Queue, run *runner.Runner, logger *slog.Logger) error {
	executionID, pc, ok, err := q.Consume(ctx, consumeTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	logger.Info("task received", "execution_id", executionID, "pipeline_id", pc.ID)
	rec := &domain.ExecutionRecord{
		ID:        executionID,
		Status:    domain.StatusRunning,
		StartTime: time.Now().UTC(),
	}
	run.Run(ctx, pc, rec)

	handle := queue.TaskHandle(executionID)
	if err := q.PublishResult(ctx, handle, rec); err != nil {
		return err
	}
	logger.Info("task result published", "execution_id", executionID, "status", rec.Status)
	return nil
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
