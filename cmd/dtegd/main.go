package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dteg/orchestrator/config"
	"github.com/dteg/orchestrator/internal/health"
	"github.com/dteg/orchestrator/internal/httpapi"
	ctxlog "github.com/dteg/orchestrator/internal/log"
	"github.com/dteg/orchestrator/internal/metrics"
	"github.com/dteg/orchestrator/internal/queue"
	"github.com/dteg/orchestrator/internal/wiring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	comps, err := wiring.Build(cfg, logger)
	if err != nil {
		stop()
		log.Fatalf("wiring: %v", err)
	}

	metrics.Register()
	metrics.ProcessStartTime.SetToCurrentTime()

	checker := health.NewChecker(
		comps.ScheduleStore.Dir(),
		comps.ExecutionStore.Dir(),
		asPinger(comps.Queue),
		logger,
		prometheus.DefaultRegisterer,
	)

	comps.Orchestrator.Start(ctx, time.Duration(cfg.SchedulerIntervalSeconds)*time.Second)
	logger.Info("scheduler started", "interval_seconds", cfg.SchedulerIntervalSeconds)

	router := httpapi.NewRouter(comps.Orchestrator, checker, logger, cfg.AdminUsername, cfg.AdminPassword, []byte(cfg.JWTSecret))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)

	go func() {
		logger.Info("management API started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("management API: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	comps.Orchestrator.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("management API shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("shut down")
}

// asPinger adapts an optional queue.TaskQueue to health.Pinger, passing nil
// through unchanged so Readiness skips the check when no queue is
// configured.
func asPinger(q queue.TaskQueue) health.Pinger {
	if q == nil {
		return nil
	}
	if p, ok := q.(health.Pinger); ok {
		return p
	}
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
