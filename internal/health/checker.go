package health

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pinger is satisfied by a broker connection (e.g. *redisqueue.Queue).
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckResult represents the health of a single dependency.
type CheckResult struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResult is the top-level health response.
type HealthResult struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker verifies that the durable stores and, if configured, the task
// queue broker are reachable (spec.md §4.2/§4.5).
type Checker struct {
	scheduleDir  string
	executionDir string
	queue        Pinger // nil when no TaskQueue is configured
	logger       *slog.Logger
	gauge        *prometheus.GaugeVec
}

// NewChecker creates a health checker and registers its Prometheus gauge.
// queue may be nil if the orchestrator runs without a distributed TaskQueue.
func NewChecker(scheduleDir, executionDir string, queue Pinger, logger *slog.Logger, reg prometheus.Registerer) *Checker {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "health_check_up",
		Help:      "Whether a dependency is reachable. 1 = up, 0 = down.",
	}, []string{"dependency"})
	reg.MustRegister(gauge)

	return &Checker{
		scheduleDir:  scheduleDir,
		executionDir: executionDir,
		queue:        queue,
		logger:       logger.With("component", "health"),
		gauge:        gauge,
	}
}

// Liveness returns a simple "up" response if the process is running.
func (c *Checker) Liveness(_ context.Context) HealthResult {
	return HealthResult{Status: "up"}
}

// Readiness checks that the schedule/execution store directories exist and
// are directories and, if a TaskQueue broker is configured, that it is
// reachable. Writability is not probed.
func (c *Checker) Readiness(ctx context.Context) HealthResult {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	result := HealthResult{
		Status: "up",
		Checks: make(map[string]CheckResult),
	}

	c.checkDir(&result, "schedule_store", c.scheduleDir)
	c.checkDir(&result, "execution_store", c.executionDir)

	if c.queue != nil {
		if err := c.queue.Ping(checkCtx); err != nil {
			c.logger.Warn("queue broker health check failed", "error", err)
			result.Status = "down"
			result.Checks["queue"] = CheckResult{Status: "down", Error: err.Error()}
			c.gauge.WithLabelValues("queue").Set(0)
		} else {
			result.Checks["queue"] = CheckResult{Status: "up"}
			c.gauge.WithLabelValues("queue").Set(1)
		}
	}

	return result
}

// checkDir probes a store directory by statting it; the stores themselves
// use atomic temp-file+rename writes, so a dir that exists and is a
// directory is sufficient evidence it is usable.
func (c *Checker) checkDir(result *HealthResult, name, dir string) {
	info, err := os.Stat(dir)
	switch {
	case err != nil:
		c.logger.Warn("store directory unreachable", "store", name, "error", err)
		result.Status = "down"
		result.Checks[name] = CheckResult{Status: "down", Error: err.Error()}
		c.gauge.WithLabelValues(name).Set(0)
	case !info.IsDir():
		result.Status = "down"
		result.Checks[name] = CheckResult{Status: "down", Error: "not a directory"}
		c.gauge.WithLabelValues(name).Set(0)
	default:
		result.Checks[name] = CheckResult{Status: "up"}
		c.gauge.WithLabelValues(name).Set(1)
	}
}
