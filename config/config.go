package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is read once at process start (spec.md §6) and passed down
// explicitly — never read again from the environment after Load.
type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	// StorageBaseDir roots schedules/, executions/, pipelines/, logs/ and
	// results/ (spec.md §6).
	StorageBaseDir string `env:"STORAGE_BASE_DIR" envDefault:"./data" validate:"required"`

	// SchedulerIntervalSeconds is the tick interval the scheduler's Run loop
	// sleeps between passes.
	SchedulerIntervalSeconds int `env:"SCHEDULER_INTERVAL_SECONDS" envDefault:"5" validate:"min=1,max=300"`

	// BrokerURL/ResultBackendURL configure the optional Redis-backed
	// TaskQueue; absence of BrokerURL disables it and every pipeline runs
	// in-process (spec.md §4.5).
	BrokerURL        string `env:"BROKER_URL"`
	ResultBackendURL string `env:"RESULT_BACKEND_URL"`
	QueueName        string `env:"QUEUE_NAME" envDefault:"orchestrator-tasks"`

	// AdminUsername/AdminPassword seed the bearer-auth guard on the
	// management HTTP API's schedule and execution routes (spec.md §6, "out of scope
	// beyond recognition" — no user management beyond this single account).
	AdminUsername string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	JWTSecret     string `env:"JWT_SECRET" validate:"required_if=Env production,required_if=Env staging"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`
}

// Load parses and validates Config from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// QueueConfigured reports whether both broker URLs are set, per spec.md
// §4.5's "absence disables it" rule.
func (c *Config) QueueConfigured() bool {
	return c.BrokerURL != "" && c.ResultBackendURL != ""
}
