// Command dtegctl is the operator CLI of spec.md §6. Each invocation is a
// fresh process that wires the orchestration core straight onto the
// configured storage directory — there is no RPC to a running daemon, so
// dtegctl and dtegd can be run interchangeably against the same state.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dteg/orchestrator/config"
	"github.com/dteg/orchestrator/internal/wiring"
)

func main() {
	cmd := &cli.Command{
		Name:                  "dtegctl",
		Usage:                 "manage dteg schedules and the scheduler process",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			newScheduleCommand(),
			newSchedulerCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadComponents builds the orchestration core from config, quiet by
// default — the CLI talks in exit codes and single-line stderr messages,
// not structured logs.
func loadComponents() (*wiring.Components, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	comps, err := wiring.Build(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return comps, cfg, nil
}
