package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
)

func newSchedulerCommand() *cli.Command {
	return &cli.Command{
		Name:  "scheduler",
		Usage: "control the scheduler tick loop",
		Commands: []*cli.Command{
			newSchedulerStartCommand(),
			newSchedulerStopCommand(),
			newSchedulerStatusCommand(),
			newSchedulerRunOnceCommand(),
		},
	}
}

func newSchedulerStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "run the tick loop until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "interval", Value: 0, Usage: "tick interval in seconds, overrides SCHEDULER_INTERVAL_SECONDS"},
			&cli.BoolFlag{Name: "daemon", Usage: "advisory only: pair with nohup/systemd to background this process"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			comps, cfg, err := loadComponents()
			if err != nil {
				return err
			}

			interval := time.Duration(cfg.SchedulerIntervalSeconds) * time.Second
			if command.IsSet("interval") {
				interval = time.Duration(command.Int("interval")) * time.Second
			}

			pidPath := pidFilePath(cfg.StorageBaseDir)
			if err := writePIDFile(pidPath); err != nil {
				return fmt.Errorf("pid file: %w", err)
			}
			defer os.Remove(pidPath)

			runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			comps.Orchestrator.Start(runCtx, interval)
			fmt.Printf("scheduler started, interval=%s\n", interval)

			<-runCtx.Done()
			comps.Orchestrator.Stop()
			fmt.Println("scheduler stopped")
			return nil
		},
	}
}

func newSchedulerStopCommand() *cli.Command {
	return &cli.Command{
		Name:  "stop",
		Usage: "signal a running `scheduler start` process to shut down",
		Action: func(ctx context.Context, command *cli.Command) error {
			_, cfg, err := loadComponents()
			if err != nil {
				return err
			}

			pid, err := readPIDFile(pidFilePath(cfg.StorageBaseDir))
			if err != nil {
				return fmt.Errorf("no running scheduler found: %w", err)
			}

			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("signal pid %d: %w", pid, err)
			}
			fmt.Printf("sent SIGTERM to pid %d\n", pid)
			return nil
		},
	}
}

func newSchedulerStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "report whether a scheduler process is running, schedule counts, and executions in flight",
		Action: func(ctx context.Context, command *cli.Command) error {
			comps, cfg, err := loadComponents()
			if err != nil {
				return err
			}

			pid, err := readPIDFile(pidFilePath(cfg.StorageBaseDir))
			if err != nil || !processAlive(pid) {
				fmt.Println("scheduler: stopped")
			} else {
				fmt.Printf("scheduler: running (pid %d)\n", pid)
			}

			cfgs := comps.Orchestrator.ListSchedules()
			enabled := 0
			for _, c := range cfgs {
				if c.Enabled {
					enabled++
				}
			}
			fmt.Printf("schedules: %d total, %d enabled\n", len(cfgs), enabled)
			running := comps.Orchestrator.RunningExecutions()
			fmt.Printf("executions in flight: %d\n", len(running))
			return nil
		},
	}
}

func newSchedulerRunOnceCommand() *cli.Command {
	return &cli.Command{
		Name:  "run-once",
		Usage: "perform a single tick and exit",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "set every enabled schedule's next_run into the past so all fire"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			now := time.Now().UTC()
			if command.Bool("force") {
				for _, cfg := range comps.Orchestrator.ListSchedules() {
					if !cfg.Enabled {
						continue
					}
					cfg.NextRun = now.Add(-time.Minute)
					if err := comps.ScheduleStore.Put(cfg); err != nil {
						return fmt.Errorf("force schedule %s: %w", cfg.ID, err)
					}
					comps.Scheduler.Put(cfg)
				}
			}

			comps.Scheduler.Tick(ctx, now)
			fmt.Println("tick complete")
			return nil
		},
	}
}

func pidFilePath(storageBaseDir string) string {
	return filepath.Join(storageBaseDir, "dtegd.pid")
}

func writePIDFile(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(raw)))
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
