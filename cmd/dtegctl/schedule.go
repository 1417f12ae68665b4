package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orchestrator"
)

func newScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "manage schedules",
		Commands: []*cli.Command{
			newScheduleAddCommand(),
			newScheduleListCommand(),
			newScheduleUpdateCommand(),
			newScheduleDeleteCommand(),
			newScheduleRunCommand(),
			newScheduleAddDependencyCommand(),
			newScheduleRemoveDependencyCommand(),
			newScheduleReconcileCommand(),
		},
	}
}

func newScheduleAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "add a new schedule",
		ArgsUsage: "<pipeline_ref>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cron", Required: true, Usage: "5-field cron expression"},
			&cli.BoolFlag{Name: "enabled", Value: true, Usage: "install the schedule enabled"},
			&cli.IntFlag{Name: "max-retries", Value: 0},
			&cli.IntFlag{Name: "retry-delay", Value: 0, Usage: "seconds"},
			&cli.StringSliceFlag{Name: "dependency", Usage: "schedule id this one depends on (repeatable)"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ref := command.Args().First()
			if ref == "" {
				return fmt.Errorf("pipeline_ref is required")
			}

			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			cfg, err := comps.Orchestrator.AddSchedule(ctx, orchestrator.CreateScheduleInput{
				PipelineRefKind:   inferRefKind(ref),
				PipelineRef:       ref,
				CronExpression:    command.String("cron"),
				Enabled:           command.Bool("enabled"),
				Dependencies:      command.StringSlice("dependency"),
				MaxRetries:        command.Int("max-retries"),
				RetryDelaySeconds: command.Int("retry-delay"),
			})
			if err != nil {
				return err
			}

			fmt.Println(cfg.ID)
			return nil
		},
	}
}

func newScheduleListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list every schedule",
		Action: func(ctx context.Context, command *cli.Command) error {
			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			cfgs := comps.Orchestrator.ListSchedules()
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPIPELINE_REF\tCRON\tENABLED\tNEXT_RUN\tDEPENDENCIES")
			for _, cfg := range cfgs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\t%s\n",
					cfg.ID, cfg.PipelineRef, cfg.CronExpression, cfg.Enabled,
					cfg.NextRun.Format("2006-01-02T15:04:05"), strings.Join(cfg.Dependencies, ","))
			}
			return tw.Flush()
		},
	}
}

func newScheduleUpdateCommand() *cli.Command {
	return &cli.Command{
		Name:      "update",
		Usage:     "update an existing schedule",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "cron"},
			&cli.BoolFlag{Name: "enabled"},
			&cli.BoolFlag{Name: "disabled"},
			&cli.IntFlag{Name: "max-retries", Value: -1},
			&cli.IntFlag{Name: "retry-delay", Value: -1},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			if id == "" {
				return fmt.Errorf("id is required")
			}

			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			var in orchestrator.UpdateScheduleInput
			if command.IsSet("cron") {
				v := command.String("cron")
				in.CronExpression = &v
			}
			if command.Bool("enabled") {
				v := true
				in.Enabled = &v
			}
			if command.Bool("disabled") {
				v := false
				in.Enabled = &v
			}
			if command.IsSet("max-retries") {
				v := command.Int("max-retries")
				in.MaxRetries = &v
			}
			if command.IsSet("retry-delay") {
				v := command.Int("retry-delay")
				in.RetryDelaySeconds = &v
			}

			cfg, err := comps.Orchestrator.UpdateSchedule(ctx, id, in)
			if err != nil {
				return err
			}
			fmt.Println(cfg.ID, "updated")
			return nil
		},
	}
}

func newScheduleDeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "delete a schedule",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "confirm", Usage: "required to actually delete"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			if id == "" {
				return fmt.Errorf("id is required")
			}
			if !command.Bool("confirm") {
				return fmt.Errorf("refusing to delete %s without --confirm", id)
			}

			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			if err := comps.Orchestrator.RemoveSchedule(ctx, id); err != nil {
				return err
			}
			fmt.Println(id, "deleted")
			return nil
		},
	}
}

func newScheduleRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "trigger a manual run of a schedule",
		ArgsUsage: "<id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "async", Usage: "submit to the task queue instead of blocking"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			if id == "" {
				return fmt.Errorf("id is required")
			}

			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			rec, err := comps.Orchestrator.RunNow(ctx, id, command.Bool("async"))
			if err != nil && rec == nil {
				return err
			}
			fmt.Printf("execution %s status=%s\n", rec.ID, rec.Status)
			if err != nil {
				return err
			}
			return nil
		},
	}
}

func newScheduleAddDependencyCommand() *cli.Command {
	return &cli.Command{
		Name:      "add-dependency",
		Usage:     "add a single dependency edge, rejecting cycles",
		ArgsUsage: "<id> <dependency_id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().Get(0)
			depID := command.Args().Get(1)
			if id == "" || depID == "" {
				return fmt.Errorf("id and dependency_id are required")
			}

			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			cfg, err := comps.Orchestrator.AddDependency(ctx, id, depID)
			if err != nil {
				return err
			}
			fmt.Println(cfg.ID, "now depends on", strings.Join(cfg.Dependencies, ","))
			return nil
		},
	}
}

func newScheduleRemoveDependencyCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove-dependency",
		Usage:     "remove a single dependency edge",
		ArgsUsage: "<id> <dependency_id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().Get(0)
			depID := command.Args().Get(1)
			if id == "" || depID == "" {
				return fmt.Errorf("id and dependency_id are required")
			}

			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			cfg, err := comps.Orchestrator.RemoveDependency(ctx, id, depID)
			if err != nil {
				return err
			}
			fmt.Println(cfg.ID, "now depends on", strings.Join(cfg.Dependencies, ","))
			return nil
		},
	}
}

func newScheduleReconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "reconcile the local schedule set against an external catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "catalog-dir", Required: true, Usage: "directory of <id>.json schedule documents treated as the source of truth"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			comps, _, err := loadComponents()
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			catalog, err := orchestrator.NewFileScheduleCatalog(command.String("catalog-dir"), logger)
			if err != nil {
				return err
			}

			if err := comps.Orchestrator.Reconcile(ctx, catalog); err != nil {
				return err
			}
			fmt.Println("reconciled")
			return nil
		},
	}
}

// inferRefKind guesses whether ref names a filesystem path or a bare
// pipeline id: a ref that exists on disk, or looks path-shaped, resolves
// via PipelineRefPath; anything else goes through the configured catalog.
func inferRefKind(ref string) domain.PipelineRefKind {
	if _, err := os.Stat(ref); err == nil {
		return domain.PipelineRefPath
	}
	if strings.ContainsRune(ref, os.PathSeparator) || strings.HasSuffix(ref, ".json") {
		return domain.PipelineRefPath
	}
	return domain.PipelineRefID
}
