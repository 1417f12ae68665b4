package orchestrator_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orcherr"
	"github.com/dteg/orchestrator/internal/orchestrator"
	"github.com/dteg/orchestrator/internal/registry"
	"github.com/dteg/orchestrator/internal/runner"
	"github.com/dteg/orchestrator/internal/runner/fakeetl"
	"github.com/dteg/orchestrator/internal/scheduler"
	"github.com/dteg/orchestrator/internal/store/executionstore"
	"github.com/dteg/orchestrator/internal/store/schedulestore"
	"github.com/stretchr/testify/require"
)

func newOrchestrator(t *testing.T) (*orchestrator.Orchestrator, string) {
	t.Helper()
	logger := slog.Default()

	ss, err := schedulestore.New(t.TempDir(), logger)
	require.NoError(t, err)
	es, err := executionstore.New(t.TempDir(), logger)
	require.NoError(t, err)

	pipelineDir := t.TempDir()
	reg := registry.New(registry.NewFileCatalog(pipelineDir))
	r := runner.New(fakeetl.New(), logger)

	sch, err := scheduler.New(scheduler.Config{
		ScheduleStore:  ss,
		ExecutionStore: es,
		Registry:       reg,
		Runner:         r,
		Logger:         logger,
	})
	require.NoError(t, err)

	o := orchestrator.New(orchestrator.Config{
		ScheduleStore:  ss,
		ExecutionStore: es,
		Scheduler:      sch,
		Logger:         logger,
	})
	return o, pipelineDir
}

func writePipeline(t *testing.T, dir, id string) {
	t.Helper()
	raw, err := json.Marshal(domain.PipelineConfig{ID: id, Name: id})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), raw, 0o644))
}

func TestAddScheduleRejectsInvalidCron(t *testing.T) {
	o, _ := newOrchestrator(t)
	_, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID:              "bad",
		PipelineRefKind: domain.PipelineRefID,
		PipelineRef:     "p",
		CronExpression:  "not a cron",
	})
	require.Error(t, err)
	require.True(t, orcherr.Is(err, orcherr.KindValidation))
}

func TestAddScheduleRejectsSelfDependency(t *testing.T) {
	o, _ := newOrchestrator(t)
	_, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID:              "a",
		PipelineRefKind: domain.PipelineRefID,
		PipelineRef:     "p",
		CronExpression:  "* * * * *",
		Dependencies:    []string{"a"},
	})
	require.ErrorIs(t, err, domain.ErrSelfDependency)
}

func TestAddScheduleRejectsUnknownDependency(t *testing.T) {
	o, _ := newOrchestrator(t)
	_, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID:              "a",
		PipelineRefKind: domain.PipelineRefID,
		PipelineRef:     "p",
		CronExpression:  "* * * * *",
		Dependencies:    []string{"ghost"},
	})
	require.ErrorIs(t, err, domain.ErrUnknownDependency)
}

func TestAddScheduleRejectsCycle(t *testing.T) {
	o, pdir := newOrchestrator(t)
	writePipeline(t, pdir, "p")

	_, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "a", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
	})
	require.NoError(t, err)
	_, err = o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "b", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
		Dependencies: []string{"a"},
	})
	require.NoError(t, err)

	_, err = o.UpdateSchedule(context.Background(), "a", orchestrator.UpdateScheduleInput{
		Dependencies: &[]string{"b"},
	})
	require.ErrorIs(t, err, domain.ErrDependencyCycle)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	o, pdir := newOrchestrator(t)
	writePipeline(t, pdir, "p")

	_, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "a", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
	})
	require.NoError(t, err)
	_, err = o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "b", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
		Dependencies: []string{"a"},
	})
	require.NoError(t, err)

	_, err = o.AddDependency(context.Background(), "a", "b")
	require.ErrorIs(t, err, domain.ErrDependencyCycle)

	cfg, err := o.GetSchedule("a")
	require.NoError(t, err)
	require.Empty(t, cfg.Dependencies)
}

func TestAddRemoveDependency(t *testing.T) {
	o, pdir := newOrchestrator(t)
	writePipeline(t, pdir, "p")

	_, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "a", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
	})
	require.NoError(t, err)
	_, err = o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "b", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
	})
	require.NoError(t, err)

	cfg, err := o.AddDependency(context.Background(), "b", "a")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, cfg.Dependencies)

	_, err = o.AddDependency(context.Background(), "b", "a")
	require.ErrorIs(t, err, domain.ErrDuplicateDependency)

	cfg, err = o.RemoveDependency(context.Background(), "b", "a")
	require.NoError(t, err)
	require.Empty(t, cfg.Dependencies)

	_, err = o.RemoveDependency(context.Background(), "b", "a")
	require.ErrorIs(t, err, domain.ErrUnknownDependency)
}

func TestRemoveScheduleRefusesWhileDependedOn(t *testing.T) {
	o, pdir := newOrchestrator(t)
	writePipeline(t, pdir, "p")

	_, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "a", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
	})
	require.NoError(t, err)
	_, err = o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "b", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
		Dependencies: []string{"a"},
	})
	require.NoError(t, err)

	err = o.RemoveSchedule(context.Background(), "a")
	require.Error(t, err)

	require.NoError(t, o.RemoveSchedule(context.Background(), "b"))
	require.NoError(t, o.RemoveSchedule(context.Background(), "a"))
}

func TestRunNowSucceedsAndPersists(t *testing.T) {
	o, pdir := newOrchestrator(t)
	writePipeline(t, pdir, "p")

	cfg, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "a", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *", Enabled: true,
	})
	require.NoError(t, err)

	rec, err := o.RunNow(context.Background(), cfg.ID, false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, rec.Status)

	stored, err := o.GetExecution(rec.ID)
	require.NoError(t, err)
	require.Equal(t, rec.ID, stored.ID)
}

// fakeCatalog is an in-memory orchestrator.ScheduleCatalog for exercising
// Reconcile against a source of truth distinct from the local store.
type fakeCatalog struct {
	schedules []*domain.ScheduleConfig
}

func (c *fakeCatalog) ListSchedules(context.Context) ([]*domain.ScheduleConfig, error) {
	return c.schedules, nil
}

func TestReconcileAddsRemovesAndUpdatesFromCatalog(t *testing.T) {
	o, pdir := newOrchestrator(t)
	writePipeline(t, pdir, "p")

	// "stale" exists locally but not in the catalog: Reconcile must remove it.
	_, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "stale", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
	})
	require.NoError(t, err)

	// "kept" exists both locally and in the catalog: Reconcile must apply the
	// catalog's newer cron expression.
	kept, err := o.AddSchedule(context.Background(), orchestrator.CreateScheduleInput{
		ID: "kept", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p", CronExpression: "* * * * *",
	})
	require.NoError(t, err)

	catalog := &fakeCatalog{schedules: []*domain.ScheduleConfig{
		{
			ID: "kept", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p",
			CronExpression: "0 * * * *", Enabled: true,
			UpdatedAt: kept.UpdatedAt.Add(time.Hour),
		},
		{
			// "fresh" is new to the catalog and enabled: Reconcile must add it.
			ID: "fresh", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p",
			CronExpression: "* * * * *", Enabled: true,
			UpdatedAt: time.Now().UTC(),
		},
		{
			// "disabled" is new to the catalog but disabled: Reconcile must skip it.
			ID: "disabled", PipelineRefKind: domain.PipelineRefID, PipelineRef: "p",
			CronExpression: "* * * * *", Enabled: false,
			UpdatedAt: time.Now().UTC(),
		},
	}}

	require.NoError(t, o.Reconcile(context.Background(), catalog))

	ids := make([]string, 0)
	for _, cfg := range o.ListSchedules() {
		ids = append(ids, cfg.ID)
	}
	require.ElementsMatch(t, []string{"kept", "fresh"}, ids)

	updatedKept, err := o.GetSchedule("kept")
	require.NoError(t, err)
	require.Equal(t, "0 * * * *", updatedKept.CronExpression)
}
