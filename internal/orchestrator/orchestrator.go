// Package orchestrator is the public façade of spec.md §4.8: every external
// surface (CLI, HTTP API) talks to the orchestration core only through this
// package. It owns validation, dependency-cycle prevention, and wiring
// between the durable stores and the live Scheduler, grounded on the shape
// of the teacher's usecase package.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dteg/orchestrator/internal/cronutil"
	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orcherr"
	"github.com/dteg/orchestrator/internal/scheduler"
	"github.com/dteg/orchestrator/internal/store/executionstore"
	"github.com/dteg/orchestrator/internal/store/schedulestore"
)

// Orchestrator is the single entry point every hosting surface uses to
// manage schedules and inspect execution history (spec.md §4.8, §6).
type Orchestrator struct {
	scheduleStore  *schedulestore.Store
	executionStore *executionstore.Store
	sch            *scheduler.Scheduler
	logger         *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Config bundles the collaborators an Orchestrator needs.
type Config struct {
	ScheduleStore  *schedulestore.Store
	ExecutionStore *executionstore.Store
	Scheduler      *scheduler.Scheduler
	Logger         *slog.Logger
}

// New builds an Orchestrator over an already-constructed Scheduler.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		scheduleStore:  cfg.ScheduleStore,
		executionStore: cfg.ExecutionStore,
		sch:            cfg.Scheduler,
		logger:         cfg.Logger.With("component", "orchestrator"),
	}
}

// Start runs the scheduler's tick loop in the background until Stop is
// called or the passed-in ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context, tickInterval time.Duration) {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go func() {
		defer close(o.done)
		o.sch.Run(runCtx, tickInterval)
	}()
}

// Stop signals the tick loop to exit and waits for it to finish the current
// tick (spec.md §5 — a regular shutdown never interrupts in-flight work).
func (o *Orchestrator) Stop() {
	if o.cancel == nil {
		return
	}
	o.cancel()
	<-o.done
}

// CreateScheduleInput is the validated input for AddSchedule.
type CreateScheduleInput struct {
	ID                string
	PipelineRefKind   domain.PipelineRefKind
	PipelineRef       string
	CronExpression    string
	Enabled           bool
	Dependencies      []string
	MaxRetries        int
	RetryDelaySeconds int
}

// AddSchedule validates, persists, and installs a new schedule (spec.md
// §4.1, §4.7.1). It rejects self-dependencies, duplicate dependencies,
// references to unknown schedules, and cycles.
func (o *Orchestrator) AddSchedule(ctx context.Context, in CreateScheduleInput) (*domain.ScheduleConfig, error) {
	if !cronutil.IsValid(in.CronExpression) {
		return nil, orcherr.New(orcherr.KindValidation, "orchestrator.AddSchedule", domain.ErrInvalidCronExpr)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.MaxRetries < 0 {
		in.MaxRetries = 0
	}

	existing := o.sch.List()
	if err := validateDependencies(in.ID, in.Dependencies, existing, nil); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	next, err := cronutil.NextAfter(in.CronExpression, now)
	if err != nil {
		return nil, orcherr.New(orcherr.KindValidation, "orchestrator.AddSchedule", err)
	}

	cfg := &domain.ScheduleConfig{
		ID:                in.ID,
		PipelineRefKind:   in.PipelineRefKind,
		PipelineRef:       in.PipelineRef,
		CronExpression:    in.CronExpression,
		Enabled:           in.Enabled,
		Dependencies:      append([]string(nil), in.Dependencies...),
		MaxRetries:        in.MaxRetries,
		RetryDelaySeconds: in.RetryDelaySeconds,
		NextRun:           next,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := o.scheduleStore.Put(cfg); err != nil {
		return nil, err
	}
	o.sch.Put(cfg)
	o.logger.Info("schedule added", "schedule_id", cfg.ID)
	return cfg.Clone(), nil
}

// UpdateScheduleInput carries the mutable fields of a schedule update. A nil
// pointer field means "leave unchanged".
type UpdateScheduleInput struct {
	CronExpression    *string
	Enabled           *bool
	Dependencies      *[]string
	MaxRetries        *int
	RetryDelaySeconds *int
}

// UpdateSchedule applies a partial update to an existing schedule.
func (o *Orchestrator) UpdateSchedule(ctx context.Context, id string, in UpdateScheduleInput) (*domain.ScheduleConfig, error) {
	cfg := o.sch.Get(id)
	if cfg == nil {
		return nil, orcherr.New(orcherr.KindNotFound, "orchestrator.UpdateSchedule", domain.ErrScheduleNotFound)
	}

	if in.Dependencies != nil {
		others := o.sch.List()
		if err := validateDependencies(id, *in.Dependencies, others, cfg); err != nil {
			return nil, err
		}
		cfg.Dependencies = append([]string(nil), (*in.Dependencies)...)
	}
	if in.CronExpression != nil {
		if !cronutil.IsValid(*in.CronExpression) {
			return nil, orcherr.New(orcherr.KindValidation, "orchestrator.UpdateSchedule", domain.ErrInvalidCronExpr)
		}
		cfg.CronExpression = *in.CronExpression
		next, err := cronutil.NextAfter(cfg.CronExpression, time.Now().UTC())
		if err != nil {
			return nil, orcherr.New(orcherr.KindValidation, "orchestrator.UpdateSchedule", err)
		}
		cfg.NextRun = next
	}
	if in.Enabled != nil {
		cfg.Enabled = *in.Enabled
	}
	if in.MaxRetries != nil {
		cfg.MaxRetries = *in.MaxRetries
	}
	if in.RetryDelaySeconds != nil {
		cfg.RetryDelaySeconds = *in.RetryDelaySeconds
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := o.scheduleStore.Put(cfg); err != nil {
		return nil, err
	}
	o.sch.Put(cfg)
	o.logger.Info("schedule updated", "schedule_id", id)
	return cfg.Clone(), nil
}

// AddDependency adds a single edge id→depID to the dependency graph
// (spec.md §4.8), rejecting it if depID is unknown, already present, or
// would create a cycle. id's existing dependency list is left untouched on
// any rejection.
func (o *Orchestrator) AddDependency(ctx context.Context, id, depID string) (*domain.ScheduleConfig, error) {
	cfg := o.sch.Get(id)
	if cfg == nil {
		return nil, orcherr.New(orcherr.KindNotFound, "orchestrator.AddDependency", domain.ErrScheduleNotFound)
	}
	if cfg.HasDependency(depID) {
		return nil, orcherr.New(orcherr.KindValidation, "orchestrator.AddDependency", domain.ErrDuplicateDependency)
	}

	candidate := append(append([]string(nil), cfg.Dependencies...), depID)
	others := o.sch.List()
	if err := validateDependencies(id, candidate, others, cfg); err != nil {
		return nil, err
	}

	cfg.Dependencies = candidate
	cfg.UpdatedAt = time.Now().UTC()

	if err := o.scheduleStore.Put(cfg); err != nil {
		return nil, err
	}
	o.sch.Put(cfg)
	o.logger.Info("dependency added", "schedule_id", id, "dependency_id", depID)
	return cfg.Clone(), nil
}

// RemoveDependency drops a single edge id→depID from the dependency graph
// (spec.md §4.8). Removing an edge can never introduce a cycle, so no
// validation beyond existence is needed.
func (o *Orchestrator) RemoveDependency(ctx context.Context, id, depID string) (*domain.ScheduleConfig, error) {
	cfg := o.sch.Get(id)
	if cfg == nil {
		return nil, orcherr.New(orcherr.KindNotFound, "orchestrator.RemoveDependency", domain.ErrScheduleNotFound)
	}
	if !cfg.HasDependency(depID) {
		return nil, orcherr.New(orcherr.KindValidation, "orchestrator.RemoveDependency",
			fmt.Errorf("%w: %s", domain.ErrUnknownDependency, depID))
	}

	remaining := make([]string, 0, len(cfg.Dependencies)-1)
	for _, d := range cfg.Dependencies {
		if d != depID {
			remaining = append(remaining, d)
		}
	}
	cfg.Dependencies = remaining
	cfg.UpdatedAt = time.Now().UTC()

	if err := o.scheduleStore.Put(cfg); err != nil {
		return nil, err
	}
	o.sch.Put(cfg)
	o.logger.Info("dependency removed", "schedule_id", id, "dependency_id", depID)
	return cfg.Clone(), nil
}

// RemoveSchedule deletes a schedule from disk and the live scheduler. It
// refuses to remove a schedule that other schedules still depend on, so a
// dangling dependency can never be created by deletion.
func (o *Orchestrator) RemoveSchedule(ctx context.Context, id string) error {
	for _, other := range o.sch.List() {
		if other.ID == id {
			continue
		}
		if other.HasDependency(id) {
			return orcherr.New(orcherr.KindValidation, "orchestrator.RemoveSchedule",
				fmt.Errorf("schedule %q still depends on %q", other.ID, id))
		}
	}

	existed, err := o.scheduleStore.Delete(id)
	if err != nil {
		return err
	}
	if !existed {
		return orcherr.New(orcherr.KindNotFound, "orchestrator.RemoveSchedule", domain.ErrScheduleNotFound)
	}
	o.sch.Remove(id)
	o.logger.Info("schedule removed", "schedule_id", id)
	return nil
}

// GetSchedule returns a single schedule by id.
func (o *Orchestrator) GetSchedule(id string) (*domain.ScheduleConfig, error) {
	cfg := o.sch.Get(id)
	if cfg == nil {
		return nil, orcherr.New(orcherr.KindNotFound, "orchestrator.GetSchedule", domain.ErrScheduleNotFound)
	}
	return cfg, nil
}

// ListSchedules returns every schedule, ordered by id.
func (o *Orchestrator) ListSchedules() []*domain.ScheduleConfig {
	return o.sch.List()
}

// RunNow triggers an out-of-band execution (spec.md §4.7.4), bypassing the
// dependency gate and leaving next_run untouched. With async set and a
// TaskQueue configured the run is submitted to the queue; otherwise it runs
// synchronously and the returned record is terminal.
func (o *Orchestrator) RunNow(ctx context.Context, scheduleID string, async bool) (*domain.ExecutionRecord, error) {
	return o.sch.RunNow(ctx, scheduleID, domain.TriggerManual, async)
}

// CancelExecution best-effort cancels an in-flight execution (spec.md §5).
func (o *Orchestrator) CancelExecution(ctx context.Context, executionID string, force bool) (bool, error) {
	return o.sch.Cancel(ctx, executionID, force)
}

// RunningExecutions lists every execution currently in flight.
func (o *Orchestrator) RunningExecutions() []*domain.ExecutionRecord {
	return o.sch.Running()
}

// GetExecution returns a single execution record by id.
func (o *Orchestrator) GetExecution(id string) (*domain.ExecutionRecord, error) {
	return o.executionStore.Get(id)
}

// ListExecutions returns execution history matching f, newest first.
func (o *Orchestrator) ListExecutions(f executionstore.Filter) ([]*domain.ExecutionRecord, error) {
	return o.executionStore.List(f)
}

// Subscribe forwards to the underlying Scheduler so a hosting surface can
// observe every execution transition without the orchestration core
// depending on it (spec.md §9). No package in this module registers an
// observer.
func (o *Orchestrator) Subscribe(obs scheduler.Observer) {
	o.sch.Subscribe(obs)
}

// ScheduleCatalog is the external source of truth Reconcile pulls from
// (spec.md §4.9) — the same shape as registry.Catalog, generalized from
// pipelines to schedules. The hosting application (e.g. a REST API with its
// own datastore) supplies the implementation; this package also ships a
// filesystem-backed one (FileScheduleCatalog) for the CLI and tests.
type ScheduleCatalog interface {
	ListSchedules(ctx context.Context) ([]*domain.ScheduleConfig, error)
}

// Reconcile brings the local schedule set into agreement with catalog,
// spec.md §4.9's four-step algorithm: enumerate the catalog, add entries
// missing locally (only if enabled), remove local schedules the catalog no
// longer lists, and update the fields of every schedule present in both
// when the catalog's copy is newer by UpdatedAt. It is idempotent and safe
// to call while the tick loop is running (the Orchestrator/Scheduler lock
// serializes both).
func (o *Orchestrator) Reconcile(ctx context.Context, catalog ScheduleCatalog) error {
	external, err := catalog.ListSchedules(ctx)
	if err != nil {
		return err
	}
	externalByID := make(map[string]*domain.ScheduleConfig, len(external))
	for _, cfg := range external {
		externalByID[cfg.ID] = cfg
	}

	local := o.sch.List()
	localByID := make(map[string]*domain.ScheduleConfig, len(local))
	for _, cfg := range local {
		localByID[cfg.ID] = cfg
	}

	var added, removed, updated int
	for id, cfg := range externalByID {
		if _, ok := localByID[id]; ok || !cfg.Enabled {
			continue
		}
		if _, err := o.AddSchedule(ctx, CreateScheduleInput{
			ID:                cfg.ID,
			PipelineRefKind:   cfg.PipelineRefKind,
			PipelineRef:       cfg.PipelineRef,
			CronExpression:    cfg.CronExpression,
			Enabled:           cfg.Enabled,
			Dependencies:      cfg.Dependencies,
			MaxRetries:        cfg.MaxRetries,
			RetryDelaySeconds: cfg.RetryDelaySeconds,
		}); err != nil {
			o.logger.Error("reconcile: add catalog entry failed", "schedule_id", id, "error", err)
			continue
		}
		added++
	}

	for id := range localByID {
		if _, ok := externalByID[id]; ok {
			continue
		}
		if err := o.RemoveSchedule(ctx, id); err != nil {
			o.logger.Error("reconcile: remove schedule dropped from catalog failed", "schedule_id", id, "error", err)
			continue
		}
		removed++
	}

	for id, cfg := range localByID {
		extCfg, ok := externalByID[id]
		if !ok || !extCfg.UpdatedAt.After(cfg.UpdatedAt) {
			continue
		}
		cron := extCfg.CronExpression
		enabled := extCfg.Enabled
		deps := append([]string(nil), extCfg.Dependencies...)
		maxRetries := extCfg.MaxRetries
		retryDelay := extCfg.RetryDelaySeconds
		if _, err := o.UpdateSchedule(ctx, id, UpdateScheduleInput{
			CronExpression:    &cron,
			Enabled:           &enabled,
			Dependencies:      &deps,
			MaxRetries:        &maxRetries,
			RetryDelaySeconds: &retryDelay,
		}); err != nil {
			o.logger.Error("reconcile: update from catalog failed", "schedule_id", id, "error", err)
			continue
		}
		updated++
	}

	o.logger.Info("reconciled schedules from catalog", "added", added, "removed", removed, "updated", updated)
	return nil
}

// validateDependencies enforces spec.md §4.1's dependency invariants for id
// taking on deps: no self-dependency, no duplicates, every dependency must
// name a known schedule, and the resulting graph must stay acyclic.
// id's entry in the graph is replaced by deps for the cycle check; selfCfg
// (the schedule being updated, or nil on add) is not consulted.
func validateDependencies(id string, deps []string, all []*domain.ScheduleConfig, selfCfg *domain.ScheduleConfig) error {
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		if d == id {
			return orcherr.New(orcherr.KindValidation, "orchestrator.validateDependencies", domain.ErrSelfDependency)
		}
		if seen[d] {
			return orcherr.New(orcherr.KindValidation, "orchestrator.validateDependencies", domain.ErrDuplicateDependency)
		}
		seen[d] = true
	}

	graph := make(map[string][]string, len(all)+1)
	known := make(map[string]bool, len(all)+1)
	for _, cfg := range all {
		known[cfg.ID] = true
		graph[cfg.ID] = cfg.Dependencies
	}
	known[id] = true
	graph[id] = deps

	for _, d := range deps {
		if !known[d] {
			return orcherr.New(orcherr.KindValidation, "orchestrator.validateDependencies",
				fmt.Errorf("%w: %s", domain.ErrUnknownDependency, d))
		}
	}

	if cyclic(id, graph) {
		return orcherr.New(orcherr.KindValidation, "orchestrator.validateDependencies", domain.ErrDependencyCycle)
	}
	return nil
}

// cyclic reports whether the dependency graph rooted at start contains a
// cycle reachable from start, via depth-first search with a recursion stack.
func cyclic(start string, graph map[string][]string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(graph))

	var visit func(node string) bool
	visit = func(node string) bool {
		color[node] = gray
		for _, dep := range graph[node] {
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[node] = black
		return false
	}

	return visit(start)
}
