// Package scheduler implements spec.md §4.7: the tick loop that owns the
// in-memory authoritative schedule set, fires due schedules honoring
// dependencies, dispatches to the in-process runner or an optional
// TaskQueue, and advances next_run times. It is grounded on the shape of
// the teacher's Dispatcher (ticker-driven loop), Worker (claim → execute →
// reschedule-or-fail) and Reaper (stale sweep), merged into the single
// component spec.md describes.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dteg/orchestrator/internal/cronutil"
	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/metrics"
	"github.com/dteg/orchestrator/internal/orcherr"
	"github.com/dteg/orchestrator/internal/queue"
	"github.com/dteg/orchestrator/internal/registry"
	"github.com/dteg/orchestrator/internal/runner"
	"github.com/dteg/orchestrator/internal/store/executionstore"
	"github.com/dteg/orchestrator/internal/store/schedulestore"
)

// Observer is notified of every ExecutionRecord transition the Scheduler
// makes. The scheduler must not know about any hosting web layer (spec.md
// §9) — it only ever calls back through this seam.
type Observer func(rec *domain.ExecutionRecord)

// retryState tracks a pending delayed retry for one schedule (spec.md
// §4.7.3). It is abandoned if the schedule's regular cron cadence fires
// again before FireAt.
type retryState struct {
	AttemptChainID string
	RetryCount     int
	FireAt         time.Time
}

// Scheduler is the component described in spec.md §4.7.
type Scheduler struct {
	mu        sync.RWMutex
	schedules map[string]*domain.ScheduleConfig
	running   map[string]*domain.ExecutionRecord
	retries   map[string]*retryState // schedule id -> pending retry

	scheduleStore  *schedulestore.Store
	executionStore *executionstore.Store
	registry       *registry.Registry
	runner         *runner.Runner
	taskQueue      queue.TaskQueue // nil means always dispatch in-process

	logger    *slog.Logger
	observers []Observer
}

// Config bundles the collaborators a Scheduler needs.
type Config struct {
	ScheduleStore  *schedulestore.Store
	ExecutionStore *executionstore.Store
	Registry       *registry.Registry
	Runner         *runner.Runner
	TaskQueue      queue.TaskQueue
	Logger         *slog.Logger
}

// New constructs a Scheduler and loads the current schedule set from disk.
func New(cfg Config) (*Scheduler, error) {
	s := &Scheduler{
		schedules:      make(map[string]*domain.ScheduleConfig),
		running:        make(map[string]*domain.ExecutionRecord),
		retries:        make(map[string]*retryState),
		scheduleStore:  cfg.ScheduleStore,
		executionStore: cfg.ExecutionStore,
		registry:       cfg.Registry,
		runner:         cfg.Runner,
		taskQueue:      cfg.TaskQueue,
		logger:         cfg.Logger.With("component", "scheduler"),
	}

	loaded, err := cfg.ScheduleStore.Load()
	if err != nil {
		return nil, err
	}
	s.schedules = loaded
	return s, nil
}

// Subscribe registers an Observer. Not safe to call concurrently with Tick.
func (s *Scheduler) Subscribe(obs Observer) {
	s.observers = append(s.observers, obs)
}

func (s *Scheduler) notify(rec *domain.ExecutionRecord) {
	for _, obs := range s.observers {
		obs(rec.Clone())
	}
}

// Put installs or replaces a schedule in the in-memory set. Callers
// (Orchestrator) are responsible for persisting it first.
func (s *Scheduler) Put(cfg *domain.ScheduleConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedules[cfg.ID] = cfg
}

// Remove drops a schedule from the in-memory set.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, id)
	delete(s.retries, id)
}

// Get returns a clone of the in-memory schedule, or nil if absent.
func (s *Scheduler) Get(id string) *domain.ScheduleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.schedules[id]
	if !ok {
		return nil
	}
	return cfg.Clone()
}

// List returns clones of every in-memory schedule, ordered by id.
func (s *Scheduler) List() []*domain.ScheduleConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ScheduleConfig, 0, len(s.schedules))
	for _, cfg := range s.schedules {
		out = append(out, cfg.Clone())
	}
	sortByID(out)
	return out
}

func sortByID(cfgs []*domain.ScheduleConfig) {
	for i := 1; i < len(cfgs); i++ {
		for j := i; j > 0 && cfgs[j-1].ID > cfgs[j].ID; j-- {
			cfgs[j-1], cfgs[j] = cfgs[j], cfgs[j-1]
		}
	}
}

// Run starts the tick loop, sleeping interval between ticks, until ctx is
// cancelled. Stopping does not interrupt a synchronous pipeline already in
// flight — the current tick is allowed to finish (spec.md §5).
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler tick loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler tick loop shut down")
			return
		case <-ticker.C:
			// The tick runs detached from ctx's cancellation so a shutdown
			// arriving mid-tick does not reach the pipeline being dispatched.
			s.Tick(context.WithoutCancel(ctx), time.Now().UTC())
		}
	}
}

// Tick performs one pass over every schedule, in id order (spec.md §4.7.1).
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	due := s.dueSchedules(now)
	dueRetries := s.dueRetries(now)

	fired := 0
	for _, cfg := range due {
		if s.fireOne(ctx, cfg, now, domain.TriggerCron) {
			fired++
			metrics.SchedulesFiredTotal.WithLabelValues(string(domain.TriggerCron)).Inc()
		}
	}
	for scheduleID, rs := range dueRetries {
		if s.fireRetry(ctx, scheduleID, rs, now) {
			fired++
			metrics.SchedulesFiredTotal.WithLabelValues("retry").Inc()
		}
	}

	if fired > 0 {
		s.logger.Info("tick complete", "fired", fired, "at", now)
	}

	if s.taskQueue != nil {
		s.pollQueue(ctx)
	}
}

// pollQueue checks every execution still RUNNING against the TaskQueue and
// applies any terminal result it finds, the in-process half of the worker
// hand-off described in spec.md §4.5: a worker process owns Consume/
// PublishResult, this loop owns noticing the result landed. No-op when no
// TaskQueue is configured.
func (s *Scheduler) pollQueue(ctx context.Context) {
	for _, rec := range s.Running() {
		handle := queue.TaskHandle(rec.ID)
		status, err := s.taskQueue.Status(ctx, handle)
		if err != nil {
			s.logger.Error("queue status poll failed", "execution_id", rec.ID, "error", err)
			continue
		}
		if status != queue.TaskSuccess && status != queue.TaskFailure {
			continue
		}
		result, err := s.taskQueue.Result(ctx, handle)
		if err != nil {
			s.logger.Error("queue result fetch failed", "execution_id", rec.ID, "error", err)
			continue
		}
		// The worker only knows the pipeline and execution id, not the
		// owning schedule — merge its terminal fields onto the record this
		// scheduler dispatched rather than trusting result's ScheduleID.
		rec.Status = result.Status
		rec.EndTime = result.EndTime
		rec.ErrorMessage = result.ErrorMessage
		rec.Logs = result.Logs
		s.ReportQueueResult(rec)
	}
}

// dueSchedules returns clones of every enabled schedule whose next_run has
// arrived and whose dependencies are satisfied, in deterministic id order.
func (s *Scheduler) dueSchedules(now time.Time) []*domain.ScheduleConfig {
	s.mu.RLock()
	candidates := make([]*domain.ScheduleConfig, 0, len(s.schedules))
	for _, cfg := range s.schedules {
		if !cfg.Enabled {
			continue
		}
		if cfg.NextRun.After(now) {
			continue
		}
		candidates = append(candidates, cfg.Clone())
	}
	s.mu.RUnlock()

	sortByID(candidates)

	due := make([]*domain.ScheduleConfig, 0, len(candidates))
	for _, cfg := range candidates {
		if s.dependenciesSatisfied(cfg) {
			due = append(due, cfg)
		} else {
			s.logger.Debug("schedule deferred, dependency not satisfied", "schedule_id", cfg.ID)
			metrics.SchedulesDeferredTotal.WithLabelValues(cfg.ID).Inc()
		}
	}
	return due
}

// dependenciesSatisfied implements spec.md §4.7.2: every dependency must
// have a latest terminal execution whose status is SUCCESS. An empty
// dependency list is always satisfied.
func (s *Scheduler) dependenciesSatisfied(cfg *domain.ScheduleConfig) bool {
	for _, depID := range cfg.Dependencies {
		latest, err := s.executionStore.LatestTerminalForSchedule(depID)
		if err != nil {
			s.logger.Error("dependency gate lookup failed", "schedule_id", cfg.ID, "dependency_id", depID, "error", err)
			return false
		}
		if latest == nil || latest.Status != domain.StatusSuccess {
			return false
		}
	}
	return true
}

func (s *Scheduler) dueRetries(now time.Time) map[string]*retryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*retryState)
	for id, rs := range s.retries {
		if !rs.FireAt.After(now) {
			out[id] = rs
		}
	}
	return out
}

// fireOne fires a regular cron execution for cfg, dispatches it, and
// persists the record; next_run is advanced and persisted unless the
// dispatch was a failed TaskQueue submission. Returns true if an execution
// record was created, false if the pipeline could not be resolved (next_run
// is still advanced in that case). Manual runs go through RunNow instead.
func (s *Scheduler) fireOne(ctx context.Context, cfg *domain.ScheduleConfig, now time.Time, trigger domain.TriggerKind) bool {
	// A regular firing supersedes any in-flight retry for this schedule —
	// retries are best-effort within the same cron window (spec.md §4.7.3).
	s.mu.Lock()
	delete(s.retries, cfg.ID)
	s.mu.Unlock()

	pc, err := s.registry.Resolve(ctx, cfg)
	if err != nil {
		s.logger.Error("pipeline resolution failed, schedule next_run still advanced", "schedule_id", cfg.ID, "error", err)
		s.advanceNextRun(cfg, now)
		return false
	}

	rec := &domain.ExecutionRecord{
		ID:             uuid.NewString(),
		ScheduleID:     cfg.ID,
		PipelineID:     pc.ID,
		Status:         domain.StatusRunning,
		Trigger:        trigger,
		StartTime:      now,
		Logs:           []string{},
		AttemptChainID: "",
	}
	rec.AttemptChainID = rec.ID

	s.startRunning(rec)
	if err := s.executionStore.Put(rec); err != nil {
		s.logger.Error("persist execution record failed", "execution_id", rec.ID, "error", err)
	}
	s.notify(rec)

	if s.dispatch(ctx, cfg, pc, rec) {
		// next_run advances once dispatch has actually been handed off
		// (spec.md §4.7.1 step e). A QUEUE error must not advance it — the
		// fire is retried next tick instead (spec.md §7).
		s.advanceNextRun(cfg, now)
	}
	return true
}

// fireRetry dispatches a delayed retry follow-up attempt linked to the
// original record by AttemptChainID (spec.md §4.7.3). It does not touch
// next_run.
func (s *Scheduler) fireRetry(ctx context.Context, scheduleID string, rs *retryState, now time.Time) bool {
	// A regular firing earlier in this same Tick may have already abandoned
	// this retry (spec.md §4.7.3) — reconfirm it is still the current one.
	s.mu.RLock()
	current, stillPending := s.retries[scheduleID]
	s.mu.RUnlock()
	if !stillPending || current != rs {
		return false
	}

	s.mu.Lock()
	delete(s.retries, scheduleID)
	s.mu.Unlock()

	cfg := s.Get(scheduleID)
	if cfg == nil {
		return false
	}

	pc, err := s.registry.Resolve(ctx, cfg)
	if err != nil {
		s.logger.Error("pipeline resolution failed for retry", "schedule_id", scheduleID, "error", err)
		return false
	}

	rec := &domain.ExecutionRecord{
		ID:             uuid.NewString(),
		ScheduleID:     cfg.ID,
		PipelineID:     pc.ID,
		Status:         domain.StatusRunning,
		Trigger:        domain.TriggerCron,
		StartTime:      now,
		Logs:           []string{},
		RetryCount:     rs.RetryCount,
		AttemptChainID: rs.AttemptChainID,
	}

	s.startRunning(rec)
	if err := s.executionStore.Put(rec); err != nil {
		s.logger.Error("persist retry record failed", "execution_id", rec.ID, "error", err)
	}
	s.notify(rec)

	s.dispatch(ctx, cfg, pc, rec)
	return true
}

// RunNow dispatches a manual/API execution for scheduleID, bypassing the
// dependency gate and never advancing next_run (spec.md §4.7.4).
func (s *Scheduler) RunNow(ctx context.Context, scheduleID string, trigger domain.TriggerKind, async bool) (*domain.ExecutionRecord, error) {
	cfg := s.Get(scheduleID)
	if cfg == nil {
		return nil, orcherr.New(orcherr.KindNotFound, "scheduler.RunNow", domain.ErrScheduleNotFound)
	}

	pc, err := s.registry.Resolve(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rec := &domain.ExecutionRecord{
		ID:         uuid.NewString(),
		ScheduleID: cfg.ID,
		PipelineID: pc.ID,
		Status:     domain.StatusRunning,
		Trigger:    trigger,
		StartTime:  time.Now().UTC(),
		Logs:       []string{},
	}
	rec.AttemptChainID = rec.ID

	s.startRunning(rec)
	if err := s.executionStore.Put(rec); err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "scheduler.RunNow", err)
	}
	s.notify(rec)

	if async && s.taskQueue != nil {
		handle, err := s.taskQueue.Submit(ctx, pc, rec.ID)
		if err != nil {
			s.logger.Error("queue submit failed", "execution_id", rec.ID, "error", err)
			s.failQueueSubmission(rec, err)
			return rec.Clone(), orcherr.New(orcherr.KindQueue, "scheduler.RunNow", err)
		}
		s.logger.Info("manual run submitted to queue", "execution_id", rec.ID, "task_handle", handle)
		return rec.Clone(), nil
	}

	// Without async the run is synchronous, even when a TaskQueue is
	// configured.
	s.runner.Run(ctx, pc, rec)
	s.completeSync(cfg, rec)
	return rec.Clone(), nil
}

func (s *Scheduler) startRunning(rec *domain.ExecutionRecord) {
	s.mu.Lock()
	s.running[rec.ID] = rec
	s.mu.Unlock()
	metrics.ExecutionsInFlight.Inc()
}

func (s *Scheduler) finishedRunning(executionID string) *domain.ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.running[executionID]
	delete(s.running, executionID)
	if !ok {
		return nil
	}
	metrics.ExecutionsInFlight.Dec()
	return rec.Clone()
}

// Running returns a clone of every execution record currently in flight.
func (s *Scheduler) Running() []*domain.ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ExecutionRecord, 0, len(s.running))
	for _, rec := range s.running {
		out = append(out, rec.Clone())
	}
	return out
}

// Cancel marks an in-flight execution CANCELLED. Best-effort: for
// synchronous in-process runs there is no cooperative checkpoint to
// interrupt mid-flight (spec.md §5); for queued runs it delegates to
// TaskQueue.Cancel.
func (s *Scheduler) Cancel(ctx context.Context, executionID string, force bool) (bool, error) {
	s.mu.RLock()
	rec, ok := s.running[executionID]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}

	if s.taskQueue != nil {
		ok, err := s.taskQueue.Cancel(ctx, queue.TaskHandle(executionID), force)
		if err != nil {
			return false, orcherr.New(orcherr.KindQueue, "scheduler.Cancel", err)
		}
		return ok, nil
	}

	now := time.Now().UTC()
	rec.MarkTerminal(domain.StatusCancelled, nil, now)
	if err := s.executionStore.Put(rec); err != nil {
		return false, orcherr.New(orcherr.KindStorage, "scheduler.Cancel", err)
	}
	s.finishedRunning(executionID)
	s.notify(rec)
	return true, nil
}

// dispatch runs pc either synchronously via the in-process Runner or, when
// a TaskQueue is configured, by submitting it (spec.md §4.7.1 step c/d). It
// returns false only for a QUEUE submission error, telling the caller not
// to advance next_run (spec.md §7); every other outcome — synchronous
// completion regardless of pipeline result, or a successful submission —
// returns true. Synchronous dispatch blocks the caller and brings rec to a
// terminal state before returning; queued dispatch's terminal transition
// arrives later via ReportQueueResult.
func (s *Scheduler) dispatch(ctx context.Context, cfg *domain.ScheduleConfig, pc *domain.PipelineConfig, rec *domain.ExecutionRecord) bool {
	if s.taskQueue != nil {
		handle, err := s.taskQueue.Submit(ctx, pc, rec.ID)
		if err != nil {
			// QUEUE errors are transient: the record never started running on
			// the broker, so it is failed out here rather than left RUNNING
			// forever, and the fire itself is retried next tick (spec.md §7).
			metrics.QueueSubmitTotal.WithLabelValues("error").Inc()
			s.logger.Error("queue submit failed, will retry next tick", "execution_id", rec.ID, "error", err)
			s.failQueueSubmission(rec, err)
			return false
		}
		metrics.QueueSubmitTotal.WithLabelValues("ok").Inc()
		s.logger.Info("submitted to queue", "execution_id", rec.ID, "task_handle", handle)
		return true
	}

	s.runner.Run(ctx, pc, rec)
	s.completeSync(cfg, rec)
	return true
}

// failQueueSubmission terminates rec after a failed TaskQueue.Submit call:
// the attempt never started, so it is recorded FAILED (without consuming
// retry budget — the unadvanced next_run already guarantees a fresh attempt
// next tick) rather than left RUNNING with no worker ever going to report
// on it.
func (s *Scheduler) failQueueSubmission(rec *domain.ExecutionRecord, submitErr error) {
	now := time.Now().UTC()
	msg := submitErr.Error()
	rec.MarkTerminal(domain.StatusFailed, &msg, now)

	if err := s.executionStore.Put(rec); err != nil {
		s.logger.Error("persist failed queue submission record failed", "execution_id", rec.ID, "error", err)
	}
	metrics.ExecutionDuration.WithLabelValues(string(rec.Status)).Observe(rec.EndTime.Sub(rec.StartTime).Seconds())
	metrics.ExecutionsCompletedTotal.WithLabelValues(string(rec.Status)).Inc()
	s.finishedRunning(rec.ID)
	s.notify(rec)
}

// completeSync handles the terminal transition for a synchronous run:
// persist, notify, retry-or-terminal, and drop from the running map.
func (s *Scheduler) completeSync(cfg *domain.ScheduleConfig, rec *domain.ExecutionRecord) {
	if rec.Status == domain.StatusFailed {
		s.applyRetryPolicy(cfg, rec)
	}

	if rec.EndTime != nil {
		metrics.ExecutionDuration.WithLabelValues(string(rec.Status)).Observe(rec.EndTime.Sub(rec.StartTime).Seconds())
	}
	if rec.Status.IsTerminal() {
		metrics.ExecutionsCompletedTotal.WithLabelValues(string(rec.Status)).Inc()
	}

	if err := s.executionStore.Put(rec); err != nil {
		s.logger.Error("persist terminal execution record failed", "execution_id", rec.ID, "error", err)
	}
	s.finishedRunning(rec.ID)
	s.notify(rec)
	s.updateLastRun(cfg.ID, rec)
}

// applyRetryPolicy implements spec.md §4.7.3: a failure with retry_count <
// max_retries becomes RETRYING and schedules a delayed follow-up; reaching
// max_retries is terminal FAILED (already set by the runner).
func (s *Scheduler) applyRetryPolicy(cfg *domain.ScheduleConfig, rec *domain.ExecutionRecord) {
	if rec.RetryCount >= cfg.MaxRetries {
		metrics.RetriesExhaustedTotal.Inc()
		return // terminal FAILED stands
	}

	nextRetryCount := rec.RetryCount + 1
	rec.Status = domain.StatusRetrying

	fireAt := rec.StartTime.Add(time.Duration(cfg.RetryDelaySeconds) * time.Second)
	s.mu.Lock()
	s.retries[cfg.ID] = &retryState{
		AttemptChainID: rec.AttemptChainID,
		RetryCount:     nextRetryCount,
		FireAt:         fireAt,
	}
	s.mu.Unlock()

	metrics.RetriesScheduledTotal.Inc()
	s.logger.Info("run failed, retry scheduled", "schedule_id", cfg.ID, "execution_id", rec.ID, "retry_count", nextRetryCount, "fire_at", fireAt)
}

func (s *Scheduler) updateLastRun(scheduleID string, rec *domain.ExecutionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.schedules[scheduleID]
	if !ok {
		return
	}
	t := rec.StartTime
	cfg.LastRunTime = &t
	status := rec.Status
	cfg.LastRunStatus = &status
	cfg.UpdatedAt = time.Now().UTC()
	if s.scheduleStore != nil {
		if err := s.scheduleStore.Put(cfg); err != nil {
			s.logger.Error("persist schedule after run failed", "schedule_id", scheduleID, "error", err)
		}
	}
}

// advanceNextRun recomputes and persists cfg.NextRun, and installs the
// updated config back into the in-memory map.
func (s *Scheduler) advanceNextRun(cfg *domain.ScheduleConfig, after time.Time) {
	next, err := cronutil.NextAfter(cfg.CronExpression, after)
	if err != nil {
		s.logger.Error("cron expression invalid at advance time, leaving next_run unchanged", "schedule_id", cfg.ID, "error", err)
		return
	}
	cfg.NextRun = next
	cfg.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	s.schedules[cfg.ID] = cfg
	s.mu.Unlock()

	if s.scheduleStore != nil {
		if err := s.scheduleStore.Put(cfg); err != nil {
			s.logger.Error("persist advanced next_run failed", "schedule_id", cfg.ID, "error", err)
		}
	}
}

// ReportQueueResult is called when a queued task's terminal ExecutionRecord
// becomes available (e.g. polled via TaskQueue.Status or pushed by a
// worker). It applies the same retry policy and persistence a synchronous
// completion would.
func (s *Scheduler) ReportQueueResult(rec *domain.ExecutionRecord) {
	cfg := s.Get(rec.ScheduleID)
	if cfg == nil {
		if err := s.executionStore.Put(rec); err != nil {
			s.logger.Error("persist orphaned queue result failed", "execution_id", rec.ID, "error", err)
		}
		return
	}
	s.completeSync(cfg, rec)
}
