package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/queue"
	"github.com/dteg/orchestrator/internal/registry"
	"github.com/dteg/orchestrator/internal/runner"
	"github.com/dteg/orchestrator/internal/runner/fakeetl"
	"github.com/dteg/orchestrator/internal/scheduler"
	"github.com/dteg/orchestrator/internal/store/executionstore"
	"github.com/dteg/orchestrator/internal/store/schedulestore"
	"github.com/stretchr/testify/require"
)

type harness struct {
	sch            *scheduler.Scheduler
	scheduleStore  *schedulestore.Store
	executionStore *executionstore.Store
	pipelineDir    string
}

func newHarness(t *testing.T, engine *fakeetl.Engine) *harness {
	return newHarnessWithQueue(t, engine, nil)
}

func newHarnessWithQueue(t *testing.T, engine *fakeetl.Engine, tq queue.TaskQueue) *harness {
	t.Helper()
	logger := slog.Default()

	ss, err := schedulestore.New(t.TempDir(), logger)
	require.NoError(t, err)
	es, err := executionstore.New(t.TempDir(), logger)
	require.NoError(t, err)

	pipelineDir := t.TempDir()
	reg := registry.New(registry.NewFileCatalog(pipelineDir))
	r := runner.New(engine, logger)

	sch, err := scheduler.New(scheduler.Config{
		ScheduleStore:  ss,
		ExecutionStore: es,
		Registry:       reg,
		Runner:         r,
		TaskQueue:      tq,
		Logger:         logger,
	})
	require.NoError(t, err)

	return &harness{sch: sch, scheduleStore: ss, executionStore: es, pipelineDir: pipelineDir}
}

// fakeQueue is an in-memory queue.TaskQueue for exercising the scheduler's
// dispatch/poll paths without a real broker.
type fakeQueue struct {
	mu        sync.Mutex
	submitErr error
	statuses  map[queue.TaskHandle]queue.TaskStatus
	results   map[queue.TaskHandle]*domain.ExecutionRecord
	submitted []queue.TaskHandle
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		statuses: make(map[queue.TaskHandle]queue.TaskStatus),
		results:  make(map[queue.TaskHandle]*domain.ExecutionRecord),
	}
}

func (q *fakeQueue) Submit(ctx context.Context, pc *domain.PipelineConfig, executionID string) (queue.TaskHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.submitErr != nil {
		return "", q.submitErr
	}
	handle := queue.TaskHandle(executionID)
	q.statuses[handle] = queue.TaskRunning
	q.submitted = append(q.submitted, handle)
	return handle, nil
}

func (q *fakeQueue) Status(ctx context.Context, handle queue.TaskHandle) (queue.TaskStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	status, ok := q.statuses[handle]
	if !ok {
		return queue.TaskUnknown, nil
	}
	return status, nil
}

func (q *fakeQueue) Cancel(ctx context.Context, handle queue.TaskHandle, force bool) (bool, error) {
	return true, nil
}

func (q *fakeQueue) ActiveTasks(ctx context.Context) ([]queue.TaskHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.TaskHandle(nil), q.submitted...), nil
}

func (q *fakeQueue) Result(ctx context.Context, handle queue.TaskHandle) (*domain.ExecutionRecord, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.results[handle]
	if !ok {
		return nil, errors.New("no result")
	}
	return rec, nil
}

// complete simulates a worker finishing handle's task: Status flips to
// terminal and Result becomes readable, as PublishResult would leave it.
func (q *fakeQueue) complete(handle queue.TaskHandle, status queue.TaskStatus, rec *domain.ExecutionRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.statuses[handle] = status
	q.results[handle] = rec
}

func (h *harness) addPipeline(t *testing.T, id string) {
	t.Helper()
	raw, err := json.Marshal(domain.PipelineConfig{ID: id, Name: id})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(h.pipelineDir, id+".json"), raw, 0o644))
}

func (h *harness) addSchedule(t *testing.T, id, cron, pipelineID string, deps []string, nextRun time.Time) *domain.ScheduleConfig {
	t.Helper()
	now := time.Now().UTC()
	cfg := &domain.ScheduleConfig{
		ID:              id,
		PipelineRefKind: domain.PipelineRefID,
		PipelineRef:     pipelineID,
		CronExpression:  cron,
		Enabled:         true,
		Dependencies:    deps,
		MaxRetries:      3,
		NextRun:         nextRun,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, h.scheduleStore.Put(cfg))
	h.sch.Put(cfg)
	return cfg
}

func TestSingleFire(t *testing.T) {
	h := newHarness(t, fakeetl.New())
	h.addPipeline(t, "daily")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h.addSchedule(t, "s1", "* * * * *", "daily", nil, base.Add(time.Minute))

	h.sch.Tick(context.Background(), base.Add(30*time.Second))
	recs, err := h.executionStore.List(executionstore.Filter{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Empty(t, recs, "not yet due")

	h.sch.Tick(context.Background(), base.Add(65*time.Second))
	recs, err = h.executionStore.List(executionstore.Filter{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.StatusSuccess, recs[0].Status)

	updated := h.sch.Get("s1")
	require.True(t, updated.NextRun.After(base.Add(65*time.Second)))
	require.Equal(t, base.Add(2*time.Minute), updated.NextRun)
}

func TestDependencyGateDefersUntilSuccess(t *testing.T) {
	h := newHarness(t, fakeetl.New())
	h.addPipeline(t, "upstream")
	h.addPipeline(t, "downstream")

	base := time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC)
	h.addSchedule(t, "A", "* * * * *", "upstream", nil, base)
	h.addSchedule(t, "B", "* * * * *", "downstream", []string{"A"}, base)

	h.sch.Tick(context.Background(), base)

	aRecs, err := h.executionStore.List(executionstore.Filter{ScheduleID: "A"})
	require.NoError(t, err)
	require.Len(t, aRecs, 1)
	require.Equal(t, domain.StatusSuccess, aRecs[0].Status)

	bRecs, err := h.executionStore.List(executionstore.Filter{ScheduleID: "B"})
	require.NoError(t, err)
	require.Empty(t, bRecs, "B must be deferred until A has succeeded")

	next := h.sch.Get("B")
	h.sch.Tick(context.Background(), next.NextRun.Add(time.Minute))

	bRecs, err = h.executionStore.List(executionstore.Filter{ScheduleID: "B"})
	require.NoError(t, err)
	require.Len(t, bRecs, 1)
}

func TestRetryExhaustion(t *testing.T) {
	engine := fakeetl.New()
	engine.FailingPipelineIDs["flaky"] = "always fails"
	h := newHarness(t, engine)
	h.addPipeline(t, "flaky")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := h.addSchedule(t, "s1", "0 0 1 1 *", "flaky", nil, base) // yearly cadence: won't re-fire regularly mid-test
	cfg.MaxRetries = 2
	cfg.RetryDelaySeconds = 1
	h.sch.Put(cfg)
	require.NoError(t, h.scheduleStore.Put(cfg))

	h.sch.Tick(context.Background(), base)
	recs, err := h.executionStore.List(executionstore.Filter{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.StatusRetrying, recs[0].Status)
	require.Equal(t, 0, recs[0].RetryCount)

	h.sch.Tick(context.Background(), base.Add(2*time.Second))
	recs, err = h.executionStore.List(executionstore.Filter{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	h.sch.Tick(context.Background(), base.Add(4*time.Second))
	recs, err = h.executionStore.List(executionstore.Filter{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Len(t, recs, 3, "original attempt + 2 retries")

	terminalFailed := 0
	for _, r := range recs {
		if r.Status == domain.StatusFailed {
			terminalFailed++
			require.Equal(t, 2, r.RetryCount)
		}
	}
	require.Equal(t, 1, terminalFailed)
}

func TestQueueSubmitFailureDoesNotAdvanceNextRunAndFailsTheRecord(t *testing.T) {
	fq := newFakeQueue()
	fq.submitErr = errors.New("broker unreachable")
	h := newHarnessWithQueue(t, fakeetl.New(), fq)
	h.addPipeline(t, "daily")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := h.addSchedule(t, "s1", "* * * * *", "daily", nil, base)

	h.sch.Tick(context.Background(), base)

	recs, err := h.executionStore.List(executionstore.Filter{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.StatusFailed, recs[0].Status, "a failed submission must not leave the record stuck RUNNING")

	updated := h.sch.Get("s1")
	require.Equal(t, cfg.NextRun.Unix(), updated.NextRun.Unix(), "a QUEUE error must not advance next_run — the fire retries next tick")
	require.Empty(t, h.sch.Running())
}

func TestPollQueueAppliesPublishedResult(t *testing.T) {
	fq := newFakeQueue()
	h := newHarnessWithQueue(t, fakeetl.New(), fq)
	h.addPipeline(t, "daily")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h.addSchedule(t, "s1", "* * * * *", "daily", nil, base)

	h.sch.Tick(context.Background(), base)
	require.Len(t, h.sch.Running(), 1, "the record stays RUNNING until a worker publishes a result")

	handle := queue.TaskHandle(h.sch.Running()[0].ID)
	now := time.Now().UTC()
	fq.complete(handle, queue.TaskSuccess, &domain.ExecutionRecord{
		ID: string(handle), Status: domain.StatusSuccess, StartTime: now, EndTime: &now,
	})

	// A later tick at the same instant fires nothing new (next_run already
	// advanced past base) but still polls the queue as part of its pass.
	h.sch.Tick(context.Background(), base)

	require.Empty(t, h.sch.Running())
	recs, err := h.executionStore.List(executionstore.Filter{ScheduleID: "s1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, domain.StatusSuccess, recs[0].Status)
	require.Equal(t, string(handle), recs[0].ID)
}

func TestManualRunBypassesDependencyGateAndNextRun(t *testing.T) {
	h := newHarness(t, fakeetl.New())
	h.addPipeline(t, "upstream")
	h.addPipeline(t, "downstream")

	far := time.Now().Add(24 * time.Hour)
	h.addSchedule(t, "A", "* * * * *", "upstream", nil, far)
	b := h.addSchedule(t, "B", "* * * * *", "downstream", []string{"A"}, far)

	rec, err := h.sch.RunNow(context.Background(), "B", domain.TriggerManual, false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, rec.Status)

	updated := h.sch.Get("B")
	require.Equal(t, b.NextRun.Unix(), updated.NextRun.Unix(), "manual run must not advance next_run")
}
