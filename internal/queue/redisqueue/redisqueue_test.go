package redisqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/queue"
	"github.com/dteg/orchestrator/internal/queue/redisqueue"
)

func newQueue(t *testing.T) *redisqueue.Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	q, err := redisqueue.New(mr.Addr(), "", 0, "tasks")
	require.NoError(t, err)
	return q
}

func TestSubmitConsumeRoundTrip(t *testing.T) {
	q := newQueue(t)
	pc := &domain.PipelineConfig{ID: "p1", Name: "daily"}

	handle, err := q.Submit(context.Background(), pc, "exec-1")
	require.NoError(t, err)
	require.Equal(t, queue.TaskHandle("exec-1"), handle)

	status, err := q.Status(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, queue.TaskRunning, status)

	active, err := q.ActiveTasks(context.Background())
	require.NoError(t, err)
	require.Contains(t, active, handle)

	executionID, gotPC, ok, err := q.Consume(context.Background(), time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "exec-1", executionID)
	require.Equal(t, pc.ID, gotPC.ID)
}

func TestConsumeTimesOutWhenEmpty(t *testing.T) {
	q := newQueue(t)

	_, _, ok, err := q.Consume(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPublishResultThenStatusAndResult(t *testing.T) {
	q := newQueue(t)
	pc := &domain.PipelineConfig{ID: "p1", Name: "daily"}

	handle, err := q.Submit(context.Background(), pc, "exec-2")
	require.NoError(t, err)

	now := time.Now().UTC()
	rec := &domain.ExecutionRecord{ID: "exec-2", Status: domain.StatusSuccess, StartTime: now, EndTime: &now}
	require.NoError(t, q.PublishResult(context.Background(), handle, rec))

	status, err := q.Status(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, queue.TaskSuccess, status)

	active, err := q.ActiveTasks(context.Background())
	require.NoError(t, err)
	require.NotContains(t, active, handle)

	result, err := q.Result(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, result.Status)
}

func TestCancelSetsFlag(t *testing.T) {
	q := newQueue(t)
	handle := queue.TaskHandle("exec-3")

	ok, err := q.Cancel(context.Background(), handle, false)
	require.NoError(t, err)
	require.True(t, ok)

	cancelled, err := q.IsCancelled(context.Background(), handle)
	require.NoError(t, err)
	require.True(t, cancelled)
}

func TestResultErrorsBeforePublish(t *testing.T) {
	q := newQueue(t)
	_, err := q.Result(context.Background(), queue.TaskHandle("never-ran"))
	require.Error(t, err)
}
