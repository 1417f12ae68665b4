package executionstore_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/store/executionstore"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *executionstore.Store {
	t.Helper()
	s, err := executionstore.New(t.TempDir(), slog.Default())
	require.NoError(t, err)
	return s
}

func record(id, scheduleID, pipelineID string, status domain.ExecutionStatus, start time.Time) *domain.ExecutionRecord {
	return &domain.ExecutionRecord{
		ID:         id,
		ScheduleID: scheduleID,
		PipelineID: pipelineID,
		Status:     status,
		Trigger:    domain.TriggerCron,
		StartTime:  start,
		Logs:       []string{},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newStore(t)
	rec := record("exec-1", "sched-1", "pipe-1", domain.StatusRunning, time.Now().UTC())
	require.NoError(t, s.Put(rec))

	got, err := s.Get("exec-1")
	require.NoError(t, err)
	require.Equal(t, rec.ScheduleID, got.ScheduleID)
	require.Equal(t, rec.Status, got.Status)
}

func TestListNewestFirst(t *testing.T) {
	s := newStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(record("e1", "s1", "p1", domain.StatusSuccess, base)))
	require.NoError(t, s.Put(record("e2", "s1", "p1", domain.StatusSuccess, base.Add(time.Hour))))
	require.NoError(t, s.Put(record("e3", "s1", "p1", domain.StatusSuccess, base.Add(2*time.Hour))))

	list, err := s.List(executionstore.Filter{})
	require.NoError(t, err)
	require.Equal(t, []string{"e3", "e2", "e1"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestListFiltersByPipelineAndStatus(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Put(record("e1", "s1", "pipe-a", domain.StatusSuccess, time.Now())))
	require.NoError(t, s.Put(record("e2", "s1", "pipe-b", domain.StatusFailed, time.Now())))

	list, err := s.List(executionstore.Filter{PipelineID: "pipe-a"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "e1", list[0].ID)

	list, err = s.List(executionstore.Filter{Status: domain.StatusFailed})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "e2", list[0].ID)
}

func TestLatestTerminalForPipeline(t *testing.T) {
	s := newStore(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(record("e1", "s1", "pipe-a", domain.StatusSuccess, base)))
	require.NoError(t, s.Put(record("e2", "s1", "pipe-a", domain.StatusRunning, base.Add(time.Hour))))

	latest, err := s.LatestTerminalForPipeline("pipe-a")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, "e1", latest.ID)
}

func TestLatestTerminalForPipelineNone(t *testing.T) {
	s := newStore(t)
	latest, err := s.LatestTerminalForPipeline("unknown")
	require.NoError(t, err)
	require.Nil(t, latest)
}
