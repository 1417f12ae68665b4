package schedulestore_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/store/schedulestore"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*schedulestore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := schedulestore.New(dir, slog.Default())
	require.NoError(t, err)
	return s, dir
}

func sample(id string) *domain.ScheduleConfig {
	return &domain.ScheduleConfig{
		ID:              id,
		PipelineRefKind: domain.PipelineRefID,
		PipelineRef:     "daily-etl",
		CronExpression:  "0 8 * * *",
		Enabled:         true,
		Dependencies:    []string{},
		MaxRetries:      3,
		NextRun:         time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
}

func TestPutLoadRoundTrip(t *testing.T) {
	s, _ := newStore(t)
	cfg := sample("sched-1")

	require.NoError(t, s.Put(cfg))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, cfg.CronExpression, loaded["sched-1"].CronExpression)
	require.Equal(t, cfg.NextRun.Unix(), loaded["sched-1"].NextRun.Unix())
}

func TestDeleteRemovesFile(t *testing.T) {
	s, _ := newStore(t)
	cfg := sample("sched-2")
	require.NoError(t, s.Put(cfg))

	ok, err := s.Delete("sched-2")
	require.NoError(t, err)
	require.True(t, ok)

	list, err := s.List()
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestDeleteMissingReturnsFalse(t *testing.T) {
	s, _ := newStore(t)
	ok, err := s.Delete("does-not-exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListOrderedByID(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Put(sample("b")))
	require.NoError(t, s.Put(sample("a")))
	require.NoError(t, s.Put(sample("c")))

	list, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestLoadSkipsCorruptFiles(t *testing.T) {
	s, dir := newStore(t)
	require.NoError(t, s.Put(sample("good")))

	badPath := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(badPath, []byte("{not json"), 0o644))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Contains(t, loaded, "good")
}

func TestGetNotFound(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Get("missing")
	require.Error(t, err)
}
