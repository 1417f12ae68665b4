// Package executionstore is the durable, append-style ExecutionRecord
// history of spec.md §4.3: one file per record, full-directory-scan List
// with in-memory filtering — acceptable at the tens-of-thousands scale the
// spec targets.
package executionstore

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orcherr"
)

// Store is the filesystem-backed ExecutionRecord history.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New returns a Store rooted at dir, creating it if it does not exist.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "executionstore.New", err)
	}
	return &Store{dir: dir, logger: logger.With("component", "executionstore")}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Dir returns the directory this store persists to, for health checks that
// only need to confirm it is reachable.
func (s *Store) Dir() string {
	return s.dir
}

// Put creates or updates the on-disk record for rec (idempotent by id),
// atomically via temp-file+rename.
func (s *Store) Put(rec *domain.ExecutionRecord) error {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return orcherr.New(orcherr.KindStorage, "executionstore.Put", err)
	}

	tmp, err := os.CreateTemp(s.dir, rec.ID+".*.tmp")
	if err != nil {
		return orcherr.New(orcherr.KindStorage, "executionstore.Put", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return orcherr.New(orcherr.KindStorage, "executionstore.Put", err)
	}
	if err := tmp.Close(); err != nil {
		return orcherr.New(orcherr.KindStorage, "executionstore.Put", err)
	}
	if err := os.Rename(tmpName, s.path(rec.ID)); err != nil {
		return orcherr.New(orcherr.KindStorage, "executionstore.Put", err)
	}
	return nil
}

// Get returns a single record by id, or ErrExecutionNotFound.
func (s *Store) Get(id string) (*domain.ExecutionRecord, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherr.New(orcherr.KindNotFound, "executionstore.Get", domain.ErrExecutionNotFound)
		}
		return nil, orcherr.New(orcherr.KindStorage, "executionstore.Get", err)
	}
	var rec domain.ExecutionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "executionstore.Get", err)
	}
	return &rec, nil
}

// Filter narrows List to matching records. Zero values mean "don't filter
// on this field".
type Filter struct {
	PipelineID string
	ScheduleID string
	Status     domain.ExecutionStatus
	StartedAfter  time.Time
	StartedBefore time.Time
}

// List scans the store directory and returns matching records, newest-first.
func (s *Store) List(f Filter) ([]*domain.ExecutionRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "executionstore.List", err)
	}

	out := make([]*domain.ExecutionRecord, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("execution file unreadable, skipping", "file", entry.Name(), "error", err)
			continue
		}
		var rec domain.ExecutionRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn("execution file corrupt, skipping", "file", entry.Name(), "error", err)
			continue
		}
		if f.PipelineID != "" && rec.PipelineID != f.PipelineID {
			continue
		}
		if f.ScheduleID != "" && rec.ScheduleID != f.ScheduleID {
			continue
		}
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if !f.StartedAfter.IsZero() && rec.StartTime.Before(f.StartedAfter) {
			continue
		}
		if !f.StartedBefore.IsZero() && rec.StartTime.After(f.StartedBefore) {
			continue
		}
		out = append(out, &rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

// LatestTerminalForPipeline returns the most recent terminal (SUCCESS,
// FAILED or CANCELLED) record for pipelineID, or nil if none exists. The
// scheduler's dependency gate uses LatestTerminalForSchedule instead.
func (s *Store) LatestTerminalForPipeline(pipelineID string) (*domain.ExecutionRecord, error) {
	recs, err := s.List(Filter{PipelineID: pipelineID})
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.Status.IsTerminal() {
			return r, nil
		}
	}
	return nil, nil
}

// LatestTerminalForSchedule is LatestTerminalForPipeline, keyed by the
// producing schedule instead of the pipeline id. The scheduler's dependency
// gate (spec.md §4.7.2) uses this: a dependency is named by schedule id, and
// every execution it ever produced carries that schedule id, so this is an
// unambiguous way to ask "has the dependency's predecessor schedule ever
// succeeded" without re-resolving its pipeline_ref on every tick.
func (s *Store) LatestTerminalForSchedule(scheduleID string) (*domain.ExecutionRecord, error) {
	recs, err := s.List(Filter{ScheduleID: scheduleID})
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.Status.IsTerminal() {
			return r, nil
		}
	}
	return nil, nil
}
