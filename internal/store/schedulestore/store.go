// Package schedulestore is the durable ScheduleConfig persistence layer of
// spec.md §4.2: one file per schedule, atomic temp-file+rename writes,
// corrupt files skipped (logged) at load.
package schedulestore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orcherr"
)

// Store is a single-writer/multi-reader filesystem-backed ScheduleConfig set.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New returns a Store rooted at dir, creating it if it does not exist.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "schedulestore.New", err)
	}
	return &Store{dir: dir, logger: logger.With("component", "schedulestore")}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Dir returns the directory this store persists to, for health checks that
// only need to confirm it is reachable.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads every schedule file in the store directory. A file that fails
// to parse is logged and skipped; the rest of the store still loads.
func (s *Store) Load() (map[string]*domain.ScheduleConfig, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "schedulestore.Load", err)
	}

	out := make(map[string]*domain.ScheduleConfig, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("schedule file unreadable, skipping", "file", entry.Name(), "error", err)
			continue
		}
		var cfg domain.ScheduleConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			s.logger.Warn("schedule file corrupt, skipping", "file", entry.Name(), "error", err)
			continue
		}
		out[cfg.ID] = &cfg
	}
	return out, nil
}

// Put creates or replaces the on-disk record for cfg. The write is atomic:
// a temp file is written in the same directory, then renamed over the
// target, so a reader never observes a partial write.
func (s *Store) Put(cfg *domain.ScheduleConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return orcherr.New(orcherr.KindStorage, "schedulestore.Put", err)
	}

	tmp, err := os.CreateTemp(s.dir, cfg.ID+".*.tmp")
	if err != nil {
		return orcherr.New(orcherr.KindStorage, "schedulestore.Put", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return orcherr.New(orcherr.KindStorage, "schedulestore.Put", err)
	}
	if err := tmp.Close(); err != nil {
		return orcherr.New(orcherr.KindStorage, "schedulestore.Put", err)
	}
	if err := os.Rename(tmpName, s.path(cfg.ID)); err != nil {
		return orcherr.New(orcherr.KindStorage, "schedulestore.Put", err)
	}
	return nil
}

// Delete removes the on-disk record for id. Reports false if it did not exist.
func (s *Store) Delete(id string) (bool, error) {
	err := os.Remove(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, orcherr.New(orcherr.KindStorage, "schedulestore.Delete", err)
	}
	return true, nil
}

// List returns every schedule currently on disk, ordered by id for
// deterministic tick processing (spec.md §4.7.1).
func (s *Store) List() ([]*domain.ScheduleConfig, error) {
	m, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]*domain.ScheduleConfig, 0, len(m))
	for _, cfg := range m {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get reads a single schedule by id directly from disk.
func (s *Store) Get(id string) (*domain.ScheduleConfig, error) {
	raw, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherr.New(orcherr.KindNotFound, "schedulestore.Get", domain.ErrScheduleNotFound)
		}
		return nil, orcherr.New(orcherr.KindStorage, "schedulestore.Get", err)
	}
	var cfg domain.ScheduleConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "schedulestore.Get", fmt.Errorf("corrupt schedule %s: %w", id, err))
	}
	return &cfg, nil
}
