package orchestrator

import (
	"context"
	"log/slog"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/store/schedulestore"
)

// FileScheduleCatalog is the filesystem-backed reference ScheduleCatalog
// (spec.md §4.9): one JSON document per schedule under dir, the same shape
// schedulestore.Store persists. Wired up by the CLI when no external
// catalog is configured; a hosting REST API would instead adapt its own
// datastore to ScheduleCatalog.
type FileScheduleCatalog struct {
	store *schedulestore.Store
}

// NewFileScheduleCatalog returns a FileScheduleCatalog rooted at dir,
// creating it if it does not exist.
func NewFileScheduleCatalog(dir string, logger *slog.Logger) (*FileScheduleCatalog, error) {
	store, err := schedulestore.New(dir, logger)
	if err != nil {
		return nil, err
	}
	return &FileScheduleCatalog{store: store}, nil
}

// ListSchedules returns every schedule document under the catalog directory.
func (c *FileScheduleCatalog) ListSchedules(_ context.Context) ([]*domain.ScheduleConfig, error) {
	return c.store.List()
}
