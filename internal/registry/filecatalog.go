package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orcherr"
)

// FileCatalog resolves a bare pipeline id to <dir>/<id>.json, the default
// pipeline catalog the CLI wires up when no external catalog is configured.
type FileCatalog struct {
	dir string
}

// NewFileCatalog returns a FileCatalog rooted at dir.
func NewFileCatalog(dir string) *FileCatalog {
	return &FileCatalog{dir: dir}
}

func (c *FileCatalog) Lookup(_ context.Context, id string) (*domain.PipelineConfig, error) {
	raw, err := os.ReadFile(filepath.Join(c.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherr.New(orcherr.KindNotFound, "FileCatalog.Lookup", fmt.Errorf("%w: %s", domain.ErrPipelineNotFound, id))
		}
		return nil, orcherr.New(orcherr.KindStorage, "FileCatalog.Lookup", err)
	}
	var pc domain.PipelineConfig
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "FileCatalog.Lookup", fmt.Errorf("parse pipeline document %s: %w", id, err))
	}
	return &pc, nil
}
