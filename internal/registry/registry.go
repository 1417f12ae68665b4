// Package registry implements spec.md §4.4: resolving a ScheduleConfig's
// pipeline_ref — either a filesystem path or a bare pipeline-id — into an
// executable domain.PipelineConfig.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orcherr"
)

// Catalog resolves a bare pipeline id to its PipelineConfig. The hosting
// application supplies the implementation; this package also ships a
// filesystem-backed one (FileCatalog) for the CLI and tests.
type Catalog interface {
	Lookup(ctx context.Context, id string) (*domain.PipelineConfig, error)
}

// Registry resolves pipeline_ref values per spec.md §4.4.
type Registry struct {
	catalog Catalog
}

// New builds a Registry that falls back to catalog for id-kind refs.
func New(catalog Catalog) *Registry {
	return &Registry{catalog: catalog}
}

// Resolve returns the PipelineConfig for cfg.PipelineRef, dispatching on
// cfg.PipelineRefKind. It never probes the filesystem to guess the kind —
// the discriminator is read from the stored ScheduleConfig (spec.md §9).
func (r *Registry) Resolve(ctx context.Context, cfg *domain.ScheduleConfig) (*domain.PipelineConfig, error) {
	switch cfg.PipelineRefKind {
	case domain.PipelineRefPath:
		return resolvePath(cfg.PipelineRef)
	case domain.PipelineRefID:
		if r.catalog == nil {
			return nil, orcherr.New(orcherr.KindNotFound, "registry.Resolve", domain.ErrPipelineNotFound)
		}
		pc, err := r.catalog.Lookup(ctx, cfg.PipelineRef)
		if err != nil {
			return nil, orcherr.New(orcherr.KindNotFound, "registry.Resolve", fmt.Errorf("%w: %s", domain.ErrPipelineNotFound, cfg.PipelineRef))
		}
		return pc, nil
	default:
		return nil, orcherr.New(orcherr.KindValidation, "registry.Resolve", fmt.Errorf("unknown pipeline_ref_kind %q", cfg.PipelineRefKind))
	}
}

func resolvePath(path string) (*domain.PipelineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcherr.New(orcherr.KindNotFound, "registry.resolvePath", fmt.Errorf("%w: %s", domain.ErrPipelineNotFound, path))
		}
		return nil, orcherr.New(orcherr.KindStorage, "registry.resolvePath", err)
	}
	var pc domain.PipelineConfig
	if err := json.Unmarshal(raw, &pc); err != nil {
		return nil, orcherr.New(orcherr.KindStorage, "registry.resolvePath", fmt.Errorf("parse pipeline document %s: %w", path, err))
	}
	return &pc, nil
}
