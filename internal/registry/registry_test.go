package registry_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dteg/orchestrator/internal/domain"
	"github.com/dteg/orchestrator/internal/orcherr"
	"github.com/dteg/orchestrator/internal/registry"
	"github.com/stretchr/testify/require"
)

func writePipeline(t *testing.T, dir, name string, pc domain.PipelineConfig) string {
	t.Helper()
	raw, err := json.Marshal(pc)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, raw, 0o644))
	return path
}

func TestResolvePathKind(t *testing.T) {
	dir := t.TempDir()
	path := writePipeline(t, dir, "p.json", domain.PipelineConfig{ID: "p1", Name: "p one"})

	r := registry.New(nil)
	cfg := &domain.ScheduleConfig{PipelineRefKind: domain.PipelineRefPath, PipelineRef: path}
	pc, err := r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, "p1", pc.ID)
}

func TestResolveIDKindViaCatalog(t *testing.T) {
	dir := t.TempDir()
	writePipeline(t, dir, "abc.json", domain.PipelineConfig{ID: "abc", Name: "catalog pipeline"})

	r := registry.New(registry.NewFileCatalog(dir))
	cfg := &domain.ScheduleConfig{PipelineRefKind: domain.PipelineRefID, PipelineRef: "abc"}
	pc, err := r.Resolve(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, "catalog pipeline", pc.Name)
}

func TestResolveNotFound(t *testing.T) {
	r := registry.New(registry.NewFileCatalog(t.TempDir()))
	cfg := &domain.ScheduleConfig{PipelineRefKind: domain.PipelineRefID, PipelineRef: "missing"}
	_, err := r.Resolve(context.Background(), cfg)
	require.Error(t, err)
	require.True(t, orcherr.Is(err, orcherr.KindNotFound))
}
