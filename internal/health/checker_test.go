package health_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dteg/orchestrator/internal/health"
	"github.com/prometheus/client_golang/prometheus"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestChecker(t *testing.T, q health.Pinger) (*health.Checker, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	logger := slog.Default()
	return health.NewChecker(t.TempDir(), t.TempDir(), q, logger, reg), reg
}

func TestLiveness_AlwaysUp(t *testing.T) {
	c, _ := newTestChecker(t, &mockPinger{err: errors.New("queue down")})

	result := c.Liveness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	if result.Checks != nil {
		t.Fatalf("expected no checks, got %v", result.Checks)
	}
}

func TestReadiness_StoresUp(t *testing.T) {
	c, reg := newTestChecker(t, nil)

	result := c.Readiness(context.Background())
	if result.Status != "up" {
		t.Fatalf("expected status up, got %s", result.Status)
	}
	for _, name := range []string{"schedule_store", "execution_store"} {
		check, ok := result.Checks[name]
		if !ok {
			t.Fatalf("missing %s check", name)
		}
		if check.Status != "up" {
			t.Fatalf("expected %s up, got %s", name, check.Status)
		}
		if g := testGauge(t, reg, "orchestrator_health_check_up", name); g != 1 {
			t.Fatalf("expected gauge 1 for %s, got %f", name, g)
		}
	}
	if _, ok := result.Checks["queue"]; ok {
		t.Fatal("expected no queue check when queue is nil")
	}
}

func TestReadiness_QueueDown(t *testing.T) {
	c, reg := newTestChecker(t, &mockPinger{err: errors.New("connection refused")})

	result := c.Readiness(context.Background())
	if result.Status != "down" {
		t.Fatalf("expected status down, got %s", result.Status)
	}
	q := result.Checks["queue"]
	if q.Status != "down" {
		t.Fatalf("expected queue down, got %s", q.Status)
	}
	if q.Error == "" {
		t.Fatal("expected error message")
	}

	if g := testGauge(t, reg, "orchestrator_health_check_up", "queue"); g != 0 {
		t.Fatalf("expected gauge 0, got %f", g)
	}
}

func testGauge(t *testing.T, reg *prometheus.Registry, name, depLabel string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "dependency" && lp.GetValue() == depLabel {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{dependency=%q} not found", name, depLabel)
	return 0
}
