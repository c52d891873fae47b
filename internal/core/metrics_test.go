package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type capturedObservation struct {
	operation string
	success   bool
}

type captureRecorder struct {
	mu  sync.Mutex
	obs []capturedObservation
}

func (c *captureRecorder) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	c.mu.Lock()
	c.obs = append(c.obs, capturedObservation{operation, success})
	c.mu.Unlock()
}

func TestServiceObservesOperations(t *testing.T) {
	rec := &captureRecorder{}
	_, store := newTestService(t)
	seedPair(t, store)
	svc := NewService(store, WithMetricsRecorder(rec), WithClock(ClockFunc(func() time.Time { return frozen })))

	ctx := context.Background()
	if _, err := svc.ValidateMerge(ctx, validRequest()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	req := validRequest()
	req.Confirmed = false
	if _, err := svc.ExecuteMerge(ctx, req, "admin"); err == nil {
		t.Fatalf("expected confirmation failure")
	}
	if _, err := svc.ExecuteMerge(ctx, validRequest(), "admin"); err != nil {
		t.Fatalf("execute: %v", err)
	}

	want := []capturedObservation{
		{"validate_merge", true},
		{"execute_merge", false},
		{"execute_merge", true},
	}
	if len(rec.obs) != len(want) {
		t.Fatalf("unexpected observations: %+v", rec.obs)
	}
	for i, w := range want {
		if rec.obs[i] != w {
			t.Fatalf("observation %d: got %+v, want %+v", i, rec.obs[i], w)
		}
	}
}

func TestExpvarMetricsRecorderAggregates(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" {
		t.Fatalf("expected generated name")
	}
	ctx := context.Background()
	rec.Observe(ctx, "execute_merge", true, 40*time.Millisecond)
	rec.Observe(ctx, "execute_merge", true, 10*time.Millisecond)
	rec.Observe(ctx, "execute_merge", false, 5*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if got := snap.DurationsMS["execute_merge"]; got != 55 {
		t.Fatalf("unexpected duration total: %v", got)
	}
	if snap.Results["execute_merge"]["success"] != 2 || snap.Results["execute_merge"]["error"] != 1 {
		t.Fatalf("unexpected result counters: %+v", snap.Results)
	}
	if len(snap.DurationsMS) != 1 {
		t.Fatalf("blank operation must be ignored: %+v", snap.DurationsMS)
	}

	// Snapshot copies must not alias internal state.
	snap.Results["execute_merge"]["success"] = 99
	if rec.Snapshot().Results["execute_merge"]["success"] != 2 {
		t.Fatalf("snapshot aliases recorder state")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "execute_merge", true, 20*time.Millisecond)
	rec.Observe(ctx, "execute_merge", false, 20*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	byName := map[string]bool{}
	for _, f := range families {
		byName[f.GetName()] = true
	}
	for _, name := range []string{
		"patientcore_merge_operations_total",
		"patientcore_merge_operation_duration_seconds",
	} {
		if !byName[name] {
			t.Fatalf("metric %s not gathered, have %v", name, byName)
		}
	}

	// Registering twice with the same registry must surface the conflict.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}
