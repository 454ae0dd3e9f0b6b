package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kanshi-dev/kanshi/internal/metrics"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()

	if err := metrics.Register(reg); err != nil {
		t.Fatalf("failed to register collectors: %s", err)
	}

	// Registering twice must be tolerated for reloads and tests.
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("second registration failed: %s", err)
	}
}

func TestObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("failed to register collectors: %s", err)
	}

	metrics.ObserveCheck("http", true)
	metrics.ObserveCheck("http", false)
	metrics.ObserveCycle("http", 120*time.Millisecond)
	metrics.ObserveAlert("failure")
	metrics.SetQueueDepth(3)
	metrics.SetTargets("http", 2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather: %s", err)
	}

	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}

	for _, name := range []string{
		"kanshi_checks_total",
		"kanshi_check_failures_total",
		"kanshi_alerts_total",
		"kanshi_check_cycle_seconds",
		"kanshi_notification_queue_depth",
		"kanshi_targets_configured",
	} {
		if !found[name] {
			t.Errorf("expected metric family %s to be exposed", name)
		}
	}
}
