package dashboard_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kanshi-dev/kanshi/internal/anomaly"
	"github.com/kanshi-dev/kanshi/internal/config"
	"github.com/kanshi-dev/kanshi/internal/dashboard"
	"github.com/kanshi-dev/kanshi/internal/engine"
	"github.com/kanshi-dev/kanshi/internal/metrics"
	"github.com/kanshi-dev/kanshi/internal/monitor"
)

type fixedQueue int

func (q fixedQueue) Len() int {
	return int(q)
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()

	eng := engine.New(engine.Options{}, nil)
	det := anomaly.New(anomaly.Options{Enabled: true}, nil)
	m := monitor.New(monitor.Options{}, eng, det, nil, nil)

	noResources := false
	err := m.Reload(config.TargetsConfig{
		Services: []config.ServiceTarget{{Name: "nginx.service", Unit: "nginx.service"}},
	}, config.ResourcesConfig{Enabled: &noResources})
	if err != nil {
		t.Fatalf("failed to reload: %s", err)
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("failed to register metrics: %s", err)
	}

	srv := httptest.NewServer(dashboard.New(m, eng, det, fixedQueue(3), reg, nil))
	t.Cleanup(srv.Close)

	return srv, eng
}

func TestStatusJSON(t *testing.T) {
	srv, eng := newTestServer(t)

	eng.RecordFailure("nginx.service", "unit is inactive")
	eng.Acknowledge("backup")

	resp, err := http.Get(srv.URL + "/status.json")
	if err != nil {
		t.Fatalf("failed to get: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("unexpected content type: %q", ct)
	}

	var report dashboard.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %s", err)
	}

	f, ok := report.Failures["nginx.service"]
	if !ok {
		t.Fatalf("expected nginx.service in failures but got %v", report.Failures)
	}
	if f.Error != "unit is inactive" || f.Failures != 1 {
		t.Errorf("unexpected failure entry: %+v", f)
	}
	if diff := cmp.Diff([]string{"backup"}, report.Acknowledged); diff != "" {
		t.Errorf("unexpected acknowledged list:\n%s", diff)
	}
	if report.QueueDepth != 3 {
		t.Errorf("expected queue depth 3 but got %d", report.QueueDepth)
	}
}

func TestStatusText(t *testing.T) {
	srv, eng := newTestServer(t)

	eng.RecordFailure("nginx.service", "unit is inactive")
	eng.RecordStateChange("nginx.service", false)
	eng.RecordStateChange("nginx.service", true)
	eng.RecordStateChange("nginx.service", false)

	resp, err := http.Get(srv.URL + "/status.txt")
	if err != nil {
		t.Fatalf("failed to get: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read body: %s", err)
	}
	body := string(raw)

	for _, want := range []string{
		"kanshi status",
		"nginx.service: unit is inactive",
		"flapping: nginx.service",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected body to contain %q but got:\n%s", want, body)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("failed to get: %s", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(raw) != "HEALTHY\n" {
		t.Errorf("expected 200 HEALTHY but got %d %q", resp.StatusCode, string(raw))
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	metrics.ObserveCheck("http", true)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("failed to get: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200 but got %d", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "kanshi_checks_total") {
		t.Errorf("expected kanshi_checks_total in metrics output")
	}
}

func TestRootRedirectsToStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("failed to get: %s", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "kanshi status") {
		t.Errorf("expected the root to land on the status page but got %d", resp.StatusCode)
	}
}

func TestUnknownPathIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/nope")
	if err != nil {
		t.Fatalf("failed to get: %s", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 but got %d", resp.StatusCode)
	}
}
