package dashboard

import (
	_ "embed"
	"fmt"
	"net/http"
	"strings"
	textTemplate "text/template"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kanshi-dev/kanshi/internal/anomaly"
	"github.com/kanshi-dev/kanshi/internal/engine"
	"github.com/kanshi-dev/kanshi/internal/monitor"
)

//go:embed templates/status.txt
var statusTextTemplate string

// Queue reports the depth of the outbound notification queue.
// *notify.Dispatcher satisfies it.
type Queue interface {
	Len() int
}

// Dashboard aggregates the read-only status report.
// Everything it serves is a snapshot; it never mutates state.
type Dashboard struct {
	monitor  *monitor.Monitor
	engine   *engine.Engine
	detector *anomaly.Detector
	queue    Queue
	logger   *zap.Logger
	started  time.Time
}

// New builds the status handler. queue may be nil; reg carries the
// process's Prometheus collectors.
func New(m *monitor.Monitor, eng *engine.Engine, det *anomaly.Detector, queue Queue, reg *prometheus.Registry, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	d := &Dashboard{
		monitor:  m,
		engine:   eng,
		detector: det,
		queue:    queue,
		logger:   logger,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.Handle("/status", http.RedirectHandler("/status.txt", http.StatusMovedPermanently))
	mux.HandleFunc("/status.txt", StatusTextEndpoint(d))
	mux.HandleFunc("/status.json", StatusJSONEndpoint(d))
	mux.HandleFunc("/healthz", HealthzEndpoint())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/status.txt", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	return gziphandler.GzipHandler(mux)
}

// Report is the full status document served as /status.json.
type Report struct {
	GeneratedAt  time.Time                   `json:"generated_at"`
	Uptime       string                      `json:"uptime"`
	QueueDepth   int                         `json:"queue_depth"`
	Targets      []monitor.TargetStatus      `json:"targets"`
	Failures     map[string]FailureReport    `json:"failures,omitempty"`
	Flapping     []string                    `json:"flapping,omitempty"`
	Acknowledged []string                    `json:"acknowledged,omitempty"`
	CertExpiry   map[string]time.Time        `json:"cert_expiry,omitempty"`
	Baselines    map[string]anomaly.Baseline `json:"baselines,omitempty"`
}

// FailureReport is one entry of Report.Failures.
type FailureReport struct {
	Error     string    `json:"error"`
	FirstSeen time.Time `json:"first_seen"`
	Downtime  string    `json:"downtime"`
	Failures  int       `json:"failures"`
}

func (d *Dashboard) report() Report {
	now := time.Now()

	failing := d.engine.Failing()
	failures := make(map[string]FailureReport, len(failing))
	for id, rec := range failing {
		failures[id] = FailureReport{
			Error:     rec.Error,
			FirstSeen: rec.FirstSeen,
			Downtime:  now.Sub(rec.FirstSeen).Round(time.Second).String(),
			Failures:  rec.ConsecutiveFailures,
		}
	}

	var flapping []string
	for _, id := range d.monitor.TargetIDs() {
		if d.engine.IsFlapping(id) {
			flapping = append(flapping, id)
		}
	}

	r := Report{
		GeneratedAt:  now,
		Uptime:       now.Sub(d.started).Round(time.Second).String(),
		Targets:      d.monitor.Statuses(),
		Failures:     failures,
		Flapping:     flapping,
		Acknowledged: d.engine.Acknowledged(),
		CertExpiry:   d.engine.CertExpiries(),
		Baselines:    d.detector.Baselines(),
	}
	if d.queue != nil {
		r.QueueDepth = d.queue.Len()
	}
	return r
}

// StatusJSONEndpoint is the http.HandlerFunc for the /status.json page.
func StatusJSONEndpoint(d *Dashboard) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=UTF-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET")

		if err := json.NewEncoder(w).Encode(d.report()); err != nil {
			d.logger.Warn("failed to encode status report", zap.Error(err))
		}
	}
}

// StatusTextEndpoint is the http.HandlerFunc for the /status.txt page.
func StatusTextEndpoint(d *Dashboard) http.HandlerFunc {
	tmpl := textTemplate.Must(textTemplate.New("status.txt").Funcs(textTemplate.FuncMap{
		"join": strings.Join,
	}).Parse(statusTextTemplate))

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=UTF-8")

		if err := tmpl.Execute(w, d.report()); err != nil {
			d.logger.Warn("failed to render status page", zap.Error(err))
		}
	}
}

// HealthzEndpoint reports process liveness for load balancers.
func HealthzEndpoint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "HEALTHY")
	}
}
