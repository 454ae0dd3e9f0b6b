package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	checksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kanshi",
			Name:      "checks_total",
			Help:      "Total number of checks run, partitioned by category.",
		},
		[]string{"category"},
	)

	checkFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kanshi",
			Name:      "check_failures_total",
			Help:      "Total number of unhealthy check results, partitioned by category.",
		},
		[]string{"category"},
	)

	alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kanshi",
			Name:      "alerts_total",
			Help:      "Total number of notifications emitted, partitioned by kind.",
		},
		[]string{"kind"},
	)

	cycleSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kanshi",
			Name:      "check_cycle_seconds",
			Help:      "Duration of one whole category check cycle in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"category"},
	)

	notificationQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kanshi",
			Name:      "notification_queue_depth",
			Help:      "Number of notifications waiting for delivery.",
		},
	)

	targetsConfigured = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kanshi",
			Name:      "targets_configured",
			Help:      "Number of configured targets, partitioned by category.",
		},
		[]string{"category"},
	)
)

// Register attaches kanshi collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		checksTotal,
		checkFailuresTotal,
		alertsTotal,
		cycleSeconds,
		notificationQueueDepth,
		targetsConfigured,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveCheck records one check result.
func ObserveCheck(category string, healthy bool) {
	checksTotal.WithLabelValues(category).Inc()
	if !healthy {
		checkFailuresTotal.WithLabelValues(category).Inc()
	}
}

// ObserveCycle records the duration of one category cycle.
func ObserveCycle(category string, duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	cycleSeconds.WithLabelValues(category).Observe(duration.Seconds())
}

// ObserveAlert records one emitted notification.
func ObserveAlert(kind string) {
	alertsTotal.WithLabelValues(kind).Inc()
}

// SetQueueDepth publishes the dispatcher backlog size.
func SetQueueDepth(n int) {
	notificationQueueDepth.Set(float64(n))
}

// SetTargets publishes how many targets a category currently has.
func SetTargets(category string, n int) {
	targetsConfigured.WithLabelValues(category).Set(float64(n))
}
