package monitor

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/kanshi-dev/kanshi/internal/checker"
	"github.com/kanshi-dev/kanshi/internal/config"
	"github.com/kanshi-dev/kanshi/internal/engine"
	"github.com/kanshi-dev/kanshi/internal/metrics"
	"github.com/kanshi-dev/kanshi/internal/notify"
)

// TargetStatus is the latest observed state of one target, for the dashboard.
type TargetStatus struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	LatencyMS float64   `json:"latency_ms,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// apply runs one check result through the state pipeline.
//
// At most one availability alert (failure, flapping, or recovery) leaves per
// result. Anomaly and certificate warnings are independent of that pipeline:
// a healthy but slow service alerts without being marked failing.
func (m *Monitor) apply(id string, cat checker.Category, r checker.Result) {
	metrics.ObserveCheck(cat.String(), r.Healthy)
	m.recordStatus(id, cat, r)

	muted := m.engine.IsAcknowledged(id)

	if cat == checker.CategoryTLS {
		m.recordCert(id, r, muted)
	}

	wasHealthy := !m.engine.IsFailing(id)
	if wasHealthy != r.Healthy {
		m.engine.RecordStateChange(id, r.Healthy)
	}

	if !r.Healthy {
		m.logger.Info("check failed",
			zap.String("target", id),
			zap.String("category", cat.String()),
			zap.String("error", r.Error))

		action := m.engine.RecordFailure(id, r.Error)
		if muted || action == engine.ActionSuppressed {
			return
		}

		if m.engine.IsFlapping(id) {
			count, window := m.engine.FlappingInfo(id)
			m.send(notify.KindFlapping,
				fmt.Sprintf("%s is flapping: %d state changes in the last %s", id, count, humanDuration(window)))
			return
		}

		if action == engine.ActionFirstFailure {
			m.send(notify.KindFailure, fmt.Sprintf("%s is down: %s", id, r.Error))
		} else {
			rec, _ := m.engine.FailureFor(id)
			m.send(notify.KindFailure,
				fmt.Sprintf("%s is still down (%d failures over %s): %s",
					id, rec.ConsecutiveFailures, humanDuration(CurrentTime().Sub(rec.FirstSeen)), r.Error))
		}
		return
	}

	m.logger.Debug("check passed",
		zap.String("target", id),
		zap.Duration("elapsed", r.ResponseTime))

	if rec, ok := m.engine.RecordRecovery(id); ok {
		// Recovering out of a flap episode resets the history; the next
		// failure starts a fresh window instead of inheriting the storm.
		if m.engine.IsFlapping(id) {
			m.engine.ClearTransitions(id)
		}

		m.logger.Info("target recovered",
			zap.String("target", id),
			zap.Duration("downtime", rec.Downtime),
			zap.Int("failures", rec.Failures))

		if !muted && m.recoveryNotify {
			m.send(notify.KindRecovery,
				fmt.Sprintf("%s recovered after %s (%d failures)", id, humanDuration(rec.Downtime), rec.Failures))
		}
	}

	if r.ResponseTime > 0 {
		m.judgeLatency(id, r, muted)
	}
}

// judgeLatency records the sample and emits a degradation alert when it
// stands far outside the target's baseline.
func (m *Monitor) judgeLatency(id string, r checker.Result, muted bool) {
	ms := float64(r.ResponseTime) / float64(time.Millisecond)
	m.detector.Record(id, ms)

	v := m.detector.Check(id, ms)
	if !v.Anomaly {
		return
	}

	m.logger.Info("latency anomaly",
		zap.String("target", id),
		zap.Float64("millis", ms),
		zap.Float64("median", v.Median),
		zap.Float64("deviation", v.Deviation))

	if muted {
		return
	}

	m.send(notify.KindAnomaly,
		fmt.Sprintf("%s responded in %s, %.1fx slower than its %.0fms median (%d samples)",
			id, r.ResponseTime.Round(time.Millisecond), v.Deviation, v.Median, v.Samples))
}

// recordCert keeps the certificate expiry cache current and warns when a
// certificate is close to expiry. Warnings repeat at most once a day per
// domain; an expired certificate is already covered by the failure pipeline.
func (m *Monitor) recordCert(id string, r checker.Result, muted bool) {
	raw, ok := r.Detail["not_after"]
	if !ok {
		return
	}
	notAfter, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return
	}

	domain := r.Detail["host"]
	if domain == "" {
		domain = id
	}

	m.engine.SetCertExpiry(domain, notAfter)

	if !r.Healthy || muted {
		return
	}

	now := CurrentTime()
	daysLeft := int(notAfter.Sub(now).Hours() / 24)
	if daysLeft > m.warnDaysFor(id) {
		return
	}

	m.mu.Lock()
	last, warned := m.lastWarned[domain]
	if warned && now.Sub(last) < 24*time.Hour {
		m.mu.Unlock()
		return
	}
	m.lastWarned[domain] = now
	m.mu.Unlock()

	m.send(notify.KindCertExpiry,
		fmt.Sprintf("certificate for %s expires in %d days (%s)", domain, daysLeft, notAfter.Format("2006-01-02")))
}

func (m *Monitor) warnDaysFor(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.warnDays[id]; ok {
		return d
	}
	return config.DefaultCertWarnDays
}

func (m *Monitor) send(kind notify.Kind, text string) {
	metrics.ObserveAlert(string(kind))

	if m.notifier == nil {
		return
	}
	m.notifier.Enqueue(notify.NewMessage(kind, text))
	metrics.SetQueueDepth(m.notifier.Len())
}

func (m *Monitor) recordStatus(id string, cat checker.Category, r checker.Result) {
	s := TargetStatus{
		ID:        id,
		Category:  cat.String(),
		Healthy:   r.Healthy,
		Error:     r.Error,
		CheckedAt: CurrentTime(),
	}
	if r.ResponseTime > 0 {
		s.LatencyMS = float64(r.ResponseTime) / float64(time.Millisecond)
	}

	m.mu.Lock()
	m.latest[id] = s
	m.mu.Unlock()
}

// Statuses returns the latest result of every target, sorted by id.
func (m *Monitor) Statuses() []TargetStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TargetStatus, 0, len(m.latest))
	for _, s := range m.latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// humanDuration renders a duration the way humans say it ("32 minutes").
func humanDuration(d time.Duration) string {
	if d < time.Minute {
		return d.Round(time.Second).String()
	}
	now := CurrentTime()
	return strings.TrimSpace(humanize.RelTime(now.Add(-d), now, "", ""))
}
