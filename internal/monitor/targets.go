package monitor

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kanshi-dev/kanshi/internal/checker"
	"github.com/kanshi-dev/kanshi/internal/config"
	"github.com/kanshi-dev/kanshi/internal/metrics"
)

// registry is one immutable build of the configured target set.
type registry struct {
	checkers   map[checker.Category][]checker.Checker
	warnDays   map[string]int
	tlsDomains map[string]string
}

func (r *registry) add(c checker.Checker) {
	r.checkers[c.Category()] = append(r.checkers[c.Category()], c)
}

func (r *registry) ids() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, cs := range r.checkers {
		for _, c := range cs {
			ids[c.ID()] = struct{}{}
		}
	}
	return ids
}

func buildRegistry(targets config.TargetsConfig, res config.ResourcesConfig) (*registry, error) {
	reg := &registry{
		checkers:   make(map[checker.Category][]checker.Checker),
		warnDays:   make(map[string]int),
		tlsDomains: make(map[string]string),
	}

	for _, t := range targets.Containers {
		c, err := checker.NewContainer(t.Name, t.Container, 0)
		if err != nil {
			return nil, fmt.Errorf("container target %q: %w", t.Name, err)
		}
		reg.add(c)
	}
	for _, t := range targets.Processes {
		c, err := checker.NewProcess(t.Name, t.Process, 0)
		if err != nil {
			return nil, fmt.Errorf("process target %q: %w", t.Name, err)
		}
		reg.add(c)
	}
	for _, t := range targets.Services {
		c, err := checker.NewService(t.Name, t.Unit, 0)
		if err != nil {
			return nil, fmt.Errorf("service target %q: %w", t.Name, err)
		}
		reg.add(c)
	}
	for _, t := range targets.HTTP {
		c, err := checker.NewHTTP(t.Name, t.URL, t.ExpectStatus, t.Timeout)
		if err != nil {
			return nil, fmt.Errorf("http target %q: %w", t.Name, err)
		}
		reg.add(c)
	}
	for _, t := range targets.TLS {
		c, err := checker.NewTLS(t.Name, t.Host, 0)
		if err != nil {
			return nil, fmt.Errorf("tls target %q: %w", t.Name, err)
		}
		reg.add(c)
		reg.warnDays[t.Name] = t.WarnDays
		reg.tlsDomains[t.Name] = c.Host()
	}

	if res.MonitoringEnabled() {
		hostChecks := []struct {
			name, kind string
			threshold  float64
			path       string
		}{
			{"cpu", "cpu", res.CPUThreshold, ""},
			{"memory", "memory", res.MemoryThreshold, ""},
			{"disk", "disk", res.DiskThreshold, res.DiskPath},
			{"load", "load", res.LoadThreshold, ""},
		}
		for _, h := range hostChecks {
			c, err := checker.NewResource(h.name, h.kind, h.threshold, h.path)
			if err != nil {
				return nil, fmt.Errorf("resource target %q: %w", h.name, err)
			}
			reg.add(c)
		}
	}

	return reg, nil
}

// Reload builds checkers from the configuration and swaps the target set.
// On error the current targets stay active. State for removed targets is
// forgotten in both the engine and the detector.
func (m *Monitor) Reload(targets config.TargetsConfig, res config.ResourcesConfig) error {
	reg, err := buildRegistry(targets, res)
	if err != nil {
		return err
	}

	newIDs := reg.ids()
	keptDomains := make(map[string]bool, len(reg.tlsDomains))
	for _, d := range reg.tlsDomains {
		keptDomains[d] = true
	}

	var removed, removedDomains []string

	m.mu.Lock()
	for _, cs := range m.checkers {
		for _, c := range cs {
			id := c.ID()
			if _, ok := newIDs[id]; ok {
				continue
			}
			removed = append(removed, id)
			delete(m.latest, id)
			if domain, ok := m.tlsDomains[id]; ok && !keptDomains[domain] {
				removedDomains = append(removedDomains, domain)
				delete(m.lastWarned, domain)
			}
		}
	}
	m.checkers = reg.checkers
	m.warnDays = reg.warnDays
	m.tlsDomains = reg.tlsDomains
	m.mu.Unlock()

	for _, id := range removed {
		m.engine.Forget(id)
		m.detector.Forget(id)
	}
	for _, d := range removedDomains {
		m.engine.ForgetCertExpiry(d)
	}

	for _, cat := range categories {
		metrics.SetTargets(cat.String(), len(reg.checkers[cat]))
	}

	m.logger.Info("targets loaded",
		zap.Int("targets", len(newIDs)),
		zap.Int("removed", len(removed)))

	return nil
}

// TargetIDs returns every configured target id, sorted.
func (m *Monitor) TargetIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids []string
	for _, cs := range m.checkers {
		for _, c := range cs {
			ids = append(ids, c.ID())
		}
	}
	sort.Strings(ids)
	return ids
}

// Acknowledge mutes notifications for a target. Checks keep running and
// state keeps mutating; only the alerts stop.
func (m *Monitor) Acknowledge(id string) {
	m.engine.Acknowledge(id)
	m.logger.Info("target acknowledged", zap.String("target", id))
}

// Unacknowledge resumes notifications for a target.
func (m *Monitor) Unacknowledge(id string) {
	m.engine.Unacknowledge(id)
	m.logger.Info("target unacknowledged", zap.String("target", id))
}

// Acknowledged lists acknowledged target ids, sorted.
func (m *Monitor) Acknowledged() []string {
	return m.engine.Acknowledged()
}

// StatusSummary renders a short fleet summary for the /status command.
func (m *Monitor) StatusSummary() string {
	total := len(m.TargetIDs())

	failing := m.engine.Failing()
	if len(failing) == 0 {
		return fmt.Sprintf("all %d targets healthy", total)
	}

	ids := make([]string, 0, len(failing))
	for id := range failing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := CurrentTime()
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d targets down", len(failing), total)
	for _, id := range ids {
		rec := failing[id]
		fmt.Fprintf(&b, "\n%s: down for %s (%d failures)",
			id, humanDuration(now.Sub(rec.FirstSeen)), rec.ConsecutiveFailures)
	}
	return b.String()
}
