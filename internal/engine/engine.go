package engine

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	TRANSITION_HISTORY_LEN = 10
)

// CurrentTime returns current time.
// This variable is for testing purpose.
var CurrentTime = time.Now

// Action classifies what RecordFailure decided about a failure report.
type Action int8

const (
	// ActionFirstFailure means this is the first observed failure for the target.
	ActionFirstFailure Action = iota

	// ActionOngoingFailure means the target is still down and the cooldown
	// has elapsed, so another alert is due.
	ActionOngoingFailure

	// ActionSuppressed means the target is still down but the cooldown has
	// not elapsed yet, so no alert should be sent.
	ActionSuppressed
)

// String is make Action a string.
func (a Action) String() string {
	switch a {
	case ActionFirstFailure:
		return "first_failure"
	case ActionOngoingFailure:
		return "ongoing_failure"
	default:
		return "suppressed"
	}
}

// FailureRecord tracks a single target's ongoing failure.
// Exactly one record exists per currently unhealthy target.
type FailureRecord struct {
	FirstSeen           time.Time `json:"first_seen"`
	LastAlertSent       time.Time `json:"last_alert_sent"`
	Error               string    `json:"error"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Transition is one observed flip of a target's health.
type Transition struct {
	Time    time.Time `json:"time"`
	Healthy bool      `json:"healthy"`
}

// Recovery summarizes a failure that just ended.
type Recovery struct {
	FirstSeen time.Time
	Downtime  time.Duration
	Failures  int
}

// Options configures the Engine.
// Zero values fall back to the defaults noted on each field.
type Options struct {
	// Cooldown is the minimum time between repeat alerts for the same
	// ongoing failure. Default 30m.
	Cooldown time.Duration

	// FlappingThreshold is the number of transitions inside FlappingWindow
	// that makes a target flapping. Default 3.
	FlappingThreshold int

	// FlappingWindow is the trailing window for flap detection. Default 10m.
	FlappingWindow time.Duration

	// StatePath is where the engine persists itself. Empty disables persistence.
	StatePath string
}

func (o Options) withDefaults() Options {
	if o.Cooldown <= 0 {
		o.Cooldown = 30 * time.Minute
	}
	if o.FlappingThreshold <= 0 {
		o.FlappingThreshold = 3
	}
	if o.FlappingWindow <= 0 {
		o.FlappingWindow = 10 * time.Minute
	}
	return o
}

// Engine is the failure/recovery/flap/cooldown state machine for all targets.
//
// A single lock guards the four collections so that concurrent reports for
// the same target can never interleave their map mutations. The dashboard
// and the command listener read through the same lock.
type Engine struct {
	mu sync.Mutex

	opts   Options
	logger *zap.Logger

	failures     map[string]*FailureRecord
	transitions  map[string][]Transition
	acknowledged map[string]struct{}
	certExpiry   map[string]time.Time
}

// New makes an empty Engine. A nil logger is replaced with a no-op logger.
func New(opts Options, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		opts:         opts.withDefaults(),
		logger:       logger,
		failures:     make(map[string]*FailureRecord),
		transitions:  make(map[string][]Transition),
		acknowledged: make(map[string]struct{}),
		certExpiry:   make(map[string]time.Time),
	}
}

// RecordFailure reports that a target was observed unhealthy.
//
// The first report for a target creates its FailureRecord and returns
// ActionFirstFailure. Later reports increment the failure count and replace
// the error, returning ActionOngoingFailure once per cooldown period and
// ActionSuppressed in between.
func (e *Engine) RecordFailure(id, errMsg string) Action {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := CurrentTime()

	r, ok := e.failures[id]
	if !ok {
		e.failures[id] = &FailureRecord{
			FirstSeen:           now,
			LastAlertSent:       now,
			Error:               errMsg,
			ConsecutiveFailures: 1,
		}
		return ActionFirstFailure
	}

	r.ConsecutiveFailures++
	r.Error = errMsg

	if now.Sub(r.LastAlertSent) >= e.opts.Cooldown {
		r.LastAlertSent = now
		return ActionOngoingFailure
	}

	return ActionSuppressed
}

// RecordRecovery reports that a target was observed healthy again.
// It returns false if the target had no FailureRecord; recovering from
// nothing is a no-op, not an error.
func (e *Engine) RecordRecovery(id string) (Recovery, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.failures[id]
	if !ok {
		return Recovery{}, false
	}

	delete(e.failures, id)

	return Recovery{
		FirstSeen: r.FirstSeen,
		Downtime:  CurrentTime().Sub(r.FirstSeen),
		Failures:  r.ConsecutiveFailures,
	}, true
}

// RecordStateChange logs one health flip for a target and reports whether
// the target is now flapping.
//
// Callers must invoke this only when observed health differs from the
// previous observation. A target that stays down produces one transition and
// many failure reports; only rapid flips accumulate transitions.
func (e *Engine) RecordStateChange(id string, healthy bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := append(e.transitions[id], Transition{Time: CurrentTime(), Healthy: healthy})
	if len(ts) > TRANSITION_HISTORY_LEN {
		ts = ts[len(ts)-TRANSITION_HISTORY_LEN:]
	}
	e.transitions[id] = ts

	return e.isFlapping(id)
}

// isFlapping is the flap predicate. The caller must hold the lock.
func (e *Engine) isFlapping(id string) bool {
	count := 0
	edge := CurrentTime().Add(-e.opts.FlappingWindow)

	for _, t := range e.transitions[id] {
		if t.Time.After(edge) {
			count++
		}
	}

	return count >= e.opts.FlappingThreshold
}

// IsFlapping reports whether the target has flipped health at least
// FlappingThreshold times inside the trailing FlappingWindow.
func (e *Engine) IsFlapping(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.isFlapping(id)
}

// FlappingInfo returns the number of in-window transitions and the window size.
func (e *Engine) FlappingInfo(id string) (count int, window time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	edge := CurrentTime().Add(-e.opts.FlappingWindow)
	for _, t := range e.transitions[id] {
		if t.Time.After(edge) {
			count++
		}
	}

	return count, e.opts.FlappingWindow
}

// ClearTransitions drops the flap history of a target.
// Called when a recovery ends a flap episode, so that the next failure starts
// a fresh window.
func (e *Engine) ClearTransitions(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.transitions, id)
}

// Acknowledge mutes notifications for a target. State keeps being recorded.
func (e *Engine) Acknowledge(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.acknowledged[id] = struct{}{}
}

// Unacknowledge re-enables notifications for a target.
func (e *Engine) Unacknowledge(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.acknowledged, id)
}

// IsAcknowledged reports whether notifications for the target are muted.
func (e *Engine) IsAcknowledged(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.acknowledged[id]
	return ok
}

// Acknowledged returns the muted targets, sorted by id.
func (e *Engine) Acknowledged() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]string, 0, len(e.acknowledged))
	for id := range e.acknowledged {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetCertExpiry caches a TLS certificate expiry time for a domain.
func (e *Engine) SetCertExpiry(domain string, expiry time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.certExpiry[domain] = expiry
}

// CertExpiry returns the cached certificate expiry for a domain.
func (e *Engine) CertExpiry(domain string) (time.Time, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.certExpiry[domain]
	return t, ok
}

// CertExpiries returns a copy of the whole certificate expiry cache.
func (e *Engine) CertExpiries() map[string]time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make(map[string]time.Time, len(e.certExpiry))
	for k, v := range e.certExpiry {
		result[k] = v
	}
	return result
}

// FailureFor returns a copy of the target's FailureRecord, if it has one.
func (e *Engine) FailureFor(id string) (FailureRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.failures[id]
	if !ok {
		return FailureRecord{}, false
	}
	return *r, true
}

// IsFailing reports whether the target currently has a FailureRecord.
func (e *Engine) IsFailing(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.failures[id]
	return ok
}

// Failing returns a copy of every current FailureRecord keyed by target.
func (e *Engine) Failing() map[string]FailureRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make(map[string]FailureRecord, len(e.failures))
	for id, r := range e.failures {
		result[id] = *r
	}
	return result
}

// ForgetCertExpiry drops a domain from the certificate expiry cache.
// Used when a TLS target is removed from the configuration.
func (e *Engine) ForgetCertExpiry(domain string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.certExpiry, domain)
}

// Forget drops every trace of a target: failure, transitions, acknowledgment.
// Used when a target is removed from the configuration.
func (e *Engine) Forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.failures, id)
	delete(e.transitions, id)
	delete(e.acknowledged, id)
}
