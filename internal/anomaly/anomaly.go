package anomaly

import (
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kanshi-dev/kanshi/internal/ringbuf"
)

const (
	// ReasonDisabled is reported when anomaly detection is turned off.
	ReasonDisabled = "detection disabled"

	// ReasonInsufficientSamples is reported until enough samples are recorded
	// to build a trustworthy baseline.
	ReasonInsufficientSamples = "insufficient samples"
)

// Options configures the Detector.
// Zero values fall back to the defaults noted on each field.
type Options struct {
	// Enabled turns detection on. When false, Record and Check are no-ops.
	Enabled bool

	// Multiplier scales the median baseline into the anomaly threshold. Default 3.0.
	Multiplier float64

	// SampleSize is the number of recent samples kept per target. Default 20.
	SampleSize int

	// MinSamples is the minimum number of recorded samples before Check
	// starts judging. Default 5.
	MinSamples int
}

func (o Options) withDefaults() Options {
	if o.Multiplier <= 0 {
		o.Multiplier = 3.0
	}
	if o.SampleSize <= 0 {
		o.SampleSize = 20
	}
	if o.MinSamples <= 0 {
		o.MinSamples = 5
	}
	return o
}

// Verdict is the result of judging one latency sample.
type Verdict struct {
	// Anomaly reports whether the sample exceeded the baseline threshold.
	Anomaly bool

	// Reason explains why the sample was not judged, if it was not.
	Reason string

	// Median is the baseline the sample was compared against, in milliseconds.
	Median float64

	// Deviation is sample/median. For example 4.0 means 4x slower than usual.
	Deviation float64

	// Samples is the number of recorded samples for the target.
	Samples int
}

// Baseline is a read-only summary of one target's recorded history.
type Baseline struct {
	Median  float64 `json:"median"`
	Mean    float64 `json:"mean"`
	Samples int     `json:"samples"`
}

// Detector judges latency samples against a per-target rolling baseline.
//
// The median is used as the baseline rather than the mean so that a single
// slow sample cannot distort what later samples are judged against.
type Detector struct {
	mu      sync.Mutex
	opts    Options
	buffers map[string]*ringbuf.Buffer
	logger  *zap.Logger
}

// New makes a Detector. A nil logger is replaced with a no-op logger.
func New(opts Options, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Detector{
		opts:    opts.withDefaults(),
		buffers: make(map[string]*ringbuf.Buffer),
		logger:  logger,
	}
}

// Record stores a latency sample for the target.
// It does nothing when detection is disabled.
func (d *Detector) Record(id string, millis float64) {
	if !d.opts.Enabled {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		b, _ = ringbuf.New(d.opts.SampleSize)
		d.buffers[id] = b
	}

	b.Push(millis)
}

// Check judges a latency sample against the target's baseline.
// The sample itself is not recorded; callers record via Record first.
func (d *Detector) Check(id string, millis float64) Verdict {
	if !d.opts.Enabled {
		return Verdict{Reason: ReasonDisabled}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok || b.Count() < d.opts.MinSamples {
		v := Verdict{Reason: ReasonInsufficientSamples}
		if ok {
			v.Samples = b.Count()
		}
		return v
	}

	median := b.Median()
	threshold := median * d.opts.Multiplier

	v := Verdict{
		Anomaly: millis > threshold,
		Median:  median,
		Samples: b.Count(),
	}
	if median > 0 {
		v.Deviation = millis / median
	}

	return v
}

// Forget drops all recorded samples for the target.
func (d *Detector) Forget(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.buffers, id)
}

// Baselines returns a summary of every tracked target, for the dashboard.
func (d *Detector) Baselines() map[string]Baseline {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make(map[string]Baseline, len(d.buffers))
	for id, b := range d.buffers {
		result[id] = Baseline{
			Median:  b.Median(),
			Mean:    b.Mean(),
			Samples: b.Count(),
		}
	}

	return result
}

// Snapshot serializes every tracked buffer, keyed by target, for restart continuity.
func (d *Detector) Snapshot() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return json.Marshal(d.buffers)
}

// Restore loads a snapshot made by Snapshot.
// Entries that cannot be parsed are skipped with a warning rather than
// failing the whole restore.
func (d *Detector) Restore(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, entry := range raw {
		var b ringbuf.Buffer
		if err := json.Unmarshal(entry, &b); err != nil {
			d.logger.Warn("skipping corrupt anomaly snapshot entry",
				zap.String("target", id),
				zap.Error(err))
			continue
		}
		d.buffers[id] = &b
	}

	return nil
}
