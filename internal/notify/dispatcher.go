package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultSendRate is the delivery ceiling in messages per second, roughly a
// 33ms gap between sends.
const DefaultSendRate = 30.0

// Dispatcher decouples alert decisions from alert delivery.
//
// Enqueue appends to an unbounded in-memory queue and returns immediately;
// a single drain loop delivers in FIFO order, paced by a rate limiter.
// Delivery is best-effort: a failed send is logged and the message dropped,
// keeping the queue fresh instead of replaying history.
type Dispatcher struct {
	limiter    *rate.Limiter
	transports []Transport
	logger     *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Message
	closed bool
}

// NewDispatcher builds a dispatcher over the given transports.
// perSecond caps delivery rate; zero or below selects DefaultSendRate.
func NewDispatcher(transports []Transport, perSecond float64, logger *zap.Logger) *Dispatcher {
	if perSecond <= 0 {
		perSecond = DefaultSendRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		limiter:    rate.NewLimiter(rate.Limit(perSecond), 1),
		transports: transports,
		logger:     logger,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Enqueue adds a message to the queue and returns without waiting for
// delivery. Messages enqueued after shutdown are dropped.
func (d *Dispatcher) Enqueue(m Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		d.logger.Warn("dropping notification enqueued after shutdown",
			zap.String("kind", string(m.Kind)))
		return
	}

	d.queue = append(d.queue, m)
	d.cond.Signal()
}

// Len reports how many messages are waiting for delivery.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.queue)
}

// Run drains the queue until ctx is canceled. Messages still queued at
// shutdown are counted, logged, and dropped.
func (d *Dispatcher) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		d.cond.Broadcast()
	}()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed || ctx.Err() != nil {
			d.closed = true
			dropped := len(d.queue)
			d.queue = nil
			d.mu.Unlock()
			if dropped > 0 {
				d.logger.Warn("dropping queued notifications on shutdown",
					zap.Int("count", dropped))
			}
			return
		}
		m := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		if err := d.limiter.Wait(ctx); err != nil {
			d.logger.Warn("dropping notification: canceled while pacing",
				zap.String("id", m.ID.String()),
				zap.String("kind", string(m.Kind)))
			continue
		}

		d.deliver(ctx, m)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, m Message) {
	for _, t := range d.transports {
		if err := t.Send(ctx, m); err != nil {
			d.logger.Warn("failed to deliver notification",
				zap.String("transport", t.Name()),
				zap.String("id", m.ID.String()),
				zap.String("kind", string(m.Kind)),
				zap.Error(err))
			continue
		}
		d.logger.Debug("notification delivered",
			zap.String("transport", t.Name()),
			zap.String("id", m.ID.String()),
			zap.String("kind", string(m.Kind)))
	}
}
