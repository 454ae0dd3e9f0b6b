package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kanshi-dev/kanshi/internal/anomaly"
	"github.com/kanshi-dev/kanshi/internal/checker"
	"github.com/kanshi-dev/kanshi/internal/engine"
	"github.com/kanshi-dev/kanshi/internal/metrics"
	"github.com/kanshi-dev/kanshi/internal/notify"
	"github.com/kanshi-dev/kanshi/internal/schedule"
)

// CurrentTime is the clock the monitor uses for alert texts and the
// once-per-day certificate warning bookkeeping.
// This variable is for testing purpose.
var CurrentTime = time.Now

const defaultMaxConcurrent = 16

// categories is the fixed evaluation order of check categories.
var categories = []checker.Category{
	checker.CategoryServices,
	checker.CategoryHTTP,
	checker.CategoryResources,
	checker.CategoryTLS,
}

// Notifier is where the monitor hands finished alert decisions.
// *notify.Dispatcher satisfies it; it may be nil to disable notifications.
type Notifier interface {
	Enqueue(m notify.Message)
	Len() int
}

// Options configures a Monitor.
type Options struct {
	// RecoveryNotify enables recovery alerts.
	RecoveryNotify bool

	// MaxConcurrent bounds how many checks run at once across all
	// categories. Default 16.
	MaxConcurrent int64

	// Schedules assigns a timer per category. Missing categories use
	// schedule.DefaultSchedule.
	Schedules map[checker.Category]schedule.Schedule
}

// Outcome is one target's result from an explicit run, for oneshot mode.
type Outcome struct {
	ID       string
	Category checker.Category
	Result   checker.Result
}

// Monitor owns the periodic timers and turns raw check results into state
// engine calls and alerts.
type Monitor struct {
	engine   *engine.Engine
	detector *anomaly.Detector
	notifier Notifier
	logger   *zap.Logger

	recoveryNotify bool
	schedules      map[checker.Category]schedule.Schedule
	sem            *semaphore.Weighted

	mu         sync.Mutex
	checkers   map[checker.Category][]checker.Checker
	tlsDomains map[string]string
	warnDays   map[string]int
	lastWarned map[string]time.Time
	latest     map[string]TargetStatus

	runner *cron.Cron
	warmup sync.WaitGroup
}

// New makes a Monitor without any targets; call Reload to install them.
// A nil logger is replaced with a no-op logger. n may be nil.
func New(opts Options, eng *engine.Engine, det *anomaly.Detector, n Notifier, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}

	schedules := make(map[checker.Category]schedule.Schedule, len(opts.Schedules))
	for cat, s := range opts.Schedules {
		schedules[cat] = s
	}

	return &Monitor{
		engine:         eng,
		detector:       det,
		notifier:       n,
		logger:         logger,
		recoveryNotify: opts.RecoveryNotify,
		schedules:      schedules,
		sem:            semaphore.NewWeighted(opts.MaxConcurrent),
		checkers:       make(map[checker.Category][]checker.Checker),
		tlsDomains:     make(map[string]string),
		warnDays:       make(map[string]int),
		lastWarned:     make(map[string]time.Time),
		latest:         make(map[string]TargetStatus),
	}
}

func (m *Monitor) scheduleFor(cat checker.Category) schedule.Schedule {
	if s, ok := m.schedules[cat]; ok && s != nil {
		return s
	}
	return schedule.DefaultSchedule
}

// Start registers every category on a cron runner and starts it.
// Interval schedules kick once immediately for startup warm-up.
func (m *Monitor) Start(ctx context.Context) {
	m.runner = cron.New()

	for _, cat := range categories {
		cat := cat
		sched := m.scheduleFor(cat)
		job := cron.FuncJob(func() {
			m.RunCategory(ctx, cat)
		})

		if sched.NeedKickWhenStart() {
			m.warmup.Add(1)
			go func() {
				defer m.warmup.Done()
				job.Run()
			}()
		}

		m.runner.Schedule(sched, job)
		m.logger.Info("category scheduled",
			zap.String("category", cat.String()),
			zap.String("schedule", sched.String()))
	}

	m.runner.Start()
}

// Stop halts the timers and blocks until in-flight cycles finish.
func (m *Monitor) Stop() {
	if m.runner != nil {
		<-m.runner.Stop().Done()
	}
	m.warmup.Wait()
}

// RunCategory checks every target of one category concurrently and waits for
// all of them. A panicking or canceled check yields no outcome this cycle.
func (m *Monitor) RunCategory(ctx context.Context, cat checker.Category) []Outcome {
	cs := m.checkersFor(cat)
	if len(cs) == 0 {
		return nil
	}

	start := time.Now()
	outcomes := make([]Outcome, 0, len(cs))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range cs {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := m.sem.Acquire(ctx, 1); err != nil {
				return
			}
			defer m.sem.Release(1)

			r, ok := m.runOne(ctx, c)
			if !ok {
				return
			}

			mu.Lock()
			outcomes = append(outcomes, Outcome{ID: c.ID(), Category: cat, Result: r})
			mu.Unlock()
		}()
	}
	wg.Wait()

	metrics.ObserveCycle(cat.String(), time.Since(start))
	return outcomes
}

// RunAll checks every category once, concurrently, and returns all outcomes.
// Used by oneshot mode and startup warm-up.
func (m *Monitor) RunAll(ctx context.Context) []Outcome {
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		all []Outcome
	)
	for _, cat := range categories {
		cat := cat
		wg.Add(1)
		go func() {
			defer wg.Done()

			out := m.RunCategory(ctx, cat)

			mu.Lock()
			all = append(all, out...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return all
}

// runOne executes a single check behind a recover boundary. A panic is
// logged and reported as no result, so one broken checker cannot take the
// cycle down with it.
func (m *Monitor) runOne(ctx context.Context, c checker.Checker) (r checker.Result, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("check panicked",
				zap.String("target", c.ID()),
				zap.Any("panic", p))
			ok = false
		}
	}()

	r = c.Check(ctx)
	m.apply(c.ID(), c.Category(), r)
	return r, true
}

func (m *Monitor) checkersFor(cat checker.Category) []checker.Checker {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := make([]checker.Checker, len(m.checkers[cat]))
	copy(cs, m.checkers[cat])
	return cs
}
