package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kanshi-dev/kanshi/internal/anomaly"
	"github.com/kanshi-dev/kanshi/internal/checker"
	"github.com/kanshi-dev/kanshi/internal/config"
	"github.com/kanshi-dev/kanshi/internal/dashboard"
	"github.com/kanshi-dev/kanshi/internal/engine"
	"github.com/kanshi-dev/kanshi/internal/meta"
	"github.com/kanshi-dev/kanshi/internal/metrics"
	"github.com/kanshi-dev/kanshi/internal/monitor"
	"github.com/kanshi-dev/kanshi/internal/notify"
	"github.com/kanshi-dev/kanshi/internal/schedule"
)

// RunServer wires every component together and blocks until the context is
// canceled or SIGINT/SIGTERM arrives, then shuts down in order: timers stop,
// the dashboard drains, and state is flushed to disk.
func (cmd *KanshiCommand) RunServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (exitCode int) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eng := engine.New(engine.Options{
		Cooldown:          cfg.Alerting.Cooldown,
		FlappingThreshold: cfg.Alerting.FlappingThreshold,
		FlappingWindow:    cfg.Alerting.FlappingWindow,
		StatePath:         cfg.StatePath,
	}, logger.Named("engine"))
	if err := eng.Load(); err != nil {
		logger.Warn("failed to restore state", zap.Error(err))
	}

	det := anomaly.New(anomaly.Options{
		Enabled:    cfg.Anomaly.DetectionEnabled(),
		Multiplier: cfg.Anomaly.Multiplier,
		SampleSize: cfg.Anomaly.SampleSize,
		MinSamples: cfg.Anomaly.MinSamples,
	}, logger.Named("anomaly"))
	restoreDetector(det, cfg.AnomalyPath, logger.Named("anomaly"))

	transports, telegram, err := buildTransports(cfg.Alerting)
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 2
	}

	schedules, err := buildSchedules(cfg.Intervals)
	if err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 2
	}

	wg := &sync.WaitGroup{}

	var dispatcher *notify.Dispatcher
	var notifier monitor.Notifier
	if len(transports) > 0 {
		dispatcher = notify.NewDispatcher(transports, cfg.Alerting.RatePerSecond, logger.Named("notify"))
		notifier = dispatcher

		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Run(ctx)
		}()
	} else {
		logger.Info("no notification transports configured; alerts appear in logs only")
	}

	m := monitor.New(monitor.Options{
		RecoveryNotify: cfg.Alerting.RecoveryEnabled(),
		Schedules:      schedules,
	}, eng, det, notifier, logger.Named("monitor"))

	if err := m.Reload(cfg.Targets, cfg.Resources); err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 2
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.AutoSave(ctx, cfg.AutosaveInterval)
	}()

	if telegram != nil && cfg.Alerting.Telegram.Commands {
		commands := notify.NewCommands(telegram, m, dispatcher, logger.Named("commands"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			commands.Run(ctx)
		}()
	}

	if cmd.WatchConfig {
		if cmd.ConfigPath == "" {
			logger.Warn("watch requested but there is no configuration file to watch")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				watchConfig(ctx, cmd.ConfigPath, logger.Named("config"), func(next *config.Config) {
					if err := m.Reload(next.Targets, next.Resources); err != nil {
						logger.Error("reload failed; keeping previous targets", zap.Error(err))
					}
				})
			}()
		}
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		logger.Error("failed to register metrics", zap.Error(err))
	}

	m.Start(ctx)

	var queue dashboard.Queue
	if dispatcher != nil {
		queue = dispatcher
	}
	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: dashboard.New(m, eng, det, queue, reg, logger.Named("dashboard")),
	}

	logger.Info("kanshi started",
		zap.String("listen", cfg.Listen),
		zap.String("version", meta.Version),
		zap.Int("targets", len(m.TargetIDs())))

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		m.Stop()

		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("dashboard shutdown failed", zap.Error(err))
		}
	}()

	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		logger.Error("dashboard server failed", zap.Error(err))
		exitCode = 1
	}
	cancel()

	wg.Wait()

	saveDetector(det, cfg.AnomalyPath, logger.Named("anomaly"))
	logger.Info("kanshi stopped")

	return exitCode
}

// buildSchedules parses the configured per-category timer specs, each a Go
// duration or a cron expression. Empty specs are left out, falling back to
// the monitor default.
func buildSchedules(iv config.IntervalsConfig) (map[checker.Category]schedule.Schedule, error) {
	specs := []struct {
		cat  checker.Category
		spec string
	}{
		{checker.CategoryServices, iv.Services},
		{checker.CategoryHTTP, iv.HTTP},
		{checker.CategoryResources, iv.Resources},
		{checker.CategoryTLS, iv.TLS},
	}

	schedules := make(map[checker.Category]schedule.Schedule, len(specs))
	for _, s := range specs {
		if s.spec == "" {
			continue
		}
		sched, err := schedule.Parse(s.spec)
		if err != nil {
			return nil, fmt.Errorf("intervals.%s: %w", s.cat, err)
		}
		schedules[s.cat] = sched
	}

	return schedules, nil
}

// buildTransports turns the alerting configuration into notification
// transports. The Telegram transport is also returned alone because the
// command listener needs it.
func buildTransports(cfg config.AlertingConfig) ([]notify.Transport, *notify.Telegram, error) {
	var transports []notify.Transport
	var telegram *notify.Telegram

	if cfg.Telegram.Token != "" || cfg.Telegram.ChatID != "" {
		t, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram: %w", err)
		}
		telegram = t
		transports = append(transports, t)
	}

	if cfg.Webhook != "" {
		w, err := notify.NewWebhook(cfg.Webhook)
		if err != nil {
			return nil, nil, fmt.Errorf("webhook: %w", err)
		}
		transports = append(transports, w)
	}

	if len(cfg.Command) > 0 {
		e, err := notify.NewExec(cfg.Command[0], cfg.Command[1:]...)
		if err != nil {
			return nil, nil, fmt.Errorf("notification command: %w", err)
		}
		transports = append(transports, e)
	}

	return transports, telegram, nil
}

// restoreDetector loads the anomaly snapshot from the previous run.
// A missing or corrupt snapshot starts fresh; baselines rebuild on their own.
func restoreDetector(det *anomaly.Detector, path string, logger *zap.Logger) {
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return
	}
	if err != nil {
		logger.Warn("failed to read anomaly snapshot; starting fresh",
			zap.String("path", path),
			zap.Error(err))
		return
	}

	if err := det.Restore(data); err != nil {
		logger.Warn("anomaly snapshot is corrupt; starting fresh",
			zap.String("path", path),
			zap.Error(err))
	}
}

// saveDetector writes the anomaly snapshot for the next run.
func saveDetector(det *anomaly.Detector, path string, logger *zap.Logger) {
	if path == "" {
		return
	}

	data, err := det.Snapshot()
	if err != nil {
		logger.Error("failed to serialize anomaly snapshot", zap.Error(err))
		return
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Error("failed to write anomaly snapshot",
			zap.String("path", path),
			zap.Error(err))
	}
}
