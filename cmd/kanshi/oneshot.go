package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kanshi-dev/kanshi/internal/anomaly"
	"github.com/kanshi-dev/kanshi/internal/config"
	"github.com/kanshi-dev/kanshi/internal/engine"
	"github.com/kanshi-dev/kanshi/internal/monitor"
)

// RunOneshot checks every configured target exactly once, prints one line
// per target, and exits 1 if anything is unhealthy. It never touches the
// state files, so a oneshot run does not disturb a running server.
func (cmd *KanshiCommand) RunOneshot(ctx context.Context, cfg *config.Config, logger *zap.Logger) (exitCode int) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := engine.New(engine.Options{
		Cooldown:          cfg.Alerting.Cooldown,
		FlappingThreshold: cfg.Alerting.FlappingThreshold,
		FlappingWindow:    cfg.Alerting.FlappingWindow,
	}, logger.Named("engine"))

	// A single run has no baseline history to judge against.
	det := anomaly.New(anomaly.Options{Enabled: false}, logger.Named("anomaly"))

	m := monitor.New(monitor.Options{}, eng, det, nil, logger.Named("monitor"))
	if err := m.Reload(cfg.Targets, cfg.Resources); err != nil {
		fmt.Fprintf(cmd.ErrStream, "error: %s\n", err)
		return 2
	}

	outcomes := m.RunAll(ctx)
	sort.Slice(outcomes, func(i, j int) bool {
		return outcomes[i].ID < outcomes[j].ID
	})

	unhealthy := 0
	for _, o := range outcomes {
		fmt.Fprintln(cmd.OutStream, formatOutcome(o))
		if !o.Result.Healthy {
			unhealthy++
		}
	}

	if unhealthy > 0 {
		fmt.Fprintf(cmd.ErrStream, "%d of %d checks unhealthy\n", unhealthy, len(outcomes))
		return 1
	}
	return 0
}

func formatOutcome(o monitor.Outcome) string {
	if o.Result.Healthy {
		return fmt.Sprintf("[ OK ] %s (%s) %s", o.ID, o.Category, o.Result.ResponseTime.Round(time.Millisecond))
	}
	return fmt.Sprintf("[DOWN] %s (%s): %s", o.ID, o.Category, o.Result.Error)
}
