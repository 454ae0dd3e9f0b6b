package checker

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const defaultResourceTimeout = 15 * time.Second

// Default thresholds for resource checks configured without one.
const (
	DefaultCPUThreshold    = 90.0
	DefaultMemoryThreshold = 90.0
	DefaultDiskThreshold   = 90.0
	DefaultLoadThreshold   = 8.0
)

// ResourceChecker samples one host resource and compares it to a threshold.
type ResourceChecker struct {
	name      string
	kind      string
	threshold float64
	path      string
	timeout   time.Duration
}

// NewResource builds a checker for kind ∈ cpu, memory, disk, load.
// A threshold of zero or below selects the kind's default; path applies to
// disk checks only and defaults to "/".
func NewResource(name, kind string, threshold float64, path string) (*ResourceChecker, error) {
	if name == "" {
		return nil, ErrMissingName
	}

	switch kind {
	case "cpu", "memory", "disk", "load":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, kind)
	}

	if threshold <= 0 {
		switch kind {
		case "cpu":
			threshold = DefaultCPUThreshold
		case "memory":
			threshold = DefaultMemoryThreshold
		case "disk":
			threshold = DefaultDiskThreshold
		case "load":
			threshold = DefaultLoadThreshold
		}
	}

	if path == "" {
		path = "/"
	}

	return &ResourceChecker{
		name:      name,
		kind:      kind,
		threshold: threshold,
		path:      path,
		timeout:   defaultResourceTimeout,
	}, nil
}

func (c *ResourceChecker) ID() string {
	return c.name
}

func (c *ResourceChecker) Category() Category {
	return CategoryResources
}

func (c *ResourceChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	value, err := c.sample(ctx)
	if err != nil {
		return timeoutOr(ctx, Result{
			Healthy: false,
			Error:   fmt.Sprintf("failed to read %s: %s", c.kind, err),
		})
	}

	return timeoutOr(ctx, resourceResult(c.kind, value, c.threshold))
}

func (c *ResourceChecker) sample(ctx context.Context) (float64, error) {
	switch c.kind {
	case "cpu":
		// One second of sampling; instantaneous CPU percent is meaningless.
		percents, err := cpu.PercentWithContext(ctx, time.Second, false)
		if err != nil {
			return 0, err
		}
		if len(percents) == 0 {
			return 0, fmt.Errorf("no cpu sample")
		}
		return percents[0], nil
	case "memory":
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return vm.UsedPercent, nil
	case "disk":
		usage, err := disk.UsageWithContext(ctx, c.path)
		if err != nil {
			return 0, err
		}
		return usage.UsedPercent, nil
	default: // load
		avg, err := load.AvgWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return avg.Load1, nil
	}
}

// resourceResult compares a sampled value to its threshold. Percent kinds
// format with a % sign; load is a plain number.
func resourceResult(kind string, value, threshold float64) Result {
	unit := "%"
	if kind == "load" {
		unit = ""
	}

	detail := map[string]string{
		"value":     fmt.Sprintf("%.1f%s", value, unit),
		"threshold": fmt.Sprintf("%.1f%s", threshold, unit),
	}

	if value >= threshold {
		return Result{
			Healthy: false,
			Error:   fmt.Sprintf("%s usage %.1f%s exceeds threshold %.1f%s", kind, value, unit, threshold, unit),
			Detail:  detail,
		}
	}

	return Result{Healthy: true, Detail: detail}
}
