package checker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const defaultProcessTimeout = 10 * time.Second

// ProcessChecker scans the process table for a named executable.
type ProcessChecker struct {
	name    string
	process string
	timeout time.Duration
}

func NewProcess(name, proc string, timeout time.Duration) (*ProcessChecker, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	if proc == "" {
		return nil, ErrMissingProcess
	}

	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}

	return &ProcessChecker{
		name:    name,
		process: proc,
		timeout: timeout,
	}, nil
}

func (c *ProcessChecker) ID() string {
	return c.name
}

func (c *ProcessChecker) Category() Category {
	return CategoryServices
}

func (c *ProcessChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return timeoutOr(ctx, Result{
			Healthy: false,
			Error:   fmt.Sprintf("failed to list processes: %s", err),
		})
	}

	count := 0
	for _, p := range procs {
		// Individual entries can vanish mid-scan; skip unreadable ones.
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if name == c.process {
			count++
		}
	}

	if count == 0 {
		return timeoutOr(ctx, Result{
			Healthy: false,
			Error:   fmt.Sprintf("no process named %q", c.process),
		})
	}

	return timeoutOr(ctx, Result{
		Healthy: true,
		Detail:  map[string]string{"count": strconv.Itoa(count)},
	})
}
