package checker

import (
	"context"
	"fmt"
	"time"
)

// ServiceChecker asks systemd about one unit's activation state.
type ServiceChecker struct {
	name    string
	unit    string
	timeout time.Duration
}

func NewService(name, unit string, timeout time.Duration) (*ServiceChecker, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	if unit == "" {
		return nil, ErrMissingUnit
	}

	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	return &ServiceChecker{
		name:    name,
		unit:    unit,
		timeout: timeout,
	}, nil
}

func (c *ServiceChecker) ID() string {
	return c.name
}

func (c *ServiceChecker) Category() Category {
	return CategoryServices
}

func (c *ServiceChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// systemctl exits non-zero for every state except "active", so the
	// output text is the signal, not the error.
	output, err := runCommand(ctx, "systemctl", "is-active", c.unit)
	if output == "" && err != nil {
		return timeoutOr(ctx, Result{Healthy: false, Error: err.Error()})
	}

	return timeoutOr(ctx, serviceResult(output))
}

// serviceResult interprets "systemctl is-active" output such as "active",
// "inactive", "failed", or "activating".
func serviceResult(state string) Result {
	detail := map[string]string{"state": state}

	if state == "active" {
		return Result{Healthy: true, Detail: detail}
	}

	return Result{
		Healthy: false,
		Error:   fmt.Sprintf("unit is %s", state),
		Detail:  detail,
	}
}
