package checker

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const defaultCommandTimeout = 5 * time.Second

// ContainerChecker asks the docker CLI about one container's state.
type ContainerChecker struct {
	name      string
	container string
	timeout   time.Duration
}

func NewContainer(name, container string, timeout time.Duration) (*ContainerChecker, error) {
	if name == "" {
		return nil, ErrMissingName
	}
	if container == "" {
		return nil, ErrMissingContainer
	}

	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	return &ContainerChecker{
		name:      name,
		container: container,
		timeout:   timeout,
	}, nil
}

func (c *ContainerChecker) ID() string {
	return c.name
}

func (c *ContainerChecker) Category() Category {
	return CategoryServices
}

func (c *ContainerChecker) Check(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := runCommand(ctx, "docker",
		"inspect", "--format", "{{.State.Status}} {{.RestartCount}}", c.container)
	if err != nil {
		msg := output
		if msg == "" {
			msg = err.Error()
		}
		return timeoutOr(ctx, Result{Healthy: false, Error: msg})
	}

	return timeoutOr(ctx, containerResult(output))
}

// containerResult interprets "docker inspect" output of the form
// "<state> <restart count>", e.g. "running 0" or "exited 3".
func containerResult(output string) Result {
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return Result{Healthy: false, Error: "empty docker inspect output"}
	}

	state := fields[0]
	detail := map[string]string{"state": state}
	if len(fields) > 1 {
		detail["restarts"] = fields[1]
	}

	if state == "running" {
		return Result{Healthy: true, Detail: detail}
	}

	return Result{
		Healthy: false,
		Error:   fmt.Sprintf("container is %s", state),
		Detail:  detail,
	}
}
