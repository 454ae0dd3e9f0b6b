package checker

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

var (
	ErrMissingName      = errors.New("missing target name")
	ErrMissingURL       = errors.New("missing URL")
	ErrMissingHost      = errors.New("missing host")
	ErrMissingUnit      = errors.New("missing unit name")
	ErrMissingContainer = errors.New("missing container name")
	ErrMissingProcess   = errors.New("missing process name")
	ErrUnknownResource  = errors.New("unknown resource kind")
)

// Category groups targets that are checked on the same timer.
type Category int8

const (
	CategoryServices Category = iota
	CategoryHTTP
	CategoryResources
	CategoryTLS
)

func (c Category) String() string {
	switch c {
	case CategoryServices:
		return "services"
	case CategoryHTTP:
		return "http"
	case CategoryResources:
		return "resources"
	case CategoryTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// Result is the outcome of one check.
// A down target is Healthy=false with Error set; Error never means "the
// checker itself broke" (that is a panic, handled by the caller).
type Result struct {
	Healthy      bool
	Error        string
	ResponseTime time.Duration
	Detail       map[string]string
}

// Checker probes one target. Implementations enforce their own timeout
// inside Check so a stalled target cannot stall a whole cycle.
type Checker interface {
	// ID is the stable identifier the state engine tracks this target by.
	ID() string

	Category() Category

	Check(ctx context.Context) Result
}

// timeoutOr rewrites the error of a result when the context expired, so a
// timeout reads as a timeout instead of whatever the probe saw mid-cancel.
func timeoutOr(ctx context.Context, r Result) Result {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		r.Healthy = false
		r.Error = "check timed out"
	case context.Canceled:
		r.Healthy = false
		r.Error = "check canceled"
	}
	return r
}

// runCommand executes a short diagnostic command and returns its combined
// output with surrounding whitespace removed.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	buf := &bytes.Buffer{}
	cmd.Stdout = buf
	cmd.Stderr = buf

	err := cmd.Run()

	return strings.TrimSpace(buf.String()), err
}
