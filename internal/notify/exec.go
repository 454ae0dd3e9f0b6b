package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const execSendTimeout = 30 * time.Second

var ErrMissingCommand = errors.New("missing notification command")

// Exec hands the message to an external command through KANSHI_* environment
// variables, for hooks the built-in transports cannot reach.
type Exec struct {
	command string
	args    []string
}

func NewExec(command string, args ...string) (*Exec, error) {
	if command == "" {
		return nil, ErrMissingCommand
	}
	if _, err := exec.LookPath(command); err != nil {
		return nil, err
	}

	return &Exec{command: command, args: args}, nil
}

func (e *Exec) Name() string {
	return "exec"
}

func (e *Exec) Send(ctx context.Context, m Message) error {
	ctx, cancel := context.WithTimeout(ctx, execSendTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.command, e.args...)
	cmd.Env = append(os.Environ(),
		"KANSHI_ID="+m.ID.String(),
		"KANSHI_KIND="+string(m.Kind),
		"KANSHI_TEXT="+m.Text,
		"KANSHI_CREATED_AT="+m.CreatedAt.Format(time.RFC3339),
	)

	buf := &bytes.Buffer{}
	cmd.Stdout = buf
	cmd.Stderr = buf

	if err := cmd.Run(); err != nil {
		output := strings.TrimSpace(buf.String())
		if output == "" {
			return err
		}
		return fmt.Errorf("%w: %s", err, output)
	}

	return nil
}
