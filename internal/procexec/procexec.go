package procexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"upscaler/internal/services"
)

// waitDelay bounds how long Wait blocks on output pipes after the process
// group was killed.
const waitDelay = 5 * time.Second

// tailLines is how much tool output is kept in error messages.
const tailLines = 12

// Command describes one external invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// RunFunc executes a command and returns its combined output.
type RunFunc func(ctx context.Context, cmd Command) ([]byte, error)

// Error describes a failed external invocation.
type Error struct {
	Command  string
	Output   string
	TimedOut bool
	Timeout  time.Duration
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Command)
	if e.TimedOut {
		fmt.Fprintf(&b, " timed out after %s", e.Timeout)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if tail := Tail(e.Output, tailLines); tail != "" {
		b.WriteString(": ")
		b.WriteString(tail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Marker maps a Run error to the services marker used for classification.
func Marker(err error) error {
	var execErr *Error
	if errors.As(err, &execErr) && execErr.TimedOut {
		return services.ErrTimeout
	}
	return services.ErrExternalTool
}

// Run starts cmd in its own process group and waits for it. When cmd.Timeout
// elapses or ctx is cancelled the whole group receives SIGKILL.
func Run(ctx context.Context, cmd Command) ([]byte, error) {
	if strings.TrimSpace(cmd.Name) == "" {
		return nil, errors.New("procexec: empty command name")
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	var output bytes.Buffer
	c.Stdout = &output
	c.Stderr = &output
	c.WaitDelay = waitDelay
	configureProcessGroup(c)

	err := c.Run()
	if err == nil {
		return output.Bytes(), nil
	}
	execErr := &Error{Command: cmd.Name, Output: output.String(), Err: err, Timeout: cmd.Timeout}
	if cmd.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		execErr.TimedOut = true
	} else if ctxErr := ctx.Err(); ctxErr != nil {
		execErr.Err = fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return output.Bytes(), execErr
}

// Tail returns the last n non-empty lines of output joined by " | ".
func Tail(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			kept = append(kept, line)
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, " | ")
}
