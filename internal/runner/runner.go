package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// Command describes one child process. Stdout and Stderr are streamed as the
// process writes them; nil writers discard the stream.
type Command struct {
	Args           []string
	Env            map[string]string
	Cwd            string
	TimeoutSeconds int
	AllowNonZero   bool
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
}

type ExecResult struct {
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	DurationMs int64
}

type Runner interface {
	Run(ctx context.Context, cmd Command) (ExecResult, error)
}

type GenericRunner struct{}

func NewGenericRunner() *GenericRunner {
	return &GenericRunner{}
}

func (r *GenericRunner) Run(ctx context.Context, cmd Command) (ExecResult, error) {
	if len(cmd.Args) == 0 {
		return ExecResult{}, fmt.Errorf("command args required")
	}

	start := time.Now()
	ctx, cancel := applyTimeout(ctx, cmd.TimeoutSeconds)
	defer cancel()

	execCmd := exec.CommandContext(ctx, cmd.Args[0], cmd.Args[1:]...)
	if cmd.Cwd != "" {
		execCmd.Dir = cmd.Cwd
	}

	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), envSlice(cmd.Env)...)
	}

	execCmd.Stdin = cmd.Stdin
	execCmd.Stdout = orDiscard(cmd.Stdout)
	execCmd.Stderr = orDiscard(cmd.Stderr)

	err := execCmd.Run()
	exitCode := exitCode(err)
	if err != nil && (!cmd.AllowNonZero || !isExitError(err)) {
		return ExecResult{ExitCode: exitCode}, fmt.Errorf("command %s failed: %w", cmd.Args[0], err)
	}

	finished := time.Now()
	return ExecResult{
		ExitCode:   exitCode,
		StartedAt:  start,
		FinishedAt: finished,
		DurationMs: finished.Sub(start).Milliseconds(),
	}, nil
}

func applyTimeout(ctx context.Context, seconds int) (context.Context, context.CancelFunc) {
	if seconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
}

func envSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for key, value := range env {
		out = append(out, fmt.Sprintf("%s=%s", key, value))
	}
	return out
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
