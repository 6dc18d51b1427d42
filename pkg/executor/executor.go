package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner is the command-execution seam. Everything that shells out
// (systemctl, apt-get, rsync, docker, git) depends on this interface so
// tests can substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (*Result, error)
	RunQuiet(ctx context.Context, name string, args ...string) (*Result, error)
}

type Executor struct {
	workDir string
	timeout time.Duration
	logger  *slog.Logger
}

func New(workDir string, timeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		workDir: workDir,
		timeout: timeout,
		logger:  logger,
	}
}

func (e *Executor) Run(ctx context.Context, name string, args ...string) (*Result, error) {
	return e.run(ctx, true, name, args...)
}

// RunQuiet suppresses error logging; callers use it for probe commands
// where a non-zero exit is an expected answer, not a failure.
func (e *Executor) RunQuiet(ctx context.Context, name string, args ...string) (*Result, error) {
	return e.run(ctx, false, name, args...)
}

func (e *Executor) run(ctx context.Context, logErrors bool, name string, args ...string) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("Executing command",
		"command", name,
		"args", args,
		"workDir", e.workDir,
	)

	err := cmd.Run()

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() == context.DeadlineExceeded {
		return result, fmt.Errorf("command timed out after %v", e.timeout)
	}

	if err != nil {
		if logErrors {
			e.logger.Error("Command failed",
				"command", name,
				"args", args,
				"exitCode", result.ExitCode,
				"stderr", result.Stderr,
				"duration", result.Duration,
			)
		}
		return result, fmt.Errorf("command failed with exit code %d: %s", result.ExitCode, result.Stderr)
	}

	e.logger.Debug("Command completed",
		"command", name,
		"exitCode", result.ExitCode,
		"duration", result.Duration,
	)

	return result, nil
}

func (e *Executor) SetWorkDir(workDir string) {
	e.workDir = workDir
}

func (e *Executor) SetTimeout(timeout time.Duration) {
	e.timeout = timeout
}
