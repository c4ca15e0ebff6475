package adapter

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"sync"
	"time"
)

// DefaultProcessTimeout bounds a process when the spec does not set one.
const DefaultProcessTimeout = 10 * time.Second

// maxCapturedOutput caps the combined output kept per process.
const maxCapturedOutput = 64 * 1024

// ProcessSpec describes one isolated child process.
type ProcessSpec struct {
	Command string
	Args    []string
	Dir     string
	// Env replaces the parent environment entirely.
	Env     []string
	Timeout time.Duration
}

// ProcessResult is the outcome of a child process. A non-zero exit is not an error.
type ProcessResult struct {
	ExitCode  int
	TimedOut  bool
	Cancelled bool
	Output    string
	Duration  time.Duration
}

// ProcessRunnerAdapter runs commands in their own process group so that a timeout or
// cancellation kills the whole tree the command spawned.
type ProcessRunnerAdapter interface {
	// Run starts the process and blocks until it exits, times out or ctx is cancelled.
	// The error is non-nil only when the process could not be started.
	Run(ctx context.Context, spec ProcessSpec) (ProcessResult, error)
}

// LocalProcessRunnerAdapter provides a concrete implementation using os/exec.
type LocalProcessRunnerAdapter struct{}

// NewLocalProcessRunnerAdapter constructs a LocalProcessRunnerAdapter.
func NewLocalProcessRunnerAdapter() *LocalProcessRunnerAdapter {
	return &LocalProcessRunnerAdapter{}
}

// Run executes spec under a wall-clock timeout.
func (a *LocalProcessRunnerAdapter) Run(ctx context.Context, spec ProcessSpec) (ProcessResult, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 - the command is the configured interpreter
	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	out := &cappedBuffer{limit: maxCapturedOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()

	result := ProcessResult{Duration: time.Since(start), Output: out.String()}

	if cmd.ProcessState == nil {
		// Never started.
		return result, err
	}

	result.ExitCode = cmd.ProcessState.ExitCode()

	switch {
	case ctx.Err() != nil:
		result.Cancelled = true
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
	}

	return result, nil
}

// cappedBuffer keeps the first limit bytes written to it.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}

	return len(p), nil
}

func (c *cappedBuffer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buf.String()
}
