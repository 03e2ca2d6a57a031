//go:build !linux

package sandbox

import (
	"bytes"
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/gradeworks/grader-worker/internal/logging"
)

// PortableExecutor runs commands with timeout enforcement and best-effort
// rlimits, without cgroups, mount namespaces, or network isolation. It lets
// this package build and test on non-Linux development machines; the worker
// is expected to run under LinuxExecutor in production.
type PortableExecutor struct{}

// NewLinuxExecutor is provided under this name too so callers can construct
// the platform default without a build-tag switch of their own.
func NewLinuxExecutor(_ string) *PortableExecutor {
	return &PortableExecutor{}
}

func (e *PortableExecutor) Execute(ctx context.Context, command string, args []string, cfg Config, workingDir string) (*Result, error) {
	start := time.Now()
	trace := []TraceEvent{{Type: EventExecutionStart, Data: map[string]interface{}{"command": command}}}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workingDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, newError(KindSpawnFailed, err)
	}
	if err := applyBestEffortRlimits(cfg); err != nil {
		logging.S().Warnw("rlimit application failed", "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-time.After(cfg.TimeLimit):
		timedOut = true
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		waitErr = <-done
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		waitErr = <-done
	}

	elapsed := time.Since(start)
	if timedOut {
		trace = append(trace, TraceEvent{TimestampNS: elapsed.Nanoseconds(), Type: EventExecutionTimeout})
		return &Result{Stdout: stdout.String(), Stderr: stderr.String(), ExecutionTime: elapsed, TraceEvents: trace}, newError(KindTimeout, nil)
	}

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	success := waitErr == nil && exitCode == 0
	trace = append(trace, TraceEvent{TimestampNS: elapsed.Nanoseconds(), Type: EventExecutionComplete, Data: map[string]interface{}{"exit_code": exitCode}})

	return &Result{
		Success:       success,
		ExitCode:      &exitCode,
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExecutionTime: elapsed,
		TraceEvents:   trace,
	}, nil
}

func applyBestEffortRlimits(cfg Config) error {
	if cfg.MemoryLimit <= 0 {
		return nil
	}
	lim := syscall.Rlimit{Cur: uint64(cfg.MemoryLimit), Max: uint64(cfg.MemoryLimit)}
	return syscall.Setrlimit(syscall.RLIMIT_AS, &lim)
}
