package sandbox_test

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gradeworks/grader-worker/internal/sandbox"
)

func skipIfNotLinuxRoot(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("cgroup/namespace isolation only exercised on linux")
	}
	if _, err := os.Stat("/sys/fs/cgroup/cgroup.controllers"); err != nil {
		t.Skip("cgroup v2 not available in this environment")
	}
}

func newTestExecutor(t *testing.T) sandbox.Executor {
	t.Helper()
	root := t.TempDir()
	return sandbox.NewLinuxExecutor(root)
}

// S1: echo under default config succeeds with exit code 0.
func TestExecute_EchoSucceeds(t *testing.T) {
	skipIfNotLinuxRoot(t)
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not on PATH")
	}

	executor := newTestExecutor(t)
	cfg := sandbox.DefaultConfig()
	result, err := executor.Execute(context.Background(), "echo", []string{"Hello, World!"}, cfg, t.TempDir())
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.ExitCode)
	assert.Equal(t, 0, *result.ExitCode)
	assert.Equal(t, "Hello, World!", strings.TrimSpace(result.Stdout))
}

// S2: sleep under a short time limit times out, and the trace records it.
func TestExecute_TimesOut(t *testing.T) {
	skipIfNotLinuxRoot(t)
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not on PATH")
	}

	executor := newTestExecutor(t)
	cfg := sandbox.DefaultConfig()
	cfg.TimeLimit = 100 * time.Millisecond

	result, err := executor.Execute(context.Background(), "sleep", []string{"2"}, cfg, t.TempDir())
	require.Error(t, err)
	assert.True(t, sandbox.IsTimeout(err))
	require.NotNil(t, result)

	var sawTimeout bool
	for _, ev := range result.TraceEvents {
		if ev.Type == sandbox.EventExecutionTimeout {
			sawTimeout = true
		}
	}
	assert.True(t, sawTimeout, "expected an execution_timeout trace event")
}

// Invariant 1: execute returns within time_limit plus a small epsilon.
func TestExecute_RespectsTimeLimitBound(t *testing.T) {
	skipIfNotLinuxRoot(t)
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not on PATH")
	}

	executor := newTestExecutor(t)
	cfg := sandbox.DefaultConfig()
	cfg.TimeLimit = 200 * time.Millisecond

	start := time.Now()
	_, _ = executor.Execute(context.Background(), "sleep", []string{"5"}, cfg, t.TempDir())
	elapsed := time.Since(start)
	assert.Less(t, elapsed, 2*time.Second, "sandbox should kill the child well before its own sleep duration elapses")
}

func TestDefaultConfig_WithinBounds(t *testing.T) {
	cfg := sandbox.DefaultConfig()
	assert.Greater(t, cfg.TimeLimit, time.Duration(0))
	assert.Greater(t, cfg.MemoryLimit, int64(0))
	assert.LessOrEqual(t, cfg.CPULimitPercent, 100)
	assert.Greater(t, cfg.CPULimitPercent, 0)
}
