//go:build linux

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/gradeworks/grader-worker/internal/logging"
)

// cgroupPeriodUS is the fixed cgroup v2 cpu.max period (100ms), per design.
const cgroupPeriodUS = 100000

// LinuxExecutor isolates each execution with a cgroup v2 leaf, per-process
// rlimits applied after spawn, an ephemeral tmpfs scratch mount, and
// namespace isolation. It is the primary Executor backend this worker runs
// under in production.
type LinuxExecutor struct {
	cgroupRoot string
	active     int64
}

// NewLinuxExecutor returns an Executor rooted at cgroupRoot (typically
// "/sys/fs/cgroup/grader-worker", a delegated cgroup v2 subtree).
func NewLinuxExecutor(cgroupRoot string) *LinuxExecutor {
	return &LinuxExecutor{cgroupRoot: cgroupRoot}
}

// ActiveCount returns the number of executions currently in flight.
func (e *LinuxExecutor) ActiveCount() int64 {
	return atomic.LoadInt64(&e.active)
}

func (e *LinuxExecutor) Execute(ctx context.Context, command string, args []string, cfg Config, workingDir string) (*Result, error) {
	atomic.AddInt64(&e.active, 1)
	defer atomic.AddInt64(&e.active, -1)

	start := time.Now()
	trace := []TraceEvent{{
		TimestampNS: 0,
		Type:        EventExecutionStart,
		Data:        map[string]interface{}{"command": command},
	}}

	cgroupPath, cgroupFD, err := createCgroup(e.cgroupRoot, cfg)
	if err != nil {
		return nil, newError(KindIsolationSetupFailed, fmt.Errorf("create cgroup: %w", err))
	}
	removeCgroup := func() {
		unix.Close(cgroupFD)
		if rmErr := os.RemoveAll(cgroupPath); rmErr != nil {
			logging.S().Warnw("cgroup cleanup failed", "path", cgroupPath, "error", rmErr)
		}
	}

	scratchDir, err := mountEphemeralVolume(cfg.DiskQuota)
	if err != nil {
		removeCgroup()
		return nil, newError(KindIsolationSetupFailed, fmt.Errorf("mount ephemeral volume: %w", err))
	}
	// The cgroup is deleted before the ephemeral volume is unmounted.
	defer func() {
		removeCgroup()
		if umErr := unmountEphemeralVolume(scratchDir); umErr != nil {
			logging.S().Warnw("ephemeral volume cleanup failed", "path", scratchDir, "error", umErr)
		}
	}()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workingDir
	cmd.Env = append(os.Environ(), "SANDBOX_SCRATCH_DIR="+scratchDir)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = buildSysProcAttr(cfg, cgroupFD)

	if err := cmd.Start(); err != nil {
		return nil, newError(KindSpawnFailed, err)
	}

	if err := applyRlimits(cmd.Process.Pid, cfg); err != nil {
		logging.S().Warnw("prlimit application failed", "pid", cmd.Process.Pid, "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-time.After(cfg.TimeLimit):
		timedOut = true
		killProcessGroup(cmd.Process.Pid)
		waitErr = <-done
	case <-ctx.Done():
		killProcessGroup(cmd.Process.Pid)
		waitErr = <-done
	}

	elapsed := time.Since(start)

	if timedOut {
		trace = append(trace, TraceEvent{
			TimestampNS: elapsed.Nanoseconds(),
			Type:        EventExecutionTimeout,
		})
		return &Result{
			Success:       false,
			Stdout:        stdout.String(),
			Stderr:        stderr.String(),
			ExecutionTime: elapsed,
			TraceEvents:   trace,
		}, newError(KindTimeout, fmt.Errorf("execution exceeded %s", cfg.TimeLimit))
	}

	exitCode, limitExceeded := exitCodeFromState(cmd.ProcessState, waitErr)
	success := waitErr == nil && exitCode == 0

	trace = append(trace, TraceEvent{
		TimestampNS: elapsed.Nanoseconds(),
		Type:        EventExecutionComplete,
		Data:        map[string]interface{}{"exit_code": exitCode},
	})

	result := &Result{
		Success:       success,
		ExitCode:      &exitCode,
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		ExecutionTime: elapsed,
		MemoryUsed:    rusageMaxRSS(cmd.ProcessState),
		TraceEvents:   trace,
	}

	if limitExceeded {
		return result, newError(KindLimitExceeded, fmt.Errorf("process exceeded a configured limit"))
	}
	return result, nil
}

func createCgroup(root string, cfg Config) (path string, fd int, err error) {
	name := "sandbox_" + uuid.NewString()
	path = filepath.Join(root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", -1, err
	}

	quotaUS := int64(cfg.CPULimitPercent) * cgroupPeriodUS / 100
	if quotaUS <= 0 {
		quotaUS = cgroupPeriodUS
	}
	if err := os.WriteFile(filepath.Join(path, "cpu.max"), []byte(fmt.Sprintf("%d %d", quotaUS, cgroupPeriodUS)), 0o644); err != nil {
		os.RemoveAll(path)
		return "", -1, fmt.Errorf("write cpu.max: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, "cpu.weight"), []byte("1024"), 0o644); err != nil {
		os.RemoveAll(path)
		return "", -1, fmt.Errorf("write cpu.weight: %w", err)
	}
	if cfg.MemoryLimit > 0 {
		if err := os.WriteFile(filepath.Join(path, "memory.max"), []byte(fmt.Sprintf("%d", cfg.MemoryLimit)), 0o644); err != nil {
			os.RemoveAll(path)
			return "", -1, fmt.Errorf("write memory.max: %w", err)
		}
	}

	fd, err = unix.Open(path, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		os.RemoveAll(path)
		return "", -1, fmt.Errorf("open cgroup dir: %w", err)
	}
	return path, fd, nil
}

func mountEphemeralVolume(quota int64) (string, error) {
	dir, err := os.MkdirTemp("", "grader-sandbox-vol-*")
	if err != nil {
		return "", err
	}
	size := quota
	if size <= 0 {
		size = 10 * 1024 * 1024
	}
	opts := fmt.Sprintf("size=%d,mode=0700", size)
	if err := unix.Mount("tmpfs", dir, "tmpfs", 0, opts); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("mount tmpfs: %w", err)
	}
	return dir, nil
}

func unmountEphemeralVolume(dir string) error {
	if err := unix.Unmount(dir, unix.MNT_DETACH); err != nil {
		return fmt.Errorf("unmount %s: %w", dir, err)
	}
	return os.RemoveAll(dir)
}

// buildSysProcAttr places the child directly into the cgroup at clone time
// (clone3 CLONE_INTO_CGROUP) so there is no scheduling window before it is
// under the cgroup's limits, and applies namespace isolation.
func buildSysProcAttr(cfg Config, cgroupFD int) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:     true,
		Pdeathsig:   syscall.SIGKILL,
		UseCgroupFD: true,
		CgroupFD:    cgroupFD,
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if cfg.NetworkDisabled {
		cloneFlags |= syscall.CLONE_NEWNET
	}
	if os.Geteuid() != 0 {
		cloneFlags |= syscall.CLONE_NEWUSER
		uid := os.Getuid()
		gid := os.Getgid()
		attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: uid, HostID: uid, Size: 1}}
		attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: gid, HostID: gid, Size: 1}}
	}
	attr.Cloneflags = cloneFlags
	return attr
}

// applyRlimits is called after Start so it constrains only the child's pid,
// never the parent process running the sandbox itself.
func applyRlimits(pid int, cfg Config) error {
	var firstErr error
	set := func(resource int, value uint64) {
		lim := unix.Rlimit{Cur: value, Max: value}
		if err := unix.Prlimit(pid, resource, &lim, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if cfg.TimeLimit > 0 {
		seconds := uint64(math.Ceil(cfg.TimeLimit.Seconds()))
		if seconds == 0 {
			seconds = 1
		}
		set(unix.RLIMIT_CPU, seconds)
	}
	if cfg.MemoryLimit > 0 {
		set(unix.RLIMIT_AS, uint64(cfg.MemoryLimit))
	}
	if cfg.MaxFileSize > 0 {
		set(unix.RLIMIT_FSIZE, uint64(cfg.MaxFileSize))
	}
	if cfg.MaxProcesses > 0 {
		set(unix.RLIMIT_NPROC, uint64(cfg.MaxProcesses))
	}
	return firstErr
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func exitCodeFromState(state *os.ProcessState, waitErr error) (code int, limitExceeded bool) {
	if state == nil {
		return -1, false
	}
	code = state.ExitCode()
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		switch status.Signal() {
		case syscall.SIGXCPU, syscall.SIGXFSZ, syscall.SIGKILL:
			limitExceeded = true
		}
	}
	return code, limitExceeded
}

func rusageMaxRSS(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok {
		return ru.Maxrss * 1024
	}
	return 0
}
