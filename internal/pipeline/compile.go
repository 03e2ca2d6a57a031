package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/gradeworks/grader-worker/internal/languages"
	"github.com/gradeworks/grader-worker/internal/sandbox"
)

// CompileReport is the compile-only response shape: the worker just
// compiles the submission and reports the result, with no fixtures, tests,
// or fuzzing attached.
type CompileReport struct {
	Success   bool   `json:"success"`
	Tool      string `json:"tool"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
	Artifacts string `json:"artifacts,omitempty"`
}

// compileTarget maps a compile-only WORKER_TYPE to the language profile it
// compiles with and the tool name reported back to the caller.
type compileTarget struct {
	language string
	tool     string
}

var compileWorkerTypes = map[string]compileTarget{
	"compiler_foundry": {language: "solidity", tool: "foundry"},
	"compiler_hardhat": {language: "solidity-hardhat", tool: "hardhat"},
	"compiler_cargo":   {language: "rust", tool: "cargo"},
	"compiler_move":    {language: "move", tool: "move-cli"},
}

// IsCompileOnlyWorkerType reports whether workerType selects the
// compile-only handler rather than the full grading pipeline.
func IsCompileOnlyWorkerType(workerType string) bool {
	_, ok := compileWorkerTypes[workerType]
	return ok
}

// CompileOnly runs just the compile step for the language workerType maps
// to. It skips fixture fetching, public/hidden tests, and fuzzing entirely.
func (p *Pipeline) CompileOnly(ctx context.Context, workerType, code string) (*CompileReport, error) {
	target, ok := compileWorkerTypes[workerType]
	if !ok {
		return nil, fmt.Errorf("unsupported compile-only worker type: %s", workerType)
	}

	profile, err := languages.Lookup(target.language)
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	workspace, cleanup, err := p.allocateWorkspace("compile")
	if err != nil {
		return nil, fmt.Errorf("compile workspace setup: %w", err)
	}
	defer cleanup()

	if err := p.prepare(profile, code, workspace); err != nil {
		return nil, fmt.Errorf("compile workspace setup: %w", err)
	}

	if len(profile.CompileCmd) == 0 {
		return &CompileReport{Success: true, Tool: target.tool, Output: "nothing to compile for " + target.language}, nil
	}

	cfg := sandbox.Config{
		TimeLimit:       120 * time.Second,
		MemoryLimit:     1024 * 1024 * 1024,
		CPULimitPercent: 100,
		NetworkDisabled: true,
		MaxFileSize:     500 * 1024 * 1024,
		MaxProcesses:    10,
		DiskQuota:       500 * 1024 * 1024,
	}
	result, execErr := p.Executor.Execute(ctx, profile.CompileCmd[0], profile.CompileCmd[1:], cfg, workspace)
	if execErr != nil {
		return &CompileReport{Success: false, Tool: target.tool, Error: execErr.Error()}, nil
	}

	report := &CompileReport{Success: result.Success, Tool: target.tool, Output: result.Stdout, Error: result.Stderr}
	if result.Success {
		report.Artifacts = "generated"
	}
	return report, nil
}
