// Package pipeline orchestrates the end-to-end grading of one submission:
// workspace setup, compile, public/hidden tests, fuzzing, and score
// aggregation.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gradeworks/grader-worker/internal/fixtures"
	"github.com/gradeworks/grader-worker/internal/fuzzer"
	"github.com/gradeworks/grader-worker/internal/languages"
	"github.com/gradeworks/grader-worker/internal/logging"
	"github.com/gradeworks/grader-worker/internal/metrics"
	"github.com/gradeworks/grader-worker/internal/sandbox"
)

const (
	crashPenalty        = 5
	successThreshold    = 70
	simulatedCompileGas = 300
	simulatedTestGas    = 100
)

// Pipeline wires the sandbox executor, fixture store, and fuzzer together
// into one grading entry point. It does not run plagiarism screening.
type Pipeline struct {
	Executor      sandbox.Executor
	Fixtures      *fixtures.Store
	WorkspaceRoot string
}

// New builds a Pipeline.
func New(executor sandbox.Executor, store *fixtures.Store, workspaceRoot string) *Pipeline {
	return &Pipeline{Executor: executor, Fixtures: store, WorkspaceRoot: workspaceRoot}
}

// Grade runs the full pipeline for one request.
func (p *Pipeline) Grade(ctx context.Context, req Request) (*Report, error) {
	profile, err := languages.Lookup(req.Language)
	if err != nil {
		return nil, fmt.Errorf("workspace setup: %w", err)
	}

	workspace, cleanup, err := p.allocateWorkspace(req.ChallengeID)
	if err != nil {
		return nil, fmt.Errorf("workspace setup: %w", err)
	}
	defer cleanup()

	var stages []StageTrace
	var totalTimeUsed time.Duration
	var gasUsed uint64

	recordStage := func(name string, res *sandbox.Result) {
		if res == nil {
			return
		}
		stages = append(stages, StageTrace{Stage: name, Events: res.TraceEvents})
		totalTimeUsed += res.ExecutionTime
	}

	if err := p.prepare(profile, req.Code, workspace); err != nil {
		return nil, fmt.Errorf("workspace setup: %w", err)
	}

	timeLimit := time.Duration(req.TimeLimit) * time.Second

	// Compile stage: short-circuit on failure, in-band (not an error).
	if len(profile.CompileCmd) > 0 {
		compileCfg := sandbox.Config{
			TimeLimit:       60 * time.Second,
			MemoryLimit:     1024 * 1024 * 1024,
			CPULimitPercent: 100,
			NetworkDisabled: true,
			MaxFileSize:     500 * 1024 * 1024,
			MaxProcesses:    10,
			DiskQuota:       500 * 1024 * 1024,
		}
		stageTimer := time.Now()
		result, execErr := p.Executor.Execute(ctx, profile.CompileCmd[0], profile.CompileCmd[1:], compileCfg, workspace)
		metrics.Get().PipelineStageDuration.WithLabelValues("compile").Observe(time.Since(stageTimer).Seconds())
		recordStage("compile", result)
		if execErr != nil || result == nil || !result.Success {
			output := ""
			if result != nil {
				output = result.Stderr
			}
			gasUsed += simulatedCompileGas
			return p.finish(req, 0, 0, 0, gasUsed, totalTimeUsed, output, "compilation", stages, nil), nil
		}
		gasUsed += simulatedCompileGas
	}

	publicFixtures := p.Fixtures.FetchPublic(req.ChallengeID)
	hiddenFixtures := p.Fixtures.FetchHidden(req.ChallengeID)

	publicTimer := time.Now()
	publicPassed, publicTotal, err := p.runTestStage(ctx, profile, publicFixtures, workspace, timeLimit, "public_tests", &stages, &totalTimeUsed)
	metrics.Get().PipelineStageDuration.WithLabelValues("public_tests").Observe(time.Since(publicTimer).Seconds())
	if err != nil {
		return nil, fmt.Errorf("public tests: %w", err)
	}
	gasUsed += uint64(publicTotal) * simulatedTestGas

	hiddenTimer := time.Now()
	hiddenPassed, hiddenTotal, err := p.runTestStage(ctx, profile, hiddenFixtures, workspace, timeLimit, "hidden_tests", &stages, &totalTimeUsed)
	metrics.Get().PipelineStageDuration.WithLabelValues("hidden_tests").Observe(time.Since(hiddenTimer).Seconds())
	if err != nil {
		return nil, fmt.Errorf("hidden tests: %w", err)
	}
	gasUsed += uint64(hiddenTotal) * simulatedTestGas

	passed := publicPassed + hiddenPassed
	total := publicTotal + hiddenTotal

	fuzzResult, err := p.runFuzzStage(ctx, profile, publicFixtures, workspace, req)
	if err != nil {
		logging.S().Warnw("fuzz campaign failed, continuing without it", "error", err)
	}
	for _, crash := range fuzzCrashesOf(fuzzResult) {
		gasUsed += uint64(crash.GasUsed)
	}

	baseScore := 0
	if total > 0 {
		baseScore = passed * 100 / total
	}
	crashCount := len(fuzzCrashesOf(fuzzResult))
	finalScore := baseScore - crashPenalty*crashCount
	if finalScore < 0 {
		finalScore = 0
	}

	return p.finish(req, finalScore, passed, total, gasUsed, totalTimeUsed, "", "", stages, fuzzResult), nil
}

func fuzzCrashesOf(r *fuzzer.Result) []fuzzer.Crash {
	if r == nil {
		return nil
	}
	return r.CrashesFound
}

func (p *Pipeline) finish(req Request, score, passed, total int, gasUsed uint64, timeUsed time.Duration, output, stage string, stages []StageTrace, fuzzResult *fuzzer.Result) *Report {
	success := score >= successThreshold
	outcome := "failed"
	if stage == "compilation" {
		outcome = "compile_error"
	} else if success {
		outcome = "passed"
	}
	metrics.Get().PipelineGradesTotal.WithLabelValues(outcome).Inc()

	var trace *ExecutionTrace
	if req.EnableTracing {
		trace = &ExecutionTrace{Stages: stages, FuzzSummary: newFuzzSummary(fuzzResult)}
	}

	return &Report{
		Success:        success,
		Score:          score,
		PassedTests:    passed,
		TotalTests:     total,
		GasUsed:        gasUsed,
		TimeUsedMS:     timeUsed.Milliseconds(),
		Output:         output,
		Language:       req.Language,
		ExecutionTrace: trace,
		FuzzResult:     newFuzzSummary(fuzzResult),
		Stage:          stage,
	}
}

// allocateWorkspace honors the absolute-path special case for local/test
// challenges: when ChallengeID is itself an absolute path, that directory is
// used directly and is never removed by this pipeline.
func (p *Pipeline) allocateWorkspace(challengeID string) (dir string, cleanup func(), err error) {
	if filepath.IsAbs(challengeID) {
		if err := os.MkdirAll(challengeID, 0o755); err != nil {
			return "", nil, err
		}
		return challengeID, func() {}, nil
	}

	dir, err = os.MkdirTemp(p.WorkspaceRoot, "grade-"+uuid.NewString()+"-")
	if err != nil {
		return "", nil, err
	}
	return dir, func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logging.S().Warnw("workspace cleanup failed", "dir", dir, "error", rmErr)
		}
	}, nil
}

func (p *Pipeline) prepare(profile languages.Profile, code, workspace string) error {
	target := filepath.Join(workspace, profile.SourceFileName)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create source directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(code), 0o644); err != nil {
		return fmt.Errorf("write submission: %w", err)
	}
	for _, sf := range profile.Scaffold {
		path := filepath.Join(workspace, sf.Name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create scaffold directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(sf.Content), 0o644); err != nil {
			return fmt.Errorf("write scaffold file %s: %w", sf.Name, err)
		}
	}
	return nil
}

// runTestStage runs a set of fixtures through the sandbox and returns
// passed/total. For a test-runner-driven language it invokes the test
// command once and treats its success as all-passed.
func (p *Pipeline) runTestStage(ctx context.Context, profile languages.Profile, fxs []fixtures.Fixture, workspace string, timeLimit time.Duration, stageName string, stages *[]StageTrace, totalTimeUsed *time.Duration) (passed, total int, err error) {
	if len(fxs) == 0 {
		return 0, 0, nil
	}

	if profile.TestRunnerDriven {
		cfg := sandbox.Config{
			TimeLimit:       pickTimeout(timeLimit, 0),
			MemoryLimit:     512 * 1024 * 1024,
			CPULimitPercent: 25,
			NetworkDisabled: true,
			MaxFileSize:     50 * 1024 * 1024,
			MaxProcesses:    5,
			DiskQuota:       50 * 1024 * 1024,
		}
		result, execErr := p.Executor.Execute(ctx, profile.TestCmd[0], profile.TestCmd[1:], cfg, workspace)
		if result != nil {
			*stages = append(*stages, StageTrace{Stage: stageName, Events: result.TraceEvents})
			*totalTimeUsed += result.ExecutionTime
		}
		if execErr == nil && result != nil && result.Success {
			return len(fxs), len(fxs), nil
		}
		return 0, len(fxs), nil
	}

	for _, fx := range fxs {
		inputPath, writeErr := writeFixtureInput(workspace, fx)
		if writeErr != nil {
			return passed, total, writeErr
		}
		total++

		cfg := sandbox.Config{
			TimeLimit:       pickTimeout(timeLimit, time.Duration(fx.TimeoutSeconds)*time.Second),
			MemoryLimit:     512 * 1024 * 1024,
			CPULimitPercent: 25,
			NetworkDisabled: true,
			MaxFileSize:     50 * 1024 * 1024,
			MaxProcesses:    5,
			DiskQuota:       50 * 1024 * 1024,
		}
		args := append(append([]string{}, profile.RunCmd[1:]...), inputPath)
		result, execErr := p.Executor.Execute(ctx, profile.RunCmd[0], args, cfg, workspace)
		os.Remove(inputPath)

		if result != nil {
			*stages = append(*stages, StageTrace{Stage: stageName, Events: result.TraceEvents})
			*totalTimeUsed += result.ExecutionTime
		}
		if execErr == nil && result != nil && result.Success && result.ExitCode != nil && *result.ExitCode == 0 {
			passed++
		}
	}
	return passed, total, nil
}

func (p *Pipeline) runFuzzStage(ctx context.Context, profile languages.Profile, publicFixtures []fixtures.Fixture, workspace string, req Request) (*fuzzer.Result, error) {
	if len(profile.RunCmd) == 0 {
		return nil, nil
	}
	f := fuzzer.New(100, 5*time.Second, seedFor(req.ChallengeID, req.Code))
	stageTimer := time.Now()
	defer func() {
		metrics.Get().PipelineStageDuration.WithLabelValues("fuzz").Observe(time.Since(stageTimer).Seconds())
	}()
	return f.RunCampaign(ctx, p.Executor, publicFixtures, workspace, profile.CompileCmd, profile.RunCmd)
}

// seedFor derives an opaque, per-request fuzz seed. Determinism is only
// guaranteed within one process for one (seed, seed fixtures) pair, not
// across hosts or runs, per the fuzzer's documented non-goal.
func seedFor(challengeID, code string) int64 {
	h := fnv.New64a()
	h.Write([]byte(challengeID))
	h.Write([]byte(code))
	return int64(h.Sum64())
}

func pickTimeout(requestLimit, fixtureLimit time.Duration) time.Duration {
	if fixtureLimit <= 0 {
		return requestLimit
	}
	if requestLimit <= 0 {
		return fixtureLimit
	}
	if fixtureLimit < requestLimit {
		return fixtureLimit
	}
	return requestLimit
}

func writeFixtureInput(workspace string, fx fixtures.Fixture) (string, error) {
	data, err := json.Marshal(fx.Input)
	if err != nil {
		return "", fmt.Errorf("marshal fixture input: %w", err)
	}
	path := filepath.Join(workspace, "fixture_"+sanitizeID(fx.ID)+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write fixture input: %w", err)
	}
	return path, nil
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, id)
}
