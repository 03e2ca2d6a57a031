// Package fuzzer runs a bounded, seeded fuzzing campaign against a compiled
// submission, using the sandbox executor for each generated input.
package fuzzer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gradeworks/grader-worker/internal/fixtures"
	"github.com/gradeworks/grader-worker/internal/logging"
	"github.com/gradeworks/grader-worker/internal/metrics"
	"github.com/gradeworks/grader-worker/internal/sandbox"
)

// Severity classifies a crash's apparent impact.
type Severity string

const (
	SeverityLow      Severity = "Low"
	SeverityMedium   Severity = "Medium"
	SeverityHigh     Severity = "High"
	SeverityCritical Severity = "Critical"
)

// Crash is one fuzz input that caused a failing or erroring execution.
type Crash struct {
	Input        interface{} `json:"input"`
	ErrorMessage string      `json:"error_message"`
	StackTrace   string      `json:"stack_trace"`
	GasUsed      int64       `json:"gas_used"`
	Severity     Severity    `json:"severity"`
}

// Result summarizes one fuzzing campaign.
type Result struct {
	InputsTested  int           `json:"inputs_tested"`
	CrashesFound  []Crash       `json:"crashes_found"`
	UniquePaths   int           `json:"unique_paths"`
	CoverageScore float64       `json:"coverage_score"`
	ExecutionTime time.Duration `json:"execution_time"`
}

const (
	defaultMaxIterations  = 100
	defaultTimeoutPerTest = 5 * time.Second
	maxInputSize          = 1024

	mutationsPerFixture = 10
	randomInputCount    = 50
)

// sandboxConfig is the fixed, lower resource ceiling applied to every
// per-input execution during a campaign.
func sandboxConfig(timeout time.Duration) sandbox.Config {
	return sandbox.Config{
		TimeLimit:       timeout,
		MemoryLimit:     256 * 1024 * 1024,
		CPULimitPercent: 25,
		NetworkDisabled: true,
		MaxFileSize:     1024 * 1024,
		MaxProcesses:    5,
		DiskQuota:       10 * 1024 * 1024,
	}
}

// Fuzzer drives one seeded campaign. Constructed fresh per invocation so the
// rng sequence is reproducible for a given seed and seed fixture set.
type Fuzzer struct {
	MaxIterations  int
	TimeoutPerTest time.Duration
	seed           int64
}

// New returns a Fuzzer seeded for deterministic input generation.
func New(maxIterations int, timeoutPerTest time.Duration, seed int64) *Fuzzer {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	if timeoutPerTest <= 0 {
		timeoutPerTest = defaultTimeoutPerTest
	}
	return &Fuzzer{MaxIterations: maxIterations, TimeoutPerTest: timeoutPerTest, seed: seed}
}

// GenerateInputs returns the campaign's input sequence: 10 mutated variations
// per seed fixture plus 50 fully random inputs, shuffled and truncated to
// MaxIterations. Deterministic for a given seed and seedFixtures.
func (f *Fuzzer) GenerateInputs(seedFixtures []fixtures.Fixture) []interface{} {
	rng := rand.New(rand.NewSource(f.seed))

	var inputs []interface{}
	for _, fx := range seedFixtures {
		for i := 0; i < mutationsPerFixture; i++ {
			inputs = append(inputs, mutate(rng, fx.Input))
		}
	}
	for i := 0; i < randomInputCount; i++ {
		inputs = append(inputs, randomValue(rng, 0))
	}

	rng.Shuffle(len(inputs), func(i, j int) { inputs[i], inputs[j] = inputs[j], inputs[i] })

	if len(inputs) > f.MaxIterations {
		inputs = inputs[:f.MaxIterations]
	}
	return inputs
}

// RunCampaign executes a fuzzing campaign over seedFixtures. compileCmd is
// accepted for contract parity with the orchestrator's other stages but is
// never invoked here: fuzzing always runs against the artifact the pipeline
// already compiled.
func (f *Fuzzer) RunCampaign(ctx context.Context, exec sandbox.Executor, seedFixtures []fixtures.Fixture, workspace string, compileCmd, runCmd []string) (*Result, error) {
	start := time.Now()
	inputs := f.GenerateInputs(seedFixtures)

	result := &Result{InputsTested: len(inputs)}
	seenPaths := map[string]struct{}{}
	coverage := map[string]struct{}{}
	language := "unknown"

	for _, input := range inputs {
		metrics.Get().FuzzIterationsTotal.WithLabelValues(language).Inc()

		inputPath, err := writeInputFile(workspace, input)
		if err != nil {
			logging.S().Warnw("fuzz input write failed, skipping iteration", "error", err)
			continue
		}

		args := append(append([]string{}, runCmd[1:]...), inputPath)
		execResult, execErr := exec.Execute(ctx, runCmd[0], args, sandboxConfig(f.TimeoutPerTest), workspace)
		os.Remove(inputPath)

		if execErr != nil {
			crash := Crash{
				Input:        input,
				ErrorMessage: execErr.Error(),
				StackTrace:   "Execution failed in sandbox",
				GasUsed:      0,
				Severity:     SeverityMedium,
			}
			result.CrashesFound = append(result.CrashesFound, crash)
			metrics.Get().FuzzCrashesTotal.WithLabelValues(string(crash.Severity)).Inc()
			continue
		}

		pathHash := computePathHash(execResult)
		seenPaths[pathHash] = struct{}{}
		updateCoverage(coverage, execResult.Stdout+execResult.Stderr)

		if isCrash(execResult) {
			crash := analyzeCrash(input, execResult)
			result.CrashesFound = append(result.CrashesFound, crash)
			metrics.Get().FuzzCrashesTotal.WithLabelValues(string(crash.Severity)).Inc()
		}
	}

	result.UniquePaths = len(seenPaths)
	result.CoverageScore = coverageScore(coverage)
	result.ExecutionTime = time.Since(start)
	return result, nil
}

func writeInputFile(workspace string, input interface{}) (string, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal fuzz input: %w", err)
	}
	path := filepath.Join(workspace, fmt.Sprintf("fuzz_input_%s.json", uuid.NewString()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write fuzz input: %w", err)
	}
	return path, nil
}

// computePathHash hashes stdout || stderr || exit_code (little-endian) to
// count distinct execution behaviors across a campaign.
func computePathHash(r *sandbox.Result) string {
	h := sha256.New()
	h.Write([]byte(r.Stdout))
	h.Write([]byte(r.Stderr))
	var code int32
	if r.ExitCode != nil {
		code = int32(*r.ExitCode)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(code))
	h.Write(buf[:])
	return fmt.Sprintf("%x", h.Sum(nil))
}

func updateCoverage(set map[string]struct{}, combinedOutput string) {
	for _, line := range strings.Split(combinedOutput, "\n") {
		if strings.Contains(line, "branch") || strings.Contains(line, "line") || strings.Contains(line, "function") {
			set[line] = struct{}{}
		}
	}
}

func coverageScore(set map[string]struct{}) float64 {
	score := float64(len(set)) / 1000.0
	if score > 1.0 {
		return 1.0
	}
	return score
}

func isCrash(r *sandbox.Result) bool {
	if r.Success {
		return false
	}
	return r.ExitCode == nil || *r.ExitCode != 0
}

func analyzeCrash(input interface{}, r *sandbox.Result) Crash {
	text := r.Stdout + r.Stderr
	lower := strings.ToLower(text)

	var severity Severity
	switch {
	case strings.Contains(lower, "panic") || strings.Contains(lower, "segmentation fault"):
		severity = SeverityCritical
	case strings.Contains(lower, "overflow") || strings.Contains(lower, "null pointer"):
		severity = SeverityHigh
	case strings.Contains(lower, "assertion failed"):
		severity = SeverityMedium
	default:
		severity = SeverityLow
	}

	return Crash{
		Input:        input,
		ErrorMessage: firstNonEmptyLine(r.Stderr, r.Stdout),
		StackTrace:   extractStackTrace(r.Stderr),
		GasUsed:      r.GasUsed,
		Severity:     severity,
	}
}

func firstNonEmptyLine(candidates ...string) string {
	for _, c := range candidates {
		for _, line := range strings.Split(c, "\n") {
			if strings.TrimSpace(line) != "" {
				return line
			}
		}
	}
	return ""
}

// extractStackTrace scans stderr from the first line matching a stack-trace
// marker and returns up to 20 subsequent lines.
func extractStackTrace(stderr string) string {
	lines := strings.Split(stderr, "\n")
	for i, line := range lines {
		if strings.Contains(line, "stack backtrace") || strings.Contains(line, "Stack trace") {
			end := i + 21
			if end > len(lines) {
				end = len(lines)
			}
			return strings.Join(lines[i:end], "\n")
		}
	}
	return "No stack trace available"
}
