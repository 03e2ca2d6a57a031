package pipeline

import (
	"github.com/gradeworks/grader-worker/internal/fuzzer"
	"github.com/gradeworks/grader-worker/internal/sandbox"
)

// Request is one grading invocation's input, mirroring the JSON shape the
// HTTP layer decodes (defaults are applied there, not here).
type Request struct {
	Code          string
	Language      string
	TestCases     []interface{}
	GasLimit      uint64
	TimeLimit     uint64
	EnableTracing bool
	ChallengeID   string
}

// StageTrace carries one pipeline stage's sandbox trace events.
type StageTrace struct {
	Stage  string               `json:"stage"`
	Events []sandbox.TraceEvent `json:"events"`
}

// ExecutionTrace is the optional structured trace attached to a report when
// tracing is enabled.
type ExecutionTrace struct {
	Stages      []StageTrace `json:"stages"`
	FuzzSummary *FuzzSummary `json:"fuzzSummary,omitempty"`
}

// FuzzSummary is the report-facing projection of a fuzz campaign's result.
type FuzzSummary struct {
	InputsTested  int     `json:"inputsTested"`
	CrashesFound  int     `json:"crashesFound"`
	UniquePaths   int     `json:"uniquePaths"`
	CoverageScore float64 `json:"coverageScore"`
}

func newFuzzSummary(r *fuzzer.Result) *FuzzSummary {
	if r == nil {
		return nil
	}
	return &FuzzSummary{
		InputsTested:  r.InputsTested,
		CrashesFound:  len(r.CrashesFound),
		UniquePaths:   r.UniquePaths,
		CoverageScore: r.CoverageScore,
	}
}

// Report is the grading response returned for one Request.
type Report struct {
	Success        bool            `json:"success"`
	Score          int             `json:"score"`
	PassedTests    int             `json:"passedTests"`
	TotalTests     int             `json:"totalTests"`
	GasUsed        uint64          `json:"gasUsed"`
	TimeUsedMS     int64           `json:"timeUsed"`
	Output         string          `json:"output"`
	Error          string          `json:"error,omitempty"`
	Language       string          `json:"language"`
	ExecutionTrace *ExecutionTrace `json:"executionTrace"`
	FuzzResult     *FuzzSummary    `json:"fuzzResult,omitempty"`
	Stage          string          `json:"stage,omitempty"`
}
