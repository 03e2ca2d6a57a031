// Package metrics provides Prometheus metrics for the grading worker.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors for the grading worker.
type Metrics struct {
	SandboxExecutionsTotal   *prometheus.CounterVec
	SandboxExecutionDuration *prometheus.HistogramVec
	SandboxExecutionsActive  prometheus.Gauge

	PipelineStageDuration *prometheus.HistogramVec
	PipelineGradesTotal   *prometheus.CounterVec

	FuzzCrashesTotal      *prometheus.CounterVec
	FuzzIterationsTotal   *prometheus.CounterVec

	PlagiarismChecksTotal *prometheus.CounterVec

	FixtureCacheHitsTotal   prometheus.Counter
	FixtureCacheMissesTotal prometheus.Counter
	FixtureFetchErrors      *prometheus.CounterVec
}

// Get returns the singleton Metrics instance.
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

func newMetrics() *Metrics {
	m := &Metrics{}

	m.SandboxExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grader_sandbox_executions_total",
		Help: "Total sandbox executions by outcome (success, timeout, killed, error).",
	}, []string{"outcome"})

	m.SandboxExecutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grader_sandbox_execution_duration_seconds",
		Help:    "Wall-clock duration of sandboxed executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	m.SandboxExecutionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grader_sandbox_executions_active",
		Help: "Sandbox executions currently in flight.",
	})

	m.PipelineStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grader_pipeline_stage_duration_seconds",
		Help:    "Duration of each grading pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	m.PipelineGradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grader_pipeline_grades_total",
		Help: "Total grading pipeline runs by outcome (passed, failed, compile_error).",
	}, []string{"outcome"})

	m.FuzzCrashesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grader_fuzz_crashes_total",
		Help: "Total fuzz crashes found by severity.",
	}, []string{"severity"})

	m.FuzzIterationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grader_fuzz_iterations_total",
		Help: "Total fuzz campaign iterations run.",
	}, []string{"language"})

	m.PlagiarismChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grader_plagiarism_checks_total",
		Help: "Total plagiarism checks by risk level.",
	}, []string{"risk_level"})

	m.FixtureCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grader_fixture_cache_hits_total",
		Help: "Fixture requests served from the on-disk cache.",
	})

	m.FixtureCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grader_fixture_cache_misses_total",
		Help: "Fixture requests that required an upstream fetch.",
	})

	m.FixtureFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grader_fixture_fetch_errors_total",
		Help: "Fixture fetch failures by kind (status, transport).",
	}, []string{"kind"})

	return m
}
