// Package metrics exposes run telemetry as Prometheus metrics.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Job outcome label values.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Metrics holds the collectors of one process. Each instance owns a private
// registry, so tests and the MCP server can create as many as they need.
//
// Metrics:
//   - objindex_candidates - candidates seen by the last plan
//   - objindex_planned_jobs - jobs planned by the last plan
//   - objindex_up_to_date - candidates skipped as already indexed
//   - objindex_oversized_skipped_total - objects dropped by the size limit
//   - objindex_jobs_total{outcome} - finished jobs
//   - objindex_job_duration_seconds - per job wall time
//   - objindex_run_duration_seconds - per run wall time
type Metrics struct {
	registry *prometheus.Registry

	Candidates       prometheus.Gauge
	PlannedJobs      prometheus.Gauge
	UpToDate         prometheus.Gauge
	OversizedSkipped prometheus.Counter
	JobsTotal        *prometheus.CounterVec
	JobDuration      prometheus.Histogram
	RunDuration      prometheus.Histogram
}

// New creates and registers the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Candidates: factory.NewGauge(prometheus.GaugeOpts{
			Name: "objindex_candidates",
			Help: "Candidate objects found by the most recent plan",
		}),
		PlannedJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "objindex_planned_jobs",
			Help: "Jobs planned by the most recent plan",
		}),
		UpToDate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "objindex_up_to_date",
			Help: "Candidates whose index archive was already valid",
		}),
		OversizedSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "objindex_oversized_skipped_total",
			Help: "Objects dropped for exceeding the size limit",
		}),
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "objindex_jobs_total",
			Help: "Finished indexing jobs by outcome",
		}, []string{"outcome"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "objindex_job_duration_seconds",
			Help:    "Wall time of one indexing job including retries",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5.5m
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "objindex_run_duration_seconds",
			Help:    "Wall time of a whole run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16), // 1s to ~9h
		}),
	}
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPlan records the totals of a planning pass.
func (m *Metrics) RecordPlan(candidates, planned, upToDate, oversized int) {
	m.Candidates.Set(float64(candidates))
	m.PlannedJobs.Set(float64(planned))
	m.UpToDate.Set(float64(upToDate))
	m.OversizedSkipped.Add(float64(oversized))
}

// RecordJob records one finished job.
func (m *Metrics) RecordJob(failed bool, d time.Duration) {
	outcome := OutcomeCompleted
	if failed {
		outcome = OutcomeFailed
	}
	m.JobsTotal.WithLabelValues(outcome).Inc()
	m.JobDuration.Observe(d.Seconds())
}

// RecordRun records the duration of a run.
func (m *Metrics) RecordRun(d time.Duration) {
	m.RunDuration.Observe(d.Seconds())
}

// WriteTextfile writes all metrics in the text exposition format for the
// node_exporter textfile collector. The write is atomic.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
