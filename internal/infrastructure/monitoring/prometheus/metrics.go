package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Bucket layouts.
var (
	EvaluationDurationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}
	SitesBuckets              = []float64{0, 10, 50, 100, 250, 500, 1000, 2000, 5000}
)

// EngineMetrics instruments the pipeline evaluator and the optimizer.  It
// satisfies pipeline.Observer and expansion.Recorder.
type EngineMetrics struct {
	EvaluationsTotal   *prometheus.CounterVec
	EvaluationDuration *prometheus.HistogramVec
	IterationsTotal    *prometheus.CounterVec
	IterationSites     *prometheus.HistogramVec
	CurrentSites       *prometheus.GaugeVec
	RunsTotal          *prometheus.CounterVec
	FinalSites         *prometheus.GaugeVec
	RunIterations      *prometheus.GaugeVec
	RunDuration        *prometheus.GaugeVec
	LastRunTimestamp   *prometheus.GaugeVec
}

// NewEngineMetrics registers the engine metrics on c.
func NewEngineMetrics(c *Collector) (*EngineMetrics, error) {
	m := &EngineMetrics{}
	var err error
	reg := func(f func() error) {
		if err == nil {
			err = f()
		}
	}
	reg(func() (e error) {
		m.EvaluationsTotal, e = c.Counter("evaluations_total", "Pipeline evaluations by cache use", "cached")
		return
	})
	reg(func() (e error) {
		m.EvaluationDuration, e = c.Histogram("evaluation_duration_seconds", "Pipeline evaluation duration", EvaluationDurationBuckets, "cached")
		return
	})
	reg(func() (e error) {
		m.IterationsTotal, e = c.Counter("iterations_total", "Optimizer log records by relaxed dimension", "dimension")
		return
	})
	reg(func() (e error) {
		m.IterationSites, e = c.Histogram("iteration_sites", "Sites per optimizer log record", SitesBuckets)
		return
	})
	reg(func() (e error) {
		m.CurrentSites, e = c.Gauge("current_sites", "Sites at the latest optimizer state")
		return
	})
	reg(func() (e error) {
		m.RunsTotal, e = c.Counter("runs_total", "Finished optimizer runs by outcome", "outcome")
		return
	})
	reg(func() (e error) {
		m.FinalSites, e = c.Gauge("final_sites", "Sites at the final state of the last run", "outcome")
		return
	})
	reg(func() (e error) {
		m.RunIterations, e = c.Gauge("run_iterations", "Relaxation steps applied by the last run", "outcome")
		return
	})
	reg(func() (e error) {
		m.RunDuration, e = c.Gauge("run_duration_seconds", "Wall time of the last run", "outcome")
		return
	})
	reg(func() (e error) {
		m.LastRunTimestamp, e = c.Gauge("last_run_timestamp_seconds", "Unix time the last run finished")
		return
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ObserveEvaluation records one Summarize call.
func (m *EngineMetrics) ObserveEvaluation(d time.Duration, cached bool) {
	label := strconv.FormatBool(cached)
	m.EvaluationsTotal.WithLabelValues(label).Inc()
	m.EvaluationDuration.WithLabelValues(label).Observe(d.Seconds())
}

// ObserveIteration records one log record.
func (m *EngineMetrics) ObserveIteration(dimension string, sites int) {
	m.IterationsTotal.WithLabelValues(dimension).Inc()
	m.IterationSites.WithLabelValues().Observe(float64(sites))
	m.CurrentSites.WithLabelValues().Set(float64(sites))
}

// ObserveOutcome records a finished run.
func (m *EngineMetrics) ObserveOutcome(outcome string, sites, iterations int, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.FinalSites.WithLabelValues(outcome).Set(float64(sites))
	m.RunIterations.WithLabelValues(outcome).Set(float64(iterations))
	m.RunDuration.WithLabelValues(outcome).Set(elapsed.Seconds())
	m.LastRunTimestamp.WithLabelValues().SetToCurrentTime()
}
