package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lsoma/internal/application/expansion"
	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/params"
	lsomatest "github.com/turtacn/lsoma/internal/testutil"
)

func TestEngineMetrics_Observe(t *testing.T) {
	m, err := NewEngineMetrics(newTestCollector(t, Config{}))
	require.NoError(t, err)

	m.ObserveEvaluation(20*time.Millisecond, false)
	m.ObserveEvaluation(time.Millisecond, true)
	m.ObserveEvaluation(time.Millisecond, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("false")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("true")))

	m.ObserveIteration(params.Initial, 3)
	m.ObserveIteration("share", 5)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IterationsTotal.WithLabelValues("share")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.CurrentSites))

	m.ObserveOutcome("boundary_exhausted", 5, 1, 3*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("boundary_exhausted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RunDuration.WithLabelValues("boundary_exhausted")))
	assert.Greater(t, testutil.ToFloat64(m.LastRunTimestamp), 0.0)
}

func TestEngineMetrics_RegisterTwice(t *testing.T) {
	c := newTestCollector(t, Config{})
	a, err := NewEngineMetrics(c)
	require.NoError(t, err)
	b, err := NewEngineMetrics(c)
	require.NoError(t, err)
	assert.Same(t, a.RunsTotal, b.RunsTotal)
}

func TestEngineMetrics_InstrumentsRun(t *testing.T) {
	c := newTestCollector(t, Config{})
	m, err := NewEngineMetrics(c)
	require.NoError(t, err)

	eval, err := pipeline.NewEvaluator(lsomatest.TwoClusterTable(t), pipeline.DefaultConfig(), pipeline.WithObserver(m))
	require.NoError(t, err)
	cfg := expansion.DefaultConfig()
	cfg.TargetSites = 6
	cfg.MaxIterations = 2
	opt, err := expansion.NewOptimizer(eval, cfg, expansion.WithRecorder(m))
	require.NoError(t, err)

	res, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IterationsTotal.WithLabelValues(params.Initial)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(string(res.Outcome))))
	assert.Equal(t, float64(res.Final.Summary.Sites), testutil.ToFloat64(m.FinalSites.WithLabelValues(string(res.Outcome))))
	assert.Equal(t, float64(res.Iterations()), testutil.ToFloat64(m.RunIterations.WithLabelValues(string(res.Outcome))))
	assert.Greater(t, testutil.CollectAndCount(m.EvaluationsTotal), 0)
}
