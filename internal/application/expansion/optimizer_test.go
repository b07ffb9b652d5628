package expansion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/testutil"
	"github.com/turtacn/lsoma/pkg/errors"
)

func newPipeline(t *testing.T) *pipeline.Evaluator {
	t.Helper()
	e, err := pipeline.NewEvaluator(testutil.TwoClusterTable(t), pipeline.DefaultConfig())
	require.NoError(t, err)
	return e
}

func runConfig(target int) Config {
	cfg := DefaultConfig()
	cfg.TargetSites = target
	return cfg
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishIteration(ctx context.Context, runID string, rec Record) error {
	return m.Called(ctx, runID, rec).Error(0)
}

func (m *mockPublisher) PublishOutcome(ctx context.Context, runID string, res *Result) error {
	return m.Called(ctx, runID, res).Error(0)
}

type fakeRecorder struct {
	mu         sync.Mutex
	iterations []string
	outcome    string
}

func (r *fakeRecorder) ObserveIteration(dimension string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.iterations = append(r.iterations, dimension)
}

func (r *fakeRecorder) ObserveOutcome(outcome string, _, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = outcome
}

func assertLogConsistent(t *testing.T, eval *pipeline.Evaluator, res *Result) {
	t.Helper()
	require.NotEmpty(t, res.Log)
	first := res.Log[0]
	assert.Equal(t, 0, first.Iteration)
	assert.Equal(t, params.Initial, first.Changed)
	assert.Equal(t, "P85_S3.0%_R0.40_C85", first.Params)
	for i, rec := range res.Log {
		assert.Equal(t, i, rec.Iteration)
		assert.Equal(t, rec.State.String(), rec.Params)
	}

	last := res.Log[len(res.Log)-1]
	again, err := eval.Evaluate(context.Background(), last.State)
	require.NoError(t, err)
	assert.Equal(t, again.Summary.Sites, last.Sites)
	assert.Equal(t, again.Summary.Sites, res.Final.Summary.Sites)
	assert.Equal(t, last.State, res.Final.State)
}

func TestOptimizer_TargetReached(t *testing.T) {
	eval := newPipeline(t)
	cfg := runConfig(5)
	opt, err := NewOptimizer(eval, cfg, WithRunID("run-1"))
	require.NoError(t, err)

	res, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, TargetReached, res.Outcome)
	assert.False(t, res.Outcome.BestEffort())
	assert.Equal(t, "run-1", res.RunID)
	assert.GreaterOrEqual(t, res.Final.Summary.Sites, 5)
	assert.Equal(t, 0, res.Deficit())
	assert.LessOrEqual(t, len(res.Log), cfg.Limits.TotalSteps(cfg.Prime)+1)
	assertLogConsistent(t, eval, res)

	// Only the step that reached the target may meet it.
	for _, rec := range res.Log[:len(res.Log)-1] {
		assert.Less(t, rec.Sites, 5)
	}
}

func TestOptimizer_BoundaryExhausted(t *testing.T) {
	eval := newPipeline(t)
	cfg := runConfig(6)
	opt, err := NewOptimizer(eval, cfg)
	require.NoError(t, err)

	res, err := opt.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, BoundaryExhausted, res.Outcome)
	assert.True(t, res.Outcome.BestEffort())
	// Every step relaxes one dimension, so exhausting all of them takes
	// exactly the total step count.
	assert.Len(t, res.Log, cfg.Limits.TotalSteps(cfg.Prime)+1)
	assert.Empty(t, cfg.Limits.Headroom(res.Final.State))
	assert.Equal(t, 5, res.Final.Summary.Sites)
	assert.Equal(t, 1, res.Deficit())
	assert.NotEmpty(t, opt.RunID())
	assertLogConsistent(t, eval, res)
}

func TestOptimizer_IterationCeiling(t *testing.T) {
	eval := newPipeline(t)
	cfg := runConfig(6)
	cfg.MaxIterations = 3
	opt, err := NewOptimizer(eval, cfg)
	require.NoError(t, err)

	res, err := opt.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, IterationCeiling, res.Outcome)
	assert.Len(t, res.Log, 4)
	assert.Equal(t, 3, res.Iterations())
	assertLogConsistent(t, eval, res)
}

func TestOptimizer_FallsBackToLowestTier(t *testing.T) {
	eval := newPipeline(t)
	cfg := runConfig(6)
	cfg.MaxIterations = 1
	opt, err := NewOptimizer(eval, cfg)
	require.NoError(t, err)

	res, err := opt.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Log, 2)
	// No single step from prime adds a site.
	assert.Equal(t, res.Log[0].Sites, res.Log[1].Sites)
	assert.Equal(t, params.Percentile.String(), res.Log[1].Changed)
	assert.Equal(t, 84.0, res.Log[1].State.Percentile)
}

func TestOptimizer_PrimeAlreadyMeetsTarget(t *testing.T) {
	eval := newPipeline(t)
	opt, err := NewOptimizer(eval, runConfig(1))
	require.NoError(t, err)

	res, err := opt.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TargetReached, res.Outcome)
	assert.Len(t, res.Log, 1)
	assert.Equal(t, res.Prime.Summary, res.Final.Summary)
}

func TestOptimizer_PublishesAndRecords(t *testing.T) {
	eval := newPipeline(t)
	pub := &mockPublisher{}
	pub.On("PublishIteration", mock.Anything, "run-2", mock.AnythingOfType("expansion.Record")).Return(nil)
	pub.On("PublishOutcome", mock.Anything, "run-2", mock.AnythingOfType("*expansion.Result")).
		Return(errors.New(errors.ErrCodeExternalService, "broker down"))
	rec := &fakeRecorder{}
	log := testutil.NewMockLogger()

	cfg := runConfig(6)
	cfg.MaxIterations = 2
	opt, err := NewOptimizer(eval, cfg, WithRunID("run-2"), WithPublisher(pub), WithRecorder(rec), WithLogger(log))
	require.NoError(t, err)

	res, err := opt.Run(context.Background())
	require.NoError(t, err)

	pub.AssertNumberOfCalls(t, "PublishIteration", 3)
	pub.AssertNumberOfCalls(t, "PublishOutcome", 1)
	assert.Equal(t, []string{params.Initial, "percentile", "percentile"}, rec.iterations)
	assert.Equal(t, string(IterationCeiling), rec.outcome)
	assert.True(t, log.HasMessage("warn", "publishing outcome failed"))
	assert.True(t, log.HasMessage("warn", "expansion stopped short of target"))
	v, ok := log.Field("warn", "expansion stopped short of target", "run_id")
	assert.True(t, ok)
	assert.Equal(t, "run-2", v)
	assert.Equal(t, IterationCeiling, res.Outcome)
}

func TestOptimizer_CanceledBetweenIterations(t *testing.T) {
	eval := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub := &mockPublisher{}
	pub.On("PublishIteration", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).Return(nil)

	opt, err := NewOptimizer(eval, runConfig(6), WithPublisher(pub))
	require.NoError(t, err)

	_, err = opt.Run(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCanceled))
	pub.AssertNumberOfCalls(t, "PublishIteration", 1)
}

func TestOptimizer_PrimeEvaluationFails(t *testing.T) {
	eval := newPipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opt, err := NewOptimizer(eval, runConfig(5))
	require.NoError(t, err)
	_, err = opt.Run(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEvaluationFailed))
}

func TestNewOptimizer_Validation(t *testing.T) {
	eval := newPipeline(t)

	_, err := NewOptimizer(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.TargetSites = 0
	_, err = NewOptimizer(eval, cfg)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfigInvalid))

	cfg = DefaultConfig()
	cfg.Workers = 0
	_, err = NewOptimizer(eval, cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Limits.Share.Boundary = 0.01
	_, err = NewOptimizer(eval, cfg)
	assert.True(t, errors.IsCode(err, errors.ErrCodeOptimizerLimits))
}

func TestChoose(t *testing.T) {
	mk := func(gains ...float64) []candidate {
		out := make([]candidate, len(gains))
		for i, g := range gains {
			out[i] = candidate{dim: params.Dimensions()[i], gain: g}
		}
		return out
	}
	tests := []struct {
		name  string
		gains []float64
		want  params.Dimension
	}{
		{"highest gain wins", []float64{0, 0.5, 1.0 / 3}, params.Share},
		{"ties break to lowest tier", []float64{0.5, 0.5, 0.5}, params.Percentile},
		{"no positive gain falls back", []float64{0, 0, 0, 0}, params.Percentile},
		{"negative gains fall back", []float64{-1, -0.5}, params.Percentile},
		{"single candidate", []float64{2}, params.Percentile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, choose(mk(tt.gains...)).dim)
		})
	}
}

func TestCompare(t *testing.T) {
	eval := newPipeline(t)
	opt, err := NewOptimizer(eval, runConfig(5))
	require.NoError(t, err)
	res, err := opt.Run(context.Background())
	require.NoError(t, err)

	metrics := Compare(res)
	require.Len(t, metrics, 6)
	byName := map[string]Metric{}
	for _, m := range metrics {
		byName[m.Name] = m
	}
	sites := byName[MetricSites]
	assert.Equal(t, float64(res.Prime.Summary.Sites), sites.Prime)
	assert.Equal(t, float64(res.Final.Summary.Sites), sites.Expanded)
	assert.Greater(t, sites.Delta(), 0.0)
	assert.InDelta(t, testutil.FixtureIncome, byName[MetricMeanIncome].Expanded, 1e-9)
	assert.InDelta(t, res.Final.Summary.MeanBedsPerViable(), byName[MetricMeanBeds].Expanded, 1e-9)
}
