// Package expansion runs the adaptive relaxation loop: starting from the
// prime Parameter State it relaxes, one step at a time, the constraint with
// the best risk-adjusted gain in sites until the target is met or every
// constraint sits on its boundary.
package expansion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/viability"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/pkg/errors"
)

// Default optimizer settings.
const (
	DefaultTargetSites   = 1000
	DefaultMaxIterations = 500
	DefaultWorkers       = 4
)

// Config drives one optimizer run.
type Config struct {
	Prime         params.State  `mapstructure:"prime" json:"prime"`
	Limits        params.Limits `mapstructure:"limits" json:"limits"`
	TargetSites   int           `mapstructure:"target_sites" json:"target_sites"`
	MaxIterations int           `mapstructure:"max_iterations" json:"max_iterations"`
	Workers       int           `mapstructure:"workers" json:"workers"`
}

// DefaultConfig returns the default run settings.
func DefaultConfig() Config {
	return Config{
		Prime:         params.Prime(),
		Limits:        params.DefaultLimits(),
		TargetSites:   DefaultTargetSites,
		MaxIterations: DefaultMaxIterations,
		Workers:       DefaultWorkers,
	}
}

// Validate checks the limits against the prime state and the run bounds.
func (c Config) Validate() error {
	if err := c.Limits.Validate(c.Prime); err != nil {
		return err
	}
	if c.TargetSites < 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "target sites must be positive").
			WithDetailf("target_sites=%d", c.TargetSites)
	}
	if c.MaxIterations < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "max iterations must not be negative")
	}
	if c.Workers < 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "workers must be at least 1")
	}
	return nil
}

// Evaluator is the pipeline the optimizer drives.
type Evaluator interface {
	Summarize(ctx context.Context, state params.State) (viability.Summary, error)
	Evaluate(ctx context.Context, state params.State) (*pipeline.Evaluation, error)
}

// Publisher streams run progress.  Publish failures are logged, never fatal.
type Publisher interface {
	PublishIteration(ctx context.Context, runID string, rec Record) error
	PublishOutcome(ctx context.Context, runID string, res *Result) error
}

// Recorder receives run metrics.
type Recorder interface {
	ObserveIteration(dimension string, sites int)
	ObserveOutcome(outcome string, sites, iterations int, elapsed time.Duration)
}

// Result is the outcome of one run.
type Result struct {
	RunID   string
	Outcome Outcome
	Target  int
	Log     []Record
	// Prime and Final are full evaluations of the first and last states.
	Prime *pipeline.Evaluation
	Final *pipeline.Evaluation
}

// Iterations is the number of relaxation steps applied.
func (r *Result) Iterations() int { return len(r.Log) - 1 }

// Deficit is the number of sites still missing, 0 when the target was met.
func (r *Result) Deficit() int {
	d := r.Target - r.Final.Summary.Sites
	if d < 0 {
		return 0
	}
	return d
}

// Option customizes an Optimizer.
type Option func(*Optimizer)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Optimizer) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPublisher streams records to p.
func WithPublisher(p Publisher) Option {
	return func(o *Optimizer) { o.publisher = p }
}

// WithRecorder reports metrics to r.
func WithRecorder(r Recorder) Option {
	return func(o *Optimizer) { o.recorder = r }
}

// WithRunID fixes the run ID instead of generating one.
func WithRunID(id string) Option {
	return func(o *Optimizer) { o.runID = id }
}

// Optimizer owns the Parameter State for the duration of a run.
type Optimizer struct {
	eval      Evaluator
	cfg       Config
	runID     string
	logger    logging.Logger
	publisher Publisher
	recorder  Recorder
}

// NewOptimizer validates cfg and returns an Optimizer over eval.
func NewOptimizer(eval Evaluator, cfg Config, opts ...Option) (*Optimizer, error) {
	if eval == nil {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "evaluator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &Optimizer{eval: eval, cfg: cfg, logger: logging.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	o.logger = o.logger.Named("expansion").With(logging.String("run_id", o.runID))
	return o, nil
}

// RunID returns the run identifier.
func (o *Optimizer) RunID() string { return o.runID }

type candidate struct {
	dim     params.Dimension
	state   params.State
	summary viability.Summary
	gain    float64
}

// Run executes the relaxation loop.  Cancellation is checked between
// iterations and aborts the run with ErrCodeCanceled.
func (o *Optimizer) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	state := o.cfg.Prime
	current, err := o.eval.Summarize(ctx, state)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEvaluationFailed, "evaluating prime state")
	}

	res := &Result{RunID: o.runID, Target: o.cfg.TargetSites}
	o.append(ctx, res, newRecord(0, state, current, params.Initial))
	o.logger.Info("expansion started",
		logging.String("params", state.String()),
		logging.Int("sites", current.Sites),
		logging.Int("target", o.cfg.TargetSites),
		logging.Int("max_steps", o.cfg.Limits.TotalSteps(state)))

	for iteration := 1; ; iteration++ {
		if current.Sites >= o.cfg.TargetSites {
			res.Outcome = TargetReached
			break
		}
		headroom := o.cfg.Limits.Headroom(state)
		if len(headroom) == 0 {
			res.Outcome = BoundaryExhausted
			break
		}
		if iteration > o.cfg.MaxIterations {
			res.Outcome = IterationCeiling
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeCanceled, "expansion canceled").
				WithDetailf("iteration=%d", iteration)
		}

		best, err := o.step(ctx, state, current, headroom)
		if err != nil {
			return nil, err
		}
		state, current = best.state, best.summary
		o.append(ctx, res, newRecord(iteration, state, current, best.dim.String()))
		o.logger.Debug("constraint relaxed",
			logging.Int("iteration", iteration),
			logging.String("dimension", best.dim.String()),
			logging.Float64("gain", best.gain),
			logging.String("params", state.String()),
			logging.Int("sites", current.Sites))
	}

	if res.Final, err = o.eval.Evaluate(ctx, state); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEvaluationFailed, "evaluating final state")
	}
	if res.Prime, err = o.eval.Evaluate(ctx, o.cfg.Prime); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeEvaluationFailed, "evaluating prime state")
	}

	fields := []logging.Field{
		logging.String("outcome", string(res.Outcome)),
		logging.Int("iterations", res.Iterations()),
		logging.Int("sites", res.Final.Summary.Sites),
		logging.String("params", state.String()),
		logging.Duration("elapsed", time.Since(start)),
	}
	if res.Outcome.BestEffort() {
		o.logger.Warn("expansion stopped short of target", append(fields, logging.Int("deficit", res.Deficit()))...)
	} else {
		o.logger.Info("expansion reached target", fields...)
	}
	if o.recorder != nil {
		o.recorder.ObserveOutcome(string(res.Outcome), res.Final.Summary.Sites, res.Iterations(), time.Since(start))
	}
	if o.publisher != nil {
		if err := o.publisher.PublishOutcome(ctx, o.runID, res); err != nil {
			o.logger.Warn("publishing outcome failed", logging.Err(err))
		}
	}
	return res, nil
}

// step evaluates one relaxation of every dimension in headroom, in
// parallel, and returns the chosen candidate.  headroom is in tier order.
func (o *Optimizer) step(ctx context.Context, state params.State, current viability.Summary, headroom []params.Dimension) (candidate, error) {
	cands := make([]candidate, len(headroom))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, d := range headroom {
		i, d := i, d
		g.Go(func() error {
			next := o.cfg.Limits.Relax(state, d)
			s, err := o.eval.Summarize(gctx, next)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeEvaluationFailed, "evaluating relaxation").
					WithDetailf("dimension=%s params=%s", d, next)
			}
			tier := float64(o.cfg.Limits.For(d).Tier)
			cands[i] = candidate{dim: d, state: next, summary: s, gain: float64(s.Sites-current.Sites) / tier}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return candidate{}, err
	}
	return choose(cands), nil
}

// choose picks the highest positive gain, ties to the earlier (lower-tier)
// candidate.  Without a positive gain it falls back to the first candidate.
func choose(cands []candidate) candidate {
	best := 0
	for i := 1; i < len(cands); i++ {
		if cands[i].gain > cands[best].gain {
			best = i
		}
	}
	if cands[best].gain <= 0 {
		return cands[0]
	}
	return cands[best]
}

func (o *Optimizer) append(ctx context.Context, res *Result, rec Record) {
	res.Log = append(res.Log, rec)
	if o.recorder != nil {
		o.recorder.ObserveIteration(rec.Changed, rec.Sites)
	}
	if o.publisher != nil {
		if err := o.publisher.PublishIteration(ctx, o.runID, rec); err != nil {
			o.logger.Warn("publishing iteration failed", logging.Int("iteration", rec.Iteration), logging.Err(err))
		}
	}
}
