// Package pipeline evaluates one Parameter State end to end: admission cut,
// spatial clustering and viability classification over a prepared score
// table.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/scoring"
	"github.com/turtacn/lsoma/internal/domain/spatial"
	"github.com/turtacn/lsoma/internal/domain/viability"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/pkg/errors"
)

// Config holds the pipeline constants that do not vary with the
// Parameter State.
type Config struct {
	Clustering      spatial.Params `mapstructure:"clustering" json:"clustering"`
	BedsPerFacility float64        `mapstructure:"beds_per_facility" json:"beds_per_facility"`
}

// DefaultConfig returns the default pipeline constants.
func DefaultConfig() Config {
	return Config{
		Clustering:      spatial.DefaultParams(),
		BedsPerFacility: viability.DefaultBedsPerFacility,
	}
}

// Validate checks the clustering constants and the facility size.
func (c Config) Validate() error {
	if err := c.Clustering.Validate(); err != nil {
		return err
	}
	if !(c.BedsPerFacility > 0) {
		return errors.New(errors.ErrCodeConfigInvalid, "beds per facility must be positive")
	}
	return nil
}

// SummaryCache memoizes evaluation summaries by key.
type SummaryCache interface {
	GetSummary(ctx context.Context, key string) (viability.Summary, bool, error)
	SetSummary(ctx context.Context, key string, s viability.Summary) error
}

// Observer receives evaluation timings.
type Observer interface {
	ObserveEvaluation(d time.Duration, cached bool)
}

// Evaluation is the full result of evaluating one state.
type Evaluation struct {
	State params.State
	Cut   float64
	// Scores holds every unit, ranked.
	Scores []scoring.UnitScore
	// Admitted holds the admitted units with coordinates, in ID order.  It is
	// aligned with Partition.Labels.
	Admitted  []scoring.UnitScore
	Partition spatial.Result
	Clusters  []viability.Cluster
	Summary   viability.Summary
}

// Point is one admitted unit tagged with its cluster.
type Point struct {
	UnitID    string
	ClusterID int
	Viable    bool
	Lat       float64
	Lon       float64
	Score     float64
}

// Points tags each admitted unit with its cluster and the cluster's
// viability.  Noise points carry spatial.Noise.
func (e *Evaluation) Points() []Point {
	out := make([]Point, len(e.Admitted))
	for i, u := range e.Admitted {
		label := spatial.Noise
		if i < len(e.Partition.Labels) {
			label = e.Partition.Labels[i]
		}
		p := Point{UnitID: u.UnitID, ClusterID: label, Lat: u.Location.Lat(), Lon: u.Location.Lon(), Score: u.Composite}
		if label >= 0 && label < len(e.Clusters) {
			p.Viable = e.Clusters[label].Viable
		}
		out[i] = p
	}
	return out
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCache memoizes summaries in c.
func WithCache(c SummaryCache) Option {
	return func(e *Evaluator) { e.cache = c }
}

// WithObserver reports evaluation timings to o.
func WithObserver(o Observer) Option {
	return func(e *Evaluator) { e.observer = o }
}

// Evaluator maps a Parameter State to its viability result.  It holds only
// read-only data and is safe for concurrent use.
type Evaluator struct {
	table       *scoring.Table
	cfg         Config
	clusterer   spatial.Clusterer
	classifier  *viability.Classifier
	fingerprint string

	cache    SummaryCache
	observer Observer
	logger   logging.Logger
	group    singleflight.Group
}

// NewEvaluator builds an Evaluator over table.
func NewEvaluator(table *scoring.Table, cfg Config, opts ...Option) (*Evaluator, error) {
	if table == nil || table.Len() == 0 {
		return nil, errors.New(errors.ErrCodeEmptyCandidateSet, "score table is empty")
	}
	if table.Located() == 0 {
		return nil, errors.New(errors.ErrCodeEmptyCandidateSet, "no unit has coordinates").
			WithDetailf("units=%d", table.Len())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clusterer, err := spatial.NewDBSCAN(cfg.Clustering)
	if err != nil {
		return nil, err
	}
	classifier, err := viability.NewClassifier(cfg.BedsPerFacility)
	if err != nil {
		return nil, err
	}
	e := &Evaluator{
		table:      table,
		cfg:        cfg,
		clusterer:  clusterer,
		classifier: classifier,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("pipeline")
	e.fingerprint = Fingerprint(table, cfg)
	return e, nil
}

// Config returns the pipeline constants.
func (e *Evaluator) Config() Config { return e.cfg }

// Fingerprint returns the dataset fingerprint used in cache keys.
func (e *Evaluator) Fingerprint() string { return e.fingerprint }

// Evaluate runs the full pipeline for state.
func (e *Evaluator) Evaluate(ctx context.Context, state params.State) (*Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCanceled, "evaluation canceled")
	}
	if err := state.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	scores := e.table.Score(state.IncomePenalty)
	cut := AdmissionCut(scores, state.Percentile)
	located := Located(Admit(scores, cut))
	scoring.Rank(scores)

	ev := &Evaluation{State: state, Cut: cut, Scores: scores, Admitted: located}
	if len(located) < e.cfg.Clustering.MinNeighbors {
		ev.Partition = spatial.Result{Labels: fillNoise(len(located))}
		e.observe(time.Since(start), false)
		return ev, nil
	}

	points := make([]spatial.Point, len(located))
	for i, u := range located {
		points[i] = spatial.Point{ID: u.UnitID, Location: u.Location}
	}
	part, err := e.clusterer.Cluster(points)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnknown, "clustering")
	}
	ev.Partition = part
	ev.Clusters = e.classifier.Aggregate(located, part, state)
	ev.Summary = e.classifier.Summarize(ev.Clusters)

	e.observe(time.Since(start), false)
	e.logger.Debug("state evaluated",
		logging.String("state", state.String()),
		logging.Float64("cut", cut),
		logging.Int("admitted", len(located)),
		logging.Int("clusters", len(ev.Clusters)),
		logging.Int("sites", ev.Summary.Sites))
	return ev, nil
}

// Summarize returns only the summary of state, consulting the cache when
// one is configured.  Concurrent calls for the same state share one
// evaluation.  Cache failures are logged and never fail the call.
func (e *Evaluator) Summarize(ctx context.Context, state params.State) (viability.Summary, error) {
	key := e.CacheKey(state)
	if e.cache != nil {
		start := time.Now()
		s, ok, err := e.cache.GetSummary(ctx, key)
		if err != nil {
			e.logger.Warn("summary cache read failed", logging.String("key", key), logging.Err(err))
		} else if ok {
			e.observe(time.Since(start), true)
			return s, nil
		}
	}

	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		ev, err := e.Evaluate(ctx, state)
		if err != nil {
			return viability.Summary{}, err
		}
		if e.cache != nil {
			if err := e.cache.SetSummary(ctx, key, ev.Summary); err != nil {
				e.logger.Warn("summary cache write failed", logging.String("key", key), logging.Err(err))
			}
		}
		return ev.Summary, nil
	})
	if err != nil {
		return viability.Summary{}, err
	}
	return v.(viability.Summary), nil
}

// CacheKey identifies the summary of state over this evaluator's data.
func (e *Evaluator) CacheKey(state params.State) string {
	return e.fingerprint + ":" + stateKey(state)
}

func stateKey(s params.State) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return f(s.Percentile) + "|" + f(s.Share) + "|" + f(s.IncomePenalty) + "|" + f(s.MinBeds)
}

// Fingerprint hashes everything a summary depends on apart from the state.
func Fingerprint(table *scoring.Table, cfg Config) string {
	h := sha256.New()
	fmt.Fprintf(h, "%g|%d|%g\n", cfg.Clustering.RadiusKm, cfg.Clustering.MinNeighbors, cfg.BedsPerFacility)
	penalized, unpenalized := table.Score(0), table.Score(1)
	for i, u := range unpenalized {
		fmt.Fprintf(h, "%s|%g|%g|%g|%t|%g|%g\n",
			u.UnitID, u.Composite, penalized[i].Composite, u.TargetPopulation,
			u.HasLocation, u.Location.Lat(), u.Location.Lon())
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (e *Evaluator) observe(d time.Duration, cached bool) {
	if e.observer != nil {
		e.observer.ObserveEvaluation(d, cached)
	}
}

func fillNoise(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = spatial.Noise
	}
	return out
}
