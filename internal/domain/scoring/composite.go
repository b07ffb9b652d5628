package scoring

import (
	"sort"

	"github.com/paulmach/orb"

	"github.com/turtacn/lsoma/internal/domain/census"
	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/pkg/errors"
)

// Config groups the scoring settings.
type Config struct {
	Economic EconomicConfig `mapstructure:"economic" json:"economic"`
	Pressure PressureConfig `mapstructure:"pressure" json:"pressure"`
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{Economic: DefaultEconomicConfig(), Pressure: DefaultPressureConfig()}
}

// Validate validates both sub-configs.
func (c Config) Validate() error {
	if err := c.Economic.Validate(); err != nil {
		return err
	}
	return c.Pressure.Validate()
}

// UnitScore is the scored view of one geographic unit.
type UnitScore struct {
	UnitID    string
	Resonance float64
	Income    float64
	// LogFactor is the income term before solvency and land-cost penalties.
	LogFactor float64
	// Economic is the net economic multiplier.
	Economic  float64
	Pressure  float64
	Burnout   float64
	Composite float64
	// TargetPopulation is the absolute head-count of the dependent slice.
	TargetPopulation float64

	Location    orb.Point
	HasLocation bool
}

// Table holds the parameter-independent part of every unit's score.  It is
// read-only after Prepare and safe for concurrent use.
type Table struct {
	cfg   EconomicConfig
	units []UnitScore
}

// Scorer prepares score tables from a population matrix.
type Scorer struct {
	cfg    Config
	target *demography.TargetVector
	logger logging.Logger
}

// NewScorer validates cfg and returns a Scorer against target.
func NewScorer(cfg Config, target *demography.TargetVector, log logging.Logger) (*Scorer, error) {
	if target == nil {
		return nil, errors.New(errors.ErrCodeMalformedVector, "target vector is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Scorer{cfg: cfg, target: target, logger: log.Named("scoring")}, nil
}

// Prepare computes resonance, burnout and income terms for every unit.
// Burnout is normalized by the mean pressure ratio over all retained units.
func (s *Scorer) Prepare(m *census.Matrix) (*Table, error) {
	units := m.Units()
	if len(units) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyCandidateSet, "no unit to score")
	}
	q := s.target.Probs()
	caregivers, dependents := s.cfg.Pressure.Caregivers(), s.cfg.Pressure.Dependents()

	out := make([]UnitScore, len(units))
	ratios := make([]float64, len(units))
	for i, u := range units {
		r, err := Resonance(u.P, q)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUnknown, "resonance").WithDetailf("unit=%s", u.ID)
		}
		ratios[i] = PressureRatio(u.P, caregivers, dependents, s.cfg.Pressure.Epsilon)
		out[i] = UnitScore{
			UnitID:           u.ID,
			Resonance:        r,
			Income:           u.Income,
			LogFactor:        s.cfg.Economic.LogFactor(u.Income),
			Pressure:         ratios[i],
			TargetPopulation: u.SlicePopulation(dependents),
			Location:         u.Location,
			HasLocation:      u.HasLocation,
		}
	}
	burnout := BurnoutFactors(ratios, s.cfg.Pressure.ClipLow, s.cfg.Pressure.ClipHigh)
	for i := range out {
		out[i].Burnout = burnout[i]
	}

	s.logger.Info("score table prepared", logging.Int("units", len(out)))
	return &Table{cfg: s.cfg.Economic, units: out}, nil
}

// Len returns the number of units.
func (t *Table) Len() int { return len(t.units) }

// Located returns the number of units with coordinates.
func (t *Table) Located() int {
	n := 0
	for _, u := range t.units {
		if u.HasLocation {
			n++
		}
	}
	return n
}

// Score returns a fresh slice of unit scores under the given income-penalty
// coefficient, in unit-ID order.
func (t *Table) Score(incomePenalty float64) []UnitScore {
	out := make([]UnitScore, len(t.units))
	copy(out, t.units)
	for i := range out {
		u := &out[i]
		u.Economic = t.cfg.Multiplier(u.Income, incomePenalty)
		u.Composite = u.Resonance * u.Economic * u.Burnout
	}
	return out
}

// Rank sorts scores by composite descending, ties by unit ID ascending.
func Rank(scores []UnitScore) {
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Composite != scores[j].Composite {
			return scores[i].Composite > scores[j].Composite
		}
		return scores[i].UnitID < scores[j].UnitID
	})
}
