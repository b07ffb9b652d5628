package params

import (
	"math"
	"sort"

	"github.com/turtacn/lsoma/pkg/errors"
)

// stepTolerance absorbs float noise when counting steps between a value
// and its boundary.
const stepTolerance = 1e-9

// Limit bounds the relaxation of one dimension.
type Limit struct {
	Step     float64 `mapstructure:"step" json:"step"`
	Boundary float64 `mapstructure:"boundary" json:"boundary"`
	Tier     int     `mapstructure:"tier" json:"tier"`
}

// Limits bounds every dimension.
type Limits struct {
	Percentile    Limit `mapstructure:"percentile" json:"percentile"`
	Share         Limit `mapstructure:"share" json:"share"`
	IncomePenalty Limit `mapstructure:"income_penalty" json:"income_penalty"`
	MinBeds       Limit `mapstructure:"min_beds" json:"min_beds"`
}

// DefaultLimits returns the acceptable-risk limits.
func DefaultLimits() Limits {
	return Limits{
		Percentile:    Limit{Step: 1, Boundary: 60, Tier: 1},
		Share:         Limit{Step: 0.002, Boundary: 0.06, Tier: 2},
		IncomePenalty: Limit{Step: 0.05, Boundary: 0.7, Tier: 3},
		MinBeds:       Limit{Step: 1, Boundary: 60, Tier: 4},
	}
}

// For returns the limit of d.
func (l Limits) For(d Dimension) Limit {
	switch d {
	case Percentile:
		return l.Percentile
	case Share:
		return l.Share
	case IncomePenalty:
		return l.IncomePenalty
	default:
		return l.MinBeds
	}
}

// Validate checks steps and tiers, and that prime lies on the safe side of
// every boundary.
func (l Limits) Validate(prime State) error {
	if err := prime.Validate(); err != nil {
		return err
	}
	for _, d := range Dimensions() {
		lim := l.For(d)
		if !(lim.Step > 0) {
			return errors.New(errors.ErrCodeOptimizerLimits, "step must be positive").
				WithDetailf("%s step=%g", d, lim.Step)
		}
		if lim.Tier < 1 {
			return errors.New(errors.ErrCodeOptimizerLimits, "tier must be at least 1").
				WithDetailf("%s tier=%d", d, lim.Tier)
		}
		v := prime.Get(d)
		if d.Increases() && v > lim.Boundary+stepTolerance || !d.Increases() && v < lim.Boundary-stepTolerance {
			return errors.New(errors.ErrCodeOptimizerLimits, "prime value lies beyond its boundary").
				WithDetailf("%s prime=%g boundary=%g", d, v, lim.Boundary)
		}
		if err := prime.With(d, lim.Boundary).Validate(); err != nil {
			return errors.Wrap(err, errors.ErrCodeOptimizerLimits, "boundary is not a usable value")
		}
	}
	return nil
}

// StepsToBoundary returns how many whole steps separate s from the boundary
// of d.  A partial step counts as one.
func (l Limits) StepsToBoundary(s State, d Dimension) int {
	lim := l.For(d)
	gap := lim.Boundary - s.Get(d)
	if !d.Increases() {
		gap = -gap
	}
	if gap <= stepTolerance*lim.Step {
		return 0
	}
	return int(math.Ceil(gap/lim.Step - stepTolerance))
}

// TotalSteps is the sum of StepsToBoundary over every dimension.
func (l Limits) TotalSteps(s State) int {
	n := 0
	for _, d := range Dimensions() {
		n += l.StepsToBoundary(s, d)
	}
	return n
}

// HasHeadroom reports whether d can still be relaxed.
func (l Limits) HasHeadroom(s State, d Dimension) bool {
	return l.StepsToBoundary(s, d) > 0
}

// Headroom returns the dimensions that can still be relaxed, in tier order.
func (l Limits) Headroom(s State) []Dimension {
	var out []Dimension
	for _, d := range l.ByTier() {
		if l.HasHeadroom(s, d) {
			out = append(out, d)
		}
	}
	return out
}

// ByTier returns the dimensions ordered by tier, ties in declaration order.
func (l Limits) ByTier() []Dimension {
	dims := Dimensions()
	sort.SliceStable(dims, func(i, j int) bool { return l.For(dims[i]).Tier < l.For(dims[j]).Tier })
	return dims
}

// Relax returns s moved one step along d, clamped to the boundary.  The new
// value is recomputed from the remaining step count so repeated relaxation
// lands exactly on the boundary.
func (l Limits) Relax(s State, d Dimension) State {
	remaining := l.StepsToBoundary(s, d)
	if remaining == 0 {
		return s
	}
	lim := l.For(d)
	if remaining == 1 {
		return s.With(d, lim.Boundary)
	}
	offset := float64(remaining-1) * lim.Step
	if d.Increases() {
		return s.With(d, lim.Boundary-offset)
	}
	return s.With(d, lim.Boundary+offset)
}
