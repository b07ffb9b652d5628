// Package params defines the business-constraint vector the optimizer
// relaxes and the limits it may relax it to.
package params

import (
	"fmt"
	"math"

	"github.com/turtacn/lsoma/pkg/errors"
)

// Dimension names one scalar of the State.  Dimensions are declared in
// risk-tier order.
type Dimension int

const (
	Percentile Dimension = iota
	Share
	IncomePenalty
	MinBeds
)

// Initial is the dimension label of the iteration-0 log record.
const Initial = "initial"

// Dimensions returns all dimensions in tier order.
func Dimensions() []Dimension {
	return []Dimension{Percentile, Share, IncomePenalty, MinBeds}
}

func (d Dimension) String() string {
	switch d {
	case Percentile:
		return "percentile"
	case Share:
		return "share"
	case IncomePenalty:
		return "income_penalty"
	case MinBeds:
		return "min_beds"
	default:
		return fmt.Sprintf("dimension(%d)", int(d))
	}
}

// Increases reports whether relaxing d raises the parameter.
func (d Dimension) Increases() bool {
	return d == Share || d == IncomePenalty
}

// State is the Parameter State.  Percentile is the admission-cut
// percentile, Share the market share of the target population, IncomePenalty
// the solvency coefficient below the income floor and MinBeds the bed
// threshold for a viable cluster.
type State struct {
	Percentile    float64 `mapstructure:"percentile" json:"percentile"`
	Share         float64 `mapstructure:"share" json:"share"`
	IncomePenalty float64 `mapstructure:"income_penalty" json:"income_penalty"`
	MinBeds       float64 `mapstructure:"min_beds" json:"min_beds"`
}

// Prime returns the conservative starting state.
func Prime() State {
	return State{Percentile: 85, Share: 0.03, IncomePenalty: 0.4, MinBeds: 85}
}

// Get returns the value of d.
func (s State) Get(d Dimension) float64 {
	switch d {
	case Percentile:
		return s.Percentile
	case Share:
		return s.Share
	case IncomePenalty:
		return s.IncomePenalty
	default:
		return s.MinBeds
	}
}

// With returns a copy of s with d set to v.
func (s State) With(d Dimension, v float64) State {
	switch d {
	case Percentile:
		s.Percentile = v
	case Share:
		s.Share = v
	case IncomePenalty:
		s.IncomePenalty = v
	default:
		s.MinBeds = v
	}
	return s
}

// String serializes s as P85_S3.0%_R0.40_C85.
func (s State) String() string {
	return fmt.Sprintf("P%.0f_S%.1f%%_R%.2f_C%.0f", s.Percentile, s.Share*100, s.IncomePenalty, s.MinBeds)
}

// Validate checks that s is usable by the pipeline, independent of limits.
func (s State) Validate() error {
	switch {
	case s.Percentile < 0 || s.Percentile > 100 || math.IsNaN(s.Percentile):
		return outOfBand(Percentile, s.Percentile, "[0,100]")
	case !(s.Share > 0) || s.Share > 1:
		return outOfBand(Share, s.Share, "(0,1]")
	case s.IncomePenalty < 0 || s.IncomePenalty > 1 || math.IsNaN(s.IncomePenalty):
		return outOfBand(IncomePenalty, s.IncomePenalty, "[0,1]")
	case s.MinBeds < 0 || math.IsNaN(s.MinBeds):
		return outOfBand(MinBeds, s.MinBeds, "[0,inf)")
	}
	return nil
}

func outOfBand(d Dimension, v float64, band string) error {
	return errors.New(errors.ErrCodeParameterOutOfBand, "parameter out of band").
		WithDetailf("%s=%g band=%s", d, v, band)
}
