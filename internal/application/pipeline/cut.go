package pipeline

import (
	"math"
	"sort"

	"github.com/turtacn/lsoma/internal/domain/scoring"
)

// AdmissionCut returns the percentile/100 quantile of the composite scores,
// interpolated linearly between the two nearest order statistics at rank
// p*(n-1).  It returns 0 for an empty slice.
func AdmissionCut(scores []scoring.UnitScore, percentile float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	xs := make([]float64, len(scores))
	for i, s := range scores {
		xs[i] = s.Composite
	}
	sort.Float64s(xs)
	p := percentile / 100
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	h := p * float64(len(xs)-1)
	lo := int(math.Floor(h))
	if lo >= len(xs)-1 {
		return xs[len(xs)-1]
	}
	return xs[lo] + (h-float64(lo))*(xs[lo+1]-xs[lo])
}

// Admit returns the units whose composite is strictly above cut, in the
// order given.
func Admit(scores []scoring.UnitScore, cut float64) []scoring.UnitScore {
	var out []scoring.UnitScore
	for _, s := range scores {
		if s.Composite > cut {
			out = append(out, s)
		}
	}
	return out
}

// Located filters scores down to units with coordinates.
func Located(scores []scoring.UnitScore) []scoring.UnitScore {
	out := make([]scoring.UnitScore, 0, len(scores))
	for _, s := range scores {
		if s.HasLocation {
			out = append(out, s)
		}
	}
	return out
}
