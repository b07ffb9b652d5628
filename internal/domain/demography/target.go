package demography

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/turtacn/lsoma/pkg/errors"
)

// SumTolerance is the allowed deviation of a probability vector's mass from 1.
const SumTolerance = 1e-6

// AgeBand assigns Weight to every age range whose lower bound is ≥ MinAge
// and below the next band's MinAge.
type AgeBand struct {
	MinAge int     `mapstructure:"min_age" json:"min_age"`
	Weight float64 `mapstructure:"weight" json:"weight"`
}

// WeightTable is the hand-tuned weight schedule the target vector is built
// from.  Bands must be sorted by MinAge ascending.
type WeightTable struct {
	Bands            []AgeBand `mapstructure:"bands" json:"bands"`
	FemaleMultiplier float64   `mapstructure:"female_multiplier" json:"female_multiplier"`
}

// DefaultWeights returns the weight schedule of the elderly-care profile:
// heavy on 80+ and feminized by 1.3.
func DefaultWeights() WeightTable {
	return WeightTable{
		Bands: []AgeBand{
			{MinAge: 0, Weight: 0.15},
			{MinAge: 60, Weight: 0.5},
			{MinAge: 75, Weight: 1.0},
			{MinAge: 80, Weight: 4.0},
			{MinAge: 85, Weight: 5.0},
		},
		FemaleMultiplier: 1.3,
	}
}

// WeightFor returns the raw (male) weight of the age range starting at minAge.
func (w WeightTable) WeightFor(minAge int) float64 {
	weight := 0.0
	for _, b := range w.Bands {
		if minAge >= b.MinAge {
			weight = b.Weight
		}
	}
	return weight
}

// Validate checks band order and sign.
func (w WeightTable) Validate() error {
	if len(w.Bands) == 0 {
		return errors.New(errors.ErrCodeMalformedVector, "weight table has no bands")
	}
	for i, b := range w.Bands {
		if b.Weight < 0 || math.IsNaN(b.Weight) {
			return errors.New(errors.ErrCodeMalformedVector, "negative band weight").
				WithDetailf("min_age=%d weight=%g", b.MinAge, b.Weight)
		}
		if i > 0 && b.MinAge <= w.Bands[i-1].MinAge {
			return errors.New(errors.ErrCodeMalformedVector, "weight bands not sorted by min_age").
				WithDetailf("band=%d", i)
		}
	}
	if w.FemaleMultiplier <= 0 {
		return errors.New(errors.ErrCodeMalformedVector, "female multiplier must be positive")
	}
	return nil
}

// TargetVector is the idealized probability distribution Q over the bucket
// catalog.  It is immutable once built.
type TargetVector struct {
	weights []float64
	probs   []float64
}

// BuildTargetVector derives Q from a weight schedule.  Female weights are the
// male weights times the feminization multiplier; the result is normalized by
// the total mass over both sexes.
func BuildTargetVector(w WeightTable) (*TargetVector, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	weights := make([]float64, NumBuckets)
	for _, b := range catalog {
		weights[b.Index] = w.WeightFor(b.MinAge)
		if b.Sex == Female {
			weights[b.Index] *= w.FemaleMultiplier
		}
	}
	total := floats.Sum(weights)
	if total <= 0 {
		return nil, errors.New(errors.ErrCodeMalformedVector, "target weights have zero mass")
	}
	probs := make([]float64, NumBuckets)
	floats.ScaleTo(probs, 1/total, weights)
	return newTarget(weights, probs)
}

// NewTargetVector wraps an already-normalized probability vector in catalog
// order.
func NewTargetVector(probs []float64) (*TargetVector, error) {
	p := make([]float64, len(probs))
	copy(p, probs)
	return newTarget(p, p)
}

func newTarget(weights, probs []float64) (*TargetVector, error) {
	if len(probs) != NumBuckets {
		return nil, errors.New(errors.ErrCodeSchemaMismatch, "target vector length differs from bucket catalog").
			WithDetailf("got=%d want=%d", len(probs), NumBuckets)
	}
	if err := CheckDistribution(probs); err != nil {
		return nil, err
	}
	return &TargetVector{weights: weights, probs: probs}, nil
}

// CheckDistribution verifies that v is non-negative and sums to 1 within
// SumTolerance.
func CheckDistribution(v []float64) error {
	for i, x := range v {
		if x < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return errors.New(errors.ErrCodeMalformedVector, "probability vector has an invalid entry").
				WithDetailf("index=%d value=%g", i, x)
		}
	}
	if s := floats.Sum(v); math.Abs(s-1) > SumTolerance {
		return errors.New(errors.ErrCodeMalformedVector, "probability vector does not sum to 1").
			WithDetailf("sum=%.9f", s)
	}
	return nil
}

// Len returns the number of buckets.
func (q *TargetVector) Len() int { return len(q.probs) }

// At returns the probability of bucket i.
func (q *TargetVector) At(i int) float64 { return q.probs[i] }

// Probs returns a copy of the probabilities in catalog order.
func (q *TargetVector) Probs() []float64 {
	out := make([]float64, len(q.probs))
	copy(out, q.probs)
	return out
}

// Sum returns the total mass.
func (q *TargetVector) Sum() float64 { return floats.Sum(q.probs) }

// TargetRow is one line of the target vector file.
type TargetRow struct {
	AgeRange     string
	WeightMale   float64
	WeightFemale float64
	ProbMale     float64
	ProbFemale   float64
}

// Rows renders Q as one row per age range.
func (q *TargetVector) Rows() []TargetRow {
	rows := make([]TargetRow, 0, NumAgeRanges)
	for _, r := range ageRanges {
		hi, _ := IndexFor(Male, r)
		mi, _ := IndexFor(Female, r)
		rows = append(rows, TargetRow{
			AgeRange:     r,
			WeightMale:   q.weights[hi],
			WeightFemale: q.weights[mi],
			ProbMale:     q.probs[hi],
			ProbFemale:   q.probs[mi],
		})
	}
	return rows
}

// TargetFromRows rebuilds Q from target-file rows.  Every catalog age range
// must appear exactly once; labels are normalized first.
func TargetFromRows(rows []TargetRow) (*TargetVector, error) {
	weights := make([]float64, NumBuckets)
	probs := make([]float64, NumBuckets)
	seen := make(map[string]bool, len(rows))
	for _, row := range rows {
		label, err := NormalizeAgeRange(row.AgeRange)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSchemaMismatch, "target vector row")
		}
		if seen[label] {
			return nil, errors.New(errors.ErrCodeSchemaMismatch, "duplicate age range in target vector").
				WithDetailf("range=%s", label)
		}
		seen[label] = true
		hi, _ := IndexFor(Male, label)
		mi, _ := IndexFor(Female, label)
		weights[hi], weights[mi] = row.WeightMale, row.WeightFemale
		probs[hi], probs[mi] = row.ProbMale, row.ProbFemale
	}
	if len(seen) != NumAgeRanges {
		return nil, errors.New(errors.ErrCodeSchemaMismatch, "target vector does not cover the bucket catalog").
			WithDetailf("ranges=%d want=%d", len(seen), NumAgeRanges)
	}
	return newTarget(weights, probs)
}
