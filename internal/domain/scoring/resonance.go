// Package scoring computes the per-unit ranking score: demographic
// resonance against the target vector, an income-based economic multiplier
// and a social-pressure (burnout) multiplier.
package scoring

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/turtacn/lsoma/pkg/errors"
)

// JensenShannon returns the base-2 Jensen–Shannon divergence of p and q,
// which lies in [0, 1].  Both vectors are normalized to unit mass first.
func JensenShannon(p, q []float64) (float64, error) {
	if len(p) != len(q) {
		return 0, errors.New(errors.ErrCodeVectorLengthMismatch, "vectors are not aligned to the same bucket order").
			WithDetailf("len(p)=%d len(q)=%d", len(p), len(q))
	}
	sp, sq := floats.Sum(p), floats.Sum(q)
	if sp <= 0 {
		return 0, errors.New(errors.ErrCodeZeroPopulation, "population vector has zero mass")
	}
	if sq <= 0 {
		return 0, errors.New(errors.ErrCodeMalformedVector, "target vector has zero mass")
	}

	var kp, kq float64
	for i := range p {
		pi, qi := p[i]/sp, q[i]/sq
		mi := 0.5 * (pi + qi)
		if pi > 0 {
			kp += pi * math.Log2(pi/mi)
		}
		if qi > 0 {
			kq += qi * math.Log2(qi/mi)
		}
	}
	return clamp01(0.5*kp + 0.5*kq), nil
}

// Resonance returns 1 − JSD(p, q): 1 for identical distributions, 0 for
// disjoint ones.
func Resonance(p, q []float64) (float64, error) {
	d, err := JensenShannon(p, q)
	if err != nil {
		return 0, err
	}
	return clamp01(1 - d), nil
}

func clamp01(x float64) float64 {
	switch {
	case x < 0:
		return 0
	case x > 1:
		return 1
	}
	return x
}
