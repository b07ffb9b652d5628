package scoring

import (
	"gonum.org/v1/gonum/stat"

	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/pkg/errors"
)

// PressureConfig defines the caregiver and dependent slices and the burnout
// clip band.
type PressureConfig struct {
	CaregiverMinAge int     `mapstructure:"caregiver_min_age" json:"caregiver_min_age"`
	CaregiverMaxAge int     `mapstructure:"caregiver_max_age" json:"caregiver_max_age"`
	DependentMinAge int     `mapstructure:"dependent_min_age" json:"dependent_min_age"`
	Epsilon         float64 `mapstructure:"epsilon" json:"epsilon"`
	ClipLow         float64 `mapstructure:"clip_low" json:"clip_low"`
	ClipHigh        float64 `mapstructure:"clip_high" json:"clip_high"`
}

// DefaultPressureConfig: female 45–64 caregivers, female 80+ dependents.
func DefaultPressureConfig() PressureConfig {
	return PressureConfig{
		CaregiverMinAge: 45,
		CaregiverMaxAge: 60,
		DependentMinAge: 80,
		Epsilon:         0.001,
		ClipLow:         0.5,
		ClipHigh:        1.5,
	}
}

// Validate checks the slice bounds and the clip band.
func (c PressureConfig) Validate() error {
	if c.Epsilon <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "pressure epsilon must be positive")
	}
	if c.ClipLow <= 0 || c.ClipHigh < c.ClipLow {
		return errors.New(errors.ErrCodeConfigInvalid, "burnout clip band is invalid").
			WithDetailf("low=%g high=%g", c.ClipLow, c.ClipHigh)
	}
	if c.CaregiverMaxAge < c.CaregiverMinAge {
		return errors.New(errors.ErrCodeConfigInvalid, "caregiver age band is inverted")
	}
	if len(c.Caregivers()) == 0 || len(c.Dependents()) == 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "caregiver or dependent slice selects no bucket")
	}
	return nil
}

// Caregivers returns the bucket indices of the caregiver slice.
func (c PressureConfig) Caregivers() []int {
	return demography.SliceIndices(demography.Female, c.CaregiverMinAge, c.CaregiverMaxAge)
}

// Dependents returns the bucket indices of the dependent slice.  It is also
// the target-eligible sub-population aggregated by the viability stage.
func (c PressureConfig) Dependents() []int {
	return demography.SliceIndices(demography.Female, c.DependentMinAge, -1)
}

// PressureRatio is dependents / (caregivers + ε) over a probability vector.
func PressureRatio(p []float64, caregivers, dependents []int, eps float64) float64 {
	var c, d float64
	for _, i := range caregivers {
		c += p[i]
	}
	for _, i := range dependents {
		d += p[i]
	}
	return d / (c + eps)
}

// BurnoutFactors divides every ratio by the mean ratio and clips the result
// to [low, high].  A zero mean yields a neutral factor of 1 for every unit.
func BurnoutFactors(ratios []float64, low, high float64) []float64 {
	out := make([]float64, len(ratios))
	if len(ratios) == 0 {
		return out
	}
	mean := stat.Mean(ratios, nil)
	for i, r := range ratios {
		if mean <= 0 {
			out[i] = 1
			continue
		}
		out[i] = clip(r/mean, low, high)
	}
	return out
}

func clip(x, low, high float64) float64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}
