package scoring

import (
	"math"

	"github.com/turtacn/lsoma/pkg/errors"
)

// Default income band of the economic overlay.
const (
	DefaultIncomeFloor   = 30000.0
	DefaultIncomeCeiling = 65000.0
)

// DefaultReferenceIncome normalizes log10(income+1) so that a ~60k household
// scores about 1.
var DefaultReferenceIncome = math.Pow(10, 4.8)

// EconomicConfig holds the income band of the overlay.
type EconomicConfig struct {
	// IncomeFloor: incomes strictly below it get the solvency penalty.
	IncomeFloor float64 `mapstructure:"income_floor" json:"income_floor"`
	// IncomeCeiling: incomes strictly above it get the land-cost penalty.
	IncomeCeiling float64 `mapstructure:"income_ceiling" json:"income_ceiling"`
	// ReferenceIncome is the log-scale normalizer.
	ReferenceIncome float64 `mapstructure:"reference_income" json:"reference_income"`
}

// DefaultEconomicConfig returns the overlay defaults.
func DefaultEconomicConfig() EconomicConfig {
	return EconomicConfig{
		IncomeFloor:     DefaultIncomeFloor,
		IncomeCeiling:   DefaultIncomeCeiling,
		ReferenceIncome: DefaultReferenceIncome,
	}
}

// Validate checks the band ordering.
func (c EconomicConfig) Validate() error {
	if c.IncomeFloor < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "income floor must be non-negative")
	}
	if c.IncomeCeiling <= c.IncomeFloor {
		return errors.New(errors.ErrCodeConfigInvalid, "income ceiling must exceed income floor").
			WithDetailf("floor=%g ceiling=%g", c.IncomeFloor, c.IncomeCeiling)
	}
	if c.ReferenceIncome <= 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "reference income must exceed 1")
	}
	return nil
}

// LogFactor is log10(income+1) / log10(reference).  Missing or negative
// income counts as 0.
func (c EconomicConfig) LogFactor(income float64) float64 {
	if income < 0 || math.IsNaN(income) {
		income = 0
	}
	return math.Log10(income+1) / math.Log10(c.ReferenceIncome)
}

// SolvencyCoefficient returns penalty when income < floor and 1 otherwise.
// An income exactly at the floor is not penalized.
func SolvencyCoefficient(income, floor, penalty float64) float64 {
	if income < floor {
		return penalty
	}
	return 1
}

// LandCostCoefficient returns ceiling/income when income > ceiling and 1
// otherwise.
func LandCostCoefficient(income, ceiling float64) float64 {
	if income > ceiling {
		return ceiling / income
	}
	return 1
}

// Multiplier is the net economic multiplier of a unit under the given
// income-penalty coefficient.
func (c EconomicConfig) Multiplier(income, penalty float64) float64 {
	return c.LogFactor(income) *
		SolvencyCoefficient(income, c.IncomeFloor, penalty) *
		LandCostCoefficient(income, c.IncomeCeiling)
}
