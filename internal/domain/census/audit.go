package census

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/turtacn/lsoma/internal/domain/demography"
)

// AuditReport is the structural check of a population matrix.
type AuditReport struct {
	Retained        int     `json:"retained"`
	Excluded        int     `json:"excluded"`
	Columns         int     `json:"columns"`
	ColumnsAligned  bool    `json:"columns_aligned"`
	MaxRowDeviation float64 `json:"max_row_deviation"`
	RowsWithinTol   bool    `json:"rows_within_tolerance"`
	MeanPopulation  float64 `json:"mean_population"`
	TotalPopulation float64 `json:"total_population"`
}

// Audit checks that every row has one entry per catalog bucket and sums to 1
// within demography.SumTolerance.
func (m *Matrix) Audit() AuditReport {
	rep := AuditReport{
		Retained:       len(m.units),
		Excluded:       len(m.excluded),
		Columns:        demography.NumBuckets,
		ColumnsAligned: true,
	}
	totals := make([]float64, len(m.units))
	for i, u := range m.units {
		if len(u.P) != demography.NumBuckets {
			rep.ColumnsAligned = false
			continue
		}
		dev := math.Abs(floats.Sum(u.P) - 1)
		if dev > rep.MaxRowDeviation {
			rep.MaxRowDeviation = dev
		}
		totals[i] = u.Total
	}
	rep.RowsWithinTol = rep.MaxRowDeviation <= demography.SumTolerance
	if len(totals) > 0 {
		rep.MeanPopulation = stat.Mean(totals, nil)
		rep.TotalPopulation = floats.Sum(totals)
	}
	return rep
}
