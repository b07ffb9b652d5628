// Package census turns per-section age/sex counts into the row-normalized
// population matrix P and carries the per-unit attributes (location, income)
// that the scoring and clustering stages consume.
package census

import (
	"github.com/paulmach/orb"
)

// RawCount is one population-source row after label normalization.
type RawCount struct {
	UnitID   string
	Sex      string
	AgeRange string
	Count    float64
}

// Attribute carries the optional per-unit location and income.  Nil
// pointers mean "missing".
type Attribute struct {
	UnitID    string
	Latitude  *float64
	Longitude *float64
	Income    *float64
}

// Unit is one geographic unit retained in the population matrix.
type Unit struct {
	ID string
	// Total is the unit's total population.
	Total float64
	// P is the row-normalized probability vector in bucket catalog order.
	P []float64

	Location    orb.Point
	HasLocation bool

	// Income is the mean household income; 0 when missing.
	Income    float64
	HasIncome bool
}

// SliceMass sums P over the given bucket indices.
func (u *Unit) SliceMass(indices []int) float64 {
	s := 0.0
	for _, i := range indices {
		s += u.P[i]
	}
	return s
}

// SlicePopulation is the absolute head-count of the slice: Total × SliceMass.
func (u *Unit) SlicePopulation(indices []int) float64 {
	return u.Total * u.SliceMass(indices)
}

// Lat returns the unit's latitude.
func (u *Unit) Lat() float64 { return u.Location.Lat() }

// Lon returns the unit's longitude.
func (u *Unit) Lon() float64 { return u.Location.Lon() }
