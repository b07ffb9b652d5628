// Package viability aggregates demand clusters and classifies them against
// the bed threshold of a Parameter State.
package viability

import (
	"math"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/stat"

	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/scoring"
	"github.com/turtacn/lsoma/internal/domain/spatial"
	"github.com/turtacn/lsoma/pkg/errors"
)

// DefaultBedsPerFacility is the capacity of one standard facility.
const DefaultBedsPerFacility = 100.0

// Cluster is one aggregated demand cluster.
type Cluster struct {
	ID               int
	Members          []string
	TargetPopulation float64
	MeanIncome       float64
	MeanScore        float64
	Centroid         orb.Point
	Beds             float64
	Viable           bool
}

// Count returns the number of member units.
func (c Cluster) Count() int { return len(c.Members) }

// Summary is the headline result of one classification.
type Summary struct {
	Sites           int     `json:"sites"`
	ViableClusters  int     `json:"viable_clusters"`
	TotalBeds       float64 `json:"total_beds"`
	SubCritical     int     `json:"sub_critical_clusters"`
	SubCriticalBeds float64 `json:"sub_critical_beds"`
}

// MeanBedsPerViable returns TotalBeds / ViableClusters, or 0 without any
// viable cluster.
func (s Summary) MeanBedsPerViable() float64 {
	if s.ViableClusters == 0 {
		return 0
	}
	return s.TotalBeds / float64(s.ViableClusters)
}

// Classifier turns a spatial partition into classified clusters.
type Classifier struct {
	bedsPerFacility float64
}

// NewClassifier returns a Classifier.  bedsPerFacility must be positive.
func NewClassifier(bedsPerFacility float64) (*Classifier, error) {
	if !(bedsPerFacility > 0) {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "beds per facility must be positive").
			WithDetailf("beds_per_facility=%g", bedsPerFacility)
	}
	return &Classifier{bedsPerFacility: bedsPerFacility}, nil
}

// Aggregate builds one Cluster per partition group.  units[i] is the unit
// behind point i of the partition.
func (c *Classifier) Aggregate(units []scoring.UnitScore, res spatial.Result, state params.State) []Cluster {
	out := make([]Cluster, len(res.Clusters))
	for k, members := range res.Clusters {
		cl := Cluster{ID: k, Members: make([]string, len(members))}
		incomes := make([]float64, len(members))
		scores := make([]float64, len(members))
		lats := make([]float64, len(members))
		lons := make([]float64, len(members))
		for j, i := range members {
			u := units[i]
			cl.Members[j] = u.UnitID
			cl.TargetPopulation += u.TargetPopulation
			incomes[j] = u.Income
			scores[j] = u.Composite
			lats[j] = u.Location.Lat()
			lons[j] = u.Location.Lon()
		}
		cl.MeanIncome = stat.Mean(incomes, nil)
		cl.MeanScore = stat.Mean(scores, nil)
		cl.Centroid = orb.Point{stat.Mean(lons, nil), stat.Mean(lats, nil)}
		cl.Beds = Beds(cl.TargetPopulation, state.Share)
		cl.Viable = IsViable(cl.Beds, state.MinBeds)
		out[k] = cl
	}
	return out
}

// Summarize totals a set of classified clusters.
func (c *Classifier) Summarize(clusters []Cluster) Summary {
	var s Summary
	for _, cl := range clusters {
		if cl.Viable {
			s.ViableClusters++
			s.TotalBeds += cl.Beds
		} else {
			s.SubCritical++
			s.SubCriticalBeds += cl.Beds
		}
	}
	s.Sites = Sites(s.TotalBeds, c.bedsPerFacility)
	return s
}

// Beds is target × share.
func Beds(target, share float64) float64 {
	return target * share
}

// IsViable reports beds ≥ minBeds.
func IsViable(beds, minBeds float64) bool {
	return beds >= minBeds
}

// Sites is floor(viableBeds / bedsPerFacility).
func Sites(viableBeds, bedsPerFacility float64) int {
	if viableBeds <= 0 {
		return 0
	}
	return int(math.Floor(viableBeds / bedsPerFacility))
}

// Viable returns the clusters that passed the bed threshold.
func Viable(clusters []Cluster) []Cluster {
	var out []Cluster
	for _, cl := range clusters {
		if cl.Viable {
			out = append(out, cl)
		}
	}
	return out
}

// SubCritical returns the clusters that failed the bed threshold.
func SubCritical(clusters []Cluster) []Cluster {
	var out []Cluster
	for _, cl := range clusters {
		if !cl.Viable {
			out = append(out, cl)
		}
	}
	return out
}
