package viability

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/scoring"
	"github.com/turtacn/lsoma/internal/domain/spatial"
)

func fixture() ([]scoring.UnitScore, spatial.Result) {
	units := []scoring.UnitScore{
		{UnitID: "a", Income: 40000, Composite: 0.9, TargetPopulation: 1500, Location: orb.Point{-3.70, 40.40}, HasLocation: true},
		{UnitID: "b", Income: 50000, Composite: 0.7, TargetPopulation: 1500, Location: orb.Point{-3.72, 40.42}, HasLocation: true},
		{UnitID: "c", Income: 30000, Composite: 0.5, TargetPopulation: 1000, Location: orb.Point{-3.00, 41.00}, HasLocation: true},
		{UnitID: "d", Income: 70000, Composite: 0.3, TargetPopulation: 500, Location: orb.Point{-3.02, 41.02}, HasLocation: true},
	}
	res := spatial.Result{
		Labels:   []int{0, 0, 1, 1},
		Clusters: [][]int{{0, 1}, {2, 3}},
	}
	return units, res
}

func TestClassifier_Aggregate(t *testing.T) {
	c, err := NewClassifier(DefaultBedsPerFacility)
	require.NoError(t, err)

	units, res := fixture()
	clusters := c.Aggregate(units, res, params.Prime())
	require.Len(t, clusters, 2)

	first := clusters[0]
	assert.Equal(t, []string{"a", "b"}, first.Members)
	assert.Equal(t, 2, first.Count())
	assert.InDelta(t, 3000, first.TargetPopulation, 1e-9)
	assert.InDelta(t, 45000, first.MeanIncome, 1e-9)
	assert.InDelta(t, 0.8, first.MeanScore, 1e-9)
	assert.InDelta(t, -3.71, first.Centroid.Lon(), 1e-9)
	assert.InDelta(t, 40.41, first.Centroid.Lat(), 1e-9)
	assert.InDelta(t, 90, first.Beds, 1e-9)
	assert.True(t, first.Viable)

	second := clusters[1]
	assert.InDelta(t, 45, second.Beds, 1e-9)
	assert.False(t, second.Viable)

	sum := c.Summarize(clusters)
	assert.Equal(t, 0, sum.Sites)
	assert.Equal(t, 1, sum.ViableClusters)
	assert.Equal(t, 1, sum.SubCritical)
	assert.InDelta(t, 90, sum.TotalBeds, 1e-9)
	assert.InDelta(t, 45, sum.SubCriticalBeds, 1e-9)
	assert.Equal(t, []Cluster{second}, SubCritical(clusters))
	assert.InDelta(t, 90, sum.MeanBedsPerViable(), 1e-9)
}

func TestBeds_MonotoneInShare(t *testing.T) {
	c, err := NewClassifier(DefaultBedsPerFacility)
	require.NoError(t, err)
	units, res := fixture()

	prevBeds, prevViable := -1.0, -1
	for share := 0.01; share <= 0.06+1e-12; share += 0.002 {
		state := params.Prime().With(params.Share, share)
		sum := c.Summarize(c.Aggregate(units, res, state))
		total := sum.TotalBeds + sum.SubCriticalBeds
		assert.GreaterOrEqual(t, total, prevBeds)
		assert.GreaterOrEqual(t, sum.ViableClusters, prevViable)
		prevBeds, prevViable = total, sum.ViableClusters
	}
}

func TestViabilityBoundary(t *testing.T) {
	assert.True(t, IsViable(85, 85))
	assert.False(t, IsViable(84.999, 85))
}

func TestSites(t *testing.T) {
	assert.Equal(t, 0, Sites(0, 100))
	assert.Equal(t, 0, Sites(99.9, 100))
	assert.Equal(t, 1, Sites(100, 100))
	assert.Equal(t, 12, Sites(1299, 100))
}

func TestNewClassifier_Invalid(t *testing.T) {
	_, err := NewClassifier(0)
	assert.Error(t, err)
}

func TestSummary_MeanBedsWithoutViable(t *testing.T) {
	assert.Equal(t, 0.0, Summary{}.MeanBedsPerViable())
}
