package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/turtacn/lsoma/internal/domain/census"
	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/internal/domain/scoring"
)

// TargetBucket is the single bucket the fixture target vector weighs.
const TargetBucket = "M_85-89"

// Fixture constants.
const (
	FixturePopulation = 2000.0
	FixtureIncome     = 50000.0
)

// GroupA and GroupB return the IDs of the two located groups.
func GroupA() []string { return groupIDs("2807901") }
func GroupB() []string { return groupIDs("2807902") }

func groupIDs(prefix string) []string {
	out := make([]string, 6)
	for i := range out {
		out[i] = fmt.Sprintf("%s%03d", prefix, i+1)
	}
	return out
}

// TwoClusterCensus returns a synthetic universe of 24 units:
//
//   - group A: six located units about 85 m apart, 80–85% of their mass in
//     TargetBucket;
//   - group B: six located units 10 km north of A, 5% in TargetBucket;
//   - twelve unlocated decoys with no mass in TargetBucket and no income.
//
// Every unit has FixturePopulation inhabitants; located units earn
// FixtureIncome.
func TwoClusterCensus() ([]census.RawCount, []census.Attribute) {
	var rows []census.RawCount
	var attrs []census.Attribute
	add := func(id string, counts map[string]float64) {
		for key, share := range counts {
			i, _ := demography.IndexOf(key)
			b := demography.BucketOrder()[i]
			rows = append(rows, census.RawCount{UnitID: id, Sex: string(b.Sex), AgeRange: b.AgeRange, Count: share * FixturePopulation})
		}
	}
	located := func(id string, lat, lon float64) {
		income := FixtureIncome
		attrs = append(attrs, census.Attribute{UnitID: id, Latitude: &lat, Longitude: &lon, Income: &income})
	}

	for i, id := range GroupA() {
		mass := 0.80 + 0.01*float64(i)
		add(id, map[string]float64{TargetBucket: mass, "M_50-54": 1 - mass})
		located(id, 40.4168, -3.7038+0.001*float64(i))
	}
	for i, id := range GroupB() {
		add(id, map[string]float64{TargetBucket: 0.05, "M_50-54": 0.45, "H_20-24": 0.50})
		located(id, 40.5068+0.001*float64(i), -3.7038)
	}
	for i := 0; i < 12; i++ {
		add(fmt.Sprintf("99000%05d", i+1), map[string]float64{"H_20-24": 1})
	}
	return rows, attrs
}

// OneHotTarget returns a target vector with all mass on key.
func OneHotTarget(tb testing.TB, key string) *demography.TargetVector {
	tb.Helper()
	i, ok := demography.IndexOf(key)
	require.True(tb, ok, key)
	probs := make([]float64, demography.NumBuckets)
	probs[i] = 1
	q, err := demography.NewTargetVector(probs)
	require.NoError(tb, err)
	return q
}

// TwoClusterMatrix builds the population matrix of TwoClusterCensus with
// attributes attached.
func TwoClusterMatrix(tb testing.TB) *census.Matrix {
	tb.Helper()
	rows, attrs := TwoClusterCensus()
	m, err := census.NewBuilder(census.DefaultMinPopulation, nil).Build(rows)
	require.NoError(tb, err)
	m.Attach(attrs, nil)
	return m
}

// TwoClusterTable scores TwoClusterMatrix against a one-hot target on
// TargetBucket with the default scoring config.
func TwoClusterTable(tb testing.TB) *scoring.Table {
	tb.Helper()
	s, err := scoring.NewScorer(scoring.DefaultConfig(), OneHotTarget(tb, TargetBucket), nil)
	require.NoError(tb, err)
	table, err := s.Prepare(TwoClusterMatrix(tb))
	require.NoError(tb, err)
	return table
}
