package demography

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lsoma/pkg/errors"
)

func TestBucketOrder_Catalog(t *testing.T) {
	order := BucketOrder()
	require.Len(t, order, 42)
	assert.Equal(t, "H_0-4", order[0].Key())
	assert.Equal(t, "H_100+", order[20].Key())
	assert.Equal(t, "M_0-4", order[21].Key())
	assert.Equal(t, "M_100+", order[41].Key())
	for i, b := range order {
		assert.Equal(t, i, b.Index)
	}
	assert.Equal(t, 100, order[41].MinAge)
	assert.Equal(t, 80, order[37].MinAge)
}

func TestAlign(t *testing.T) {
	idx, err := Align([]string{"M_80-84", "H_0-4"})
	require.NoError(t, err)
	assert.Equal(t, []int{37, 0}, idx)

	_, err = Align([]string{"M_80-84", "X_105+"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchemaMismatch))
}

func TestSliceIndices(t *testing.T) {
	caregivers := SliceIndices(Female, 45, 60)
	keys := make([]string, len(caregivers))
	for i, j := range caregivers {
		keys[i] = catalog[j].Key()
	}
	assert.Equal(t, []string{"M_45-49", "M_50-54", "M_55-59", "M_60-64"}, keys)

	dependents := SliceIndices(Female, 80, -1)
	assert.Len(t, dependents, 5)
	assert.Equal(t, "M_100+", catalog[dependents[4]].Key())
}

func TestNormalizeAgeRange(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"De 0 a 4 años", "0-4"},
		{"De 80 a 84 años", "80-84"},
		{"95-99", "95-99"},
		{"100 y más", "100+"},
		{"100 y más años", "100+"},
		{"100+", "100+"},
	}
	for _, tt := range tests {
		got, err := NormalizeAgeRange(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}

	_, err := NormalizeAgeRange("Todas las edades")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownAgeRange))
	_, err = NormalizeAgeRange("De 3 a 7 años")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnknownAgeRange))
}

func TestParseSex(t *testing.T) {
	s, ok := ParseSex("Hombres")
	assert.True(t, ok)
	assert.Equal(t, Male, s)
	s, ok = ParseSex(" mujeres ")
	assert.True(t, ok)
	assert.Equal(t, Female, s)
	_, ok = ParseSex("Total")
	assert.False(t, ok)
}

func TestBuildTargetVector_SumsToOne(t *testing.T) {
	tables := []WeightTable{
		DefaultWeights(),
		{Bands: []AgeBand{{MinAge: 0, Weight: 1}}, FemaleMultiplier: 1},
		{Bands: []AgeBand{{MinAge: 0, Weight: 0}, {MinAge: 90, Weight: 7}}, FemaleMultiplier: 2.5},
	}
	for _, w := range tables {
		q, err := BuildTargetVector(w)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, q.Sum(), SumTolerance)
		assert.Equal(t, 42, q.Len())
		for i := 0; i < q.Len(); i++ {
			assert.GreaterOrEqual(t, q.At(i), 0.0)
		}
	}
}

func TestBuildTargetVector_DefaultShape(t *testing.T) {
	q, err := BuildTargetVector(DefaultWeights())
	require.NoError(t, err)

	m85, _ := IndexOf("M_85-89")
	h85, _ := IndexOf("H_85-89")
	m0, _ := IndexOf("M_0-4")
	assert.InDelta(t, 1.3, q.At(m85)/q.At(h85), 1e-12)
	assert.InDelta(t, 5.0/0.15, q.At(m85)/q.At(m0), 1e-9)
}

func TestBuildTargetVector_Invalid(t *testing.T) {
	_, err := BuildTargetVector(WeightTable{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedVector))

	_, err = BuildTargetVector(WeightTable{Bands: []AgeBand{{MinAge: 0, Weight: 0}}, FemaleMultiplier: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedVector))

	_, err = BuildTargetVector(WeightTable{Bands: []AgeBand{{MinAge: 50, Weight: 1}, {MinAge: 10, Weight: 1}}, FemaleMultiplier: 1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedVector))
}

func TestNewTargetVector_Validation(t *testing.T) {
	_, err := NewTargetVector([]float64{1})
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchemaMismatch))

	bad := make([]float64, 42)
	bad[0] = 0.5
	_, err = NewTargetVector(bad)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedVector))

	neg := make([]float64, 42)
	neg[0], neg[1] = 1.5, -0.5
	_, err = NewTargetVector(neg)
	assert.True(t, errors.IsCode(err, errors.ErrCodeMalformedVector))
}

func TestTargetRows_RoundTrip(t *testing.T) {
	q, err := BuildTargetVector(DefaultWeights())
	require.NoError(t, err)

	rows := q.Rows()
	require.Len(t, rows, 21)
	assert.Equal(t, "0-4", rows[0].AgeRange)
	assert.InDelta(t, 0.15*1.3, rows[0].WeightFemale, 1e-12)

	back, err := TargetFromRows(rows)
	require.NoError(t, err)
	assert.InDeltaSlice(t, q.Probs(), back.Probs(), 1e-12)
}

func TestTargetFromRows_Incomplete(t *testing.T) {
	q, err := BuildTargetVector(DefaultWeights())
	require.NoError(t, err)
	rows := q.Rows()[:20]

	_, err = TargetFromRows(rows)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchemaMismatch))

	dup := append(q.Rows(), q.Rows()[3])
	_, err = TargetFromRows(dup)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSchemaMismatch))
}
