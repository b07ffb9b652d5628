package params

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lsoma/pkg/errors"
)

func TestState_String(t *testing.T) {
	assert.Equal(t, "P85_S3.0%_R0.40_C85", Prime().String())
	s := State{Percentile: 72, Share: 0.048, IncomePenalty: 0.55, MinBeds: 61}
	assert.Equal(t, "P72_S4.8%_R0.55_C61", s.String())
}

func TestState_GetWith(t *testing.T) {
	s := Prime()
	for _, d := range Dimensions() {
		moved := s.With(d, 0.5)
		assert.Equal(t, 0.5, moved.Get(d), d.String())
		assert.NotEqual(t, 0.5, s.Get(d))
	}
}

func TestState_Validate(t *testing.T) {
	assert.NoError(t, Prime().Validate())

	tests := []struct {
		name  string
		state State
	}{
		{"percentile above 100", Prime().With(Percentile, 101)},
		{"zero share", Prime().With(Share, 0)},
		{"penalty above 1", Prime().With(IncomePenalty, 1.2)},
		{"negative beds", Prime().With(MinBeds, -1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			assert.True(t, errors.IsCode(err, errors.ErrCodeParameterOutOfBand), "%v", err)
		})
	}
}

func TestLimits_Validate(t *testing.T) {
	assert.NoError(t, DefaultLimits().Validate(Prime()))

	bad := DefaultLimits()
	bad.Share.Step = 0
	assert.True(t, errors.IsCode(bad.Validate(Prime()), errors.ErrCodeOptimizerLimits))

	bad = DefaultLimits()
	bad.Percentile.Boundary = 90
	assert.True(t, errors.IsCode(bad.Validate(Prime()), errors.ErrCodeOptimizerLimits))

	bad = DefaultLimits()
	bad.IncomePenalty.Boundary = 1.5
	assert.True(t, errors.IsCode(bad.Validate(Prime()), errors.ErrCodeOptimizerLimits))

	bad = DefaultLimits()
	bad.MinBeds.Tier = 0
	assert.Error(t, bad.Validate(Prime()))
}

func TestLimits_StepsToBoundary(t *testing.T) {
	l := DefaultLimits()
	p := Prime()
	assert.Equal(t, 25, l.StepsToBoundary(p, Percentile))
	assert.Equal(t, 15, l.StepsToBoundary(p, Share))
	assert.Equal(t, 6, l.StepsToBoundary(p, IncomePenalty))
	assert.Equal(t, 25, l.StepsToBoundary(p, MinBeds))
	assert.Equal(t, 71, l.TotalSteps(p))
}

func TestLimits_RelaxLandsOnBoundary(t *testing.T) {
	l := DefaultLimits()
	for _, d := range Dimensions() {
		s := Prime()
		n := l.StepsToBoundary(s, d)
		for i := 0; i < n; i++ {
			require.True(t, l.HasHeadroom(s, d))
			s = l.Relax(s, d)
		}
		assert.Equal(t, l.For(d).Boundary, s.Get(d), d.String())
		assert.False(t, l.HasHeadroom(s, d))
		assert.Equal(t, s, l.Relax(s, d))
	}
}

func TestLimits_RelaxOffGrid(t *testing.T) {
	l := DefaultLimits()
	s := Prime().With(Share, 0.059)
	assert.Equal(t, 1, l.StepsToBoundary(s, Share))
	assert.Equal(t, 0.06, l.Relax(s, Share).Share)
}

func TestLimits_HeadroomAndTierOrder(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, []Dimension{Percentile, Share, IncomePenalty, MinBeds}, l.Headroom(Prime()))

	s := Prime().With(Share, 0.06).With(Percentile, 60)
	assert.Equal(t, []Dimension{IncomePenalty, MinBeds}, l.Headroom(s))

	l.MinBeds.Tier = 0
	assert.Equal(t, MinBeds, l.ByTier()[0])
}
