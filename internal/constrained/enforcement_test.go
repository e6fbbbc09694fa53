package constrained

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnforcementPenalties(t *testing.T) {
	tests := []struct {
		e        Enforcement
		d        float64
		value    float64
		gradient float64
	}{
		{LinearPenalty, 3, 3, 1},
		{QuadraticPenalty, 3, 9, 6},
		{InverseBarrier, -2, 0.5, 0.25},
		{LogBarrier, -2, -math.Log(2), 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.e.String(), func(t *testing.T) {
			assert.InDelta(t, tt.value, tt.e.PenaltyValue(tt.d), 1e-15)
			assert.InDelta(t, tt.gradient, tt.e.PenaltyGradient(tt.d), 1e-15)
		})
	}
}

func TestBarrierOutsideFeasibleRegion(t *testing.T) {
	for _, e := range []Enforcement{InverseBarrier, LogBarrier} {
		assert.True(t, math.IsNaN(e.PenaltyValue(0)), e.String())
		assert.True(t, math.IsNaN(e.PenaltyValue(1)), e.String())
		assert.True(t, math.IsNaN(e.PenaltyGradient(1)), e.String())
	}
}

func TestNextPenaltyFactor(t *testing.T) {
	assert.Equal(t, 100.0, QuadraticPenalty.NextPenaltyFactor(1, 100))
	assert.Equal(t, 100.0, LinearPenalty.NextPenaltyFactor(1, 100))
	assert.Equal(t, 0.01, InverseBarrier.NextPenaltyFactor(1, 100))
	assert.Equal(t, 0.01, LogBarrier.NextPenaltyFactor(1, 100))
}

func TestParseEnforcement(t *testing.T) {
	for _, e := range []Enforcement{QuadraticPenalty, LinearPenalty, InverseBarrier, LogBarrier} {
		parsed, err := ParseEnforcement(e.String())
		require.NoError(t, err)
		assert.Equal(t, e, parsed)
	}

	parsed, err := ParseEnforcement("Log-Barrier")
	require.NoError(t, err)
	assert.Equal(t, LogBarrier, parsed)

	_, err = ParseEnforcement("cubic")
	assert.Error(t, err)
	assert.Equal(t, "Enforcement(9)", Enforcement(9).String())
}
