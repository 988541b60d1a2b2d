package rankings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDecayResetsParticipants(t *testing.T) {
	c := NewController(nil, testRatingConfig(), testLogger())
	m := make(RatingMap)
	rs := m.Seed("p1", "P One", c.params)
	rs.Inactive = 2

	c.applyDecay(m, map[string]bool{"p1": true})

	assert.Equal(t, 0, rs.Inactive)
	assert.Equal(t, c.params.Sigma0, rs.Rating.Sigma)
}

func TestApplyDecayInflatesFromThresholdOn(t *testing.T) {
	cfg := testRatingConfig()
	c := NewController(nil, cfg, testLogger())
	m := make(RatingMap)
	rs := m.Seed("p1", "P One", c.params)
	rs.Rating.Sigma = 4.0
	muBefore := rs.Rating.Mu

	none := map[string]bool{}

	// Threshold is 3: absences one and two leave sigma alone.
	c.applyDecay(m, none)
	c.applyDecay(m, none)
	assert.Equal(t, 2, rs.Inactive)
	assert.Equal(t, 4.0, rs.Rating.Sigma)

	// Third and fourth consecutive absences each add one inflation step.
	c.applyDecay(m, none)
	assert.InDelta(t, 4.0+cfg.InactivitySigmaInflationPerRound, rs.Rating.Sigma, 1e-12)
	c.applyDecay(m, none)
	assert.InDelta(t, 4.0+2*cfg.InactivitySigmaInflationPerRound, rs.Rating.Sigma, 1e-12)

	assert.Equal(t, muBefore, rs.Rating.Mu, "decay never moves mu")
}

func TestApplyDecaySigmaCapped(t *testing.T) {
	cfg := testRatingConfig()
	c := NewController(nil, cfg, testLogger())
	m := make(RatingMap)
	rs := m.Seed("p1", "P One", c.params)
	rs.Rating.Sigma = cfg.InactivitySigmaCap - cfg.InactivitySigmaInflationPerRound/2

	none := map[string]bool{}
	for i := 0; i < cfg.InactivityThresholdRounds+5; i++ {
		c.applyDecay(m, none)
	}

	assert.Equal(t, cfg.InactivitySigmaCap, rs.Rating.Sigma,
		"inflation stops at the starting uncertainty")
}

func TestApplyDecayReturnReset(t *testing.T) {
	cfg := testRatingConfig()
	c := NewController(nil, cfg, testLogger())
	m := make(RatingMap)
	rs := m.Seed("p1", "P One", c.params)
	rs.Rating.Sigma = 4.0

	none := map[string]bool{}
	for i := 0; i < cfg.InactivityThresholdRounds; i++ {
		c.applyDecay(m, none)
	}
	inflated := rs.Rating.Sigma
	require.Greater(t, inflated, 4.0)

	// Playing a round resets the counter but keeps the inflated sigma: the
	// uncertainty is real, only the absence streak ended.
	c.applyDecay(m, map[string]bool{"p1": true})
	assert.Equal(t, 0, rs.Inactive)
	assert.Equal(t, inflated, rs.Rating.Sigma)

	// The streak restarts from zero.
	c.applyDecay(m, none)
	assert.Equal(t, 1, rs.Inactive)
	assert.Equal(t, inflated, rs.Rating.Sigma)
}
