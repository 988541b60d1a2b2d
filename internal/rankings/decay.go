package rankings

// applyDecay runs the per-round inactivity decay before a round is rated.
// Players participating in the round get their inactivity counter reset;
// everyone else is aged one round, and from the InactivityThresholdRounds-th
// consecutive absence on, sigma inflates by the configured step per round,
// capped at the starting sigma. Mu never moves.
//
// A returning player therefore carries a wider uncertainty band and a single
// game moves them further.
func (c *Controller) applyDecay(m RatingMap, participants map[string]bool) {
	for id, rs := range m {
		if participants[id] {
			rs.Inactive = 0
			continue
		}
		rs.Inactive++
		if rs.Inactive >= c.cfg.InactivityThresholdRounds {
			sigma := rs.Rating.Sigma + c.cfg.InactivitySigmaInflationPerRound
			if sigma > c.cfg.InactivitySigmaCap {
				sigma = c.cfg.InactivitySigmaCap
			}
			rs.Rating.Sigma = sigma
		}
	}
}
