// Package trueskill implements the two-team TrueSkill rating update used by
// the rankings rebuild. The update is pure: the same inputs always produce
// bit-identical outputs, which keeps rebuilds auditable and tests exact.
package trueskill

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Params are the rating system constants. Zero values are never valid; use
// DefaultParams or populate from config.
type Params struct {
	Mu0             float64 // starting skill mean
	Sigma0          float64 // starting skill uncertainty
	Beta            float64 // per-game performance variance
	Tau             float64 // additive dynamics factor
	DrawProbability float64
}

// DefaultParams returns the standard constants: mu0=25, sigma0=25/3,
// beta=sigma0/2, tau=sigma0/100, draw probability 0.10.
func DefaultParams() Params {
	sigma0 := 25.0 / 3.0
	return Params{
		Mu0:             25.0,
		Sigma0:          sigma0,
		Beta:            sigma0 / 2.0,
		Tau:             sigma0 / 100.0,
		DrawProbability: 0.10,
	}
}

// Rating is one player's skill estimate.
type Rating struct {
	Mu    float64
	Sigma float64
}

// NewRating returns the starting rating for an unseen player.
func (p Params) NewRating() Rating {
	return Rating{Mu: p.Mu0, Sigma: p.Sigma0}
}

// Ordinal returns the conservative display rating mu - 3*sigma.
func (r Rating) Ordinal() float64 {
	return r.Mu - 3*r.Sigma
}

// Outcome is a game result from the home side's perspective.
type Outcome int

const (
	HomeWin Outcome = iota
	AwayWin
	Draw
)

// OutcomeFromScores maps raw scores to an outcome. Higher score wins; equal
// scores draw.
func OutcomeFromScores(homeScore, awayScore int) Outcome {
	switch {
	case homeScore > awayScore:
		return HomeWin
	case awayScore > homeScore:
		return AwayWin
	default:
		return Draw
	}
}

var unitNormal = distuv.UnitNormal

// drawMargin converts the configured draw probability into the performance
// margin inside which a game counts as a draw.
func (p Params) drawMargin(totalPlayers int) float64 {
	return unitNormal.Quantile((p.DrawProbability+1)/2) *
		math.Sqrt(float64(totalPlayers)) * p.Beta
}

// vWin and wWin are the additive and multiplicative truncated-Gaussian
// correction terms for a decisive outcome.
func vWin(t, eps float64) float64 {
	denom := unitNormal.CDF(t - eps)
	if denom < 1e-300 {
		return eps - t
	}
	return unitNormal.Prob(t-eps) / denom
}

func wWin(t, eps float64) float64 {
	v := vWin(t, eps)
	return v * (v + t - eps)
}

// vDraw and wDraw are the correction terms for a drawn outcome, symmetric in
// the margin around zero.
func vDraw(t, eps float64) float64 {
	denom := unitNormal.CDF(eps-t) - unitNormal.CDF(-eps-t)
	if denom < 1e-300 {
		if t < 0 {
			return -t - eps
		}
		return -t + eps
	}
	return (unitNormal.Prob(-eps-t) - unitNormal.Prob(eps-t)) / denom
}

func wDraw(t, eps float64) float64 {
	denom := unitNormal.CDF(eps-t) - unitNormal.CDF(-eps-t)
	if denom < 1e-300 {
		return 1.0
	}
	v := vDraw(t, eps)
	return v*v + ((eps-t)*unitNormal.Prob(eps-t)+(eps+t)*unitNormal.Prob(-eps-t))/denom
}

// Update applies one game to both rosters and returns the new ratings in
// roster order. weight scales both the mu delta and the sigma shrinkage, so
// weighted (playoff) games move ratings further and reduce uncertainty more.
// The inputs are not mutated.
func (p Params) Update(home, away []Rating, outcome Outcome, weight float64) (newHome, newAway []Rating) {
	if len(home) == 0 || len(away) == 0 {
		// A missing roster contributes no performance signal; nothing moves.
		return append([]Rating(nil), home...), append([]Rating(nil), away...)
	}

	// Team performance distributions, with the dynamics factor folded into
	// each player's variance before the update.
	var muHome, varHome float64
	for _, r := range home {
		muHome += r.Mu
		varHome += r.Sigma*r.Sigma + p.Tau*p.Tau
	}
	var muAway, varAway float64
	for _, r := range away {
		muAway += r.Mu
		varAway += r.Sigma*r.Sigma + p.Tau*p.Tau
	}

	n := len(home) + len(away)
	c := math.Sqrt(varHome + varAway + float64(n)*p.Beta*p.Beta)
	eps := p.drawMargin(n) / c

	// t is the scaled performance difference winner-minus-loser; for a draw
	// it stays home-minus-away and each side applies its own sign.
	var v, w, homeSign float64
	switch outcome {
	case HomeWin:
		t := (muHome - muAway) / c
		v, w, homeSign = vWin(t, eps), wWin(t, eps), 1
	case AwayWin:
		t := (muAway - muHome) / c
		v, w, homeSign = vWin(t, eps), wWin(t, eps), -1
	case Draw:
		t := (muHome - muAway) / c
		v, w, homeSign = vDraw(t, eps), wDraw(t, eps), 1
	}

	update := func(rs []Rating, sign float64) []Rating {
		out := make([]Rating, len(rs))
		for i, r := range rs {
			variance := r.Sigma*r.Sigma + p.Tau*p.Tau
			muDelta := sign * (variance / c) * v
			shrink := 1 - weight*(variance/(c*c))*w
			if shrink < 1e-6 {
				shrink = 1e-6
			}
			out[i] = Rating{
				Mu:    r.Mu + weight*muDelta,
				Sigma: math.Sqrt(variance * shrink),
			}
		}
		return out
	}

	return update(home, homeSign), update(away, -homeSign)
}
