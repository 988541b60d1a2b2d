package rankings

import (
	"context"
	"sync"

	"github.com/joshkautz/winter-league-rankings/internal/model"
	"github.com/joshkautz/winter-league-rankings/internal/trueskill"
)

// playerDelta is one game's contribution to one player's rating.
type playerDelta struct {
	playerID string
	dMu      float64
	dSigma   float64
	seasonID string
}

// processRound rates one round against the map and emits its snapshot.
// Returned warnings describe non-fatal document gaps (missing teams).
//
// Within the round, games run in parallel but every kernel invocation reads
// the captured pre-round ratings, and the per-game deltas are merged in game
// order afterwards. The post-round map is therefore independent of
// scheduling, which is what makes the parallelism safe and rebuilds
// bit-reproducible.
func (c *Controller) processRound(ctx context.Context, m RatingMap, round Round, calcID string) ([]string, error) {
	// Resolve every roster first; this is also where new players are seeded,
	// so it must happen before the pre-round ratings are captured.
	var warnings []string
	rosters := make([]gameRosters, 0, len(round.Games))
	for _, g := range round.Games {
		home, warn, err := c.resolveRoster(ctx, m, g.HomeTeamID)
		if err != nil {
			return warnings, err
		}
		if warn != "" {
			warnings = append(warnings, warn)
		}
		away, warn, err := c.resolveRoster(ctx, m, g.AwayTeamID)
		if err != nil {
			return warnings, err
		}
		if warn != "" {
			warnings = append(warnings, warn)
		}
		rosters = append(rosters, gameRosters{game: g, home: home, away: away})
	}

	participants := make(map[string]bool)
	for _, gr := range rosters {
		for _, rs := range gr.home {
			participants[rs.PlayerID] = true
		}
		for _, rs := range gr.away {
			participants[rs.PlayerID] = true
		}
	}

	c.applyDecay(m, participants)

	// Pre-round ratings for every known player: kernel input for all games
	// of the round, and the source of previousRating on the snapshot.
	preRound := make(map[string]trueskill.Rating, len(m))
	for id, rs := range m {
		preRound[id] = rs.Rating
	}

	deltas := c.rateGames(rosters, preRound)

	// Merge in game order. A player on two rosters in the same timeslot gets
	// both deltas, each computed from the same pre-round rating.
	for _, gameDeltas := range deltas {
		for _, d := range gameDeltas {
			rs := m[d.playerID]
			rs.Rating.Mu += d.dMu
			rs.Rating.Sigma += d.dSigma
			rs.TotalGames++
			rs.Seasons[d.seasonID] = struct{}{}
			rs.LastSeason = d.seasonID
		}
	}

	snap := c.buildSnapshot(m, preRound, round, calcID)
	for id := range participants {
		c.lastChange[id] = m[id].Rating.Mu - preRound[id].Mu
	}

	if err := c.store.WriteRankingSnapshot(ctx, snap); err != nil {
		return warnings, err
	}
	return warnings, nil
}

// rateGames runs the kernel across the round's games with a bounded worker
// pool. Results are collected per game index so the merge order never
// depends on scheduling.
func (c *Controller) rateGames(rosters []gameRosters, preRound map[string]trueskill.Rating) [][]playerDelta {
	deltas := make([][]playerDelta, len(rosters))

	workers := c.cfg.MaxConcurrentGamesPerRound
	if workers < 1 {
		workers = 1
	}
	if workers > len(rosters) {
		workers = len(rosters)
	}

	ch := make(chan int, len(rosters))
	for i := range rosters {
		ch <- i
	}
	close(ch)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ch {
				deltas[i] = c.rateGame(rosters[i], preRound)
			}
		}()
	}
	wg.Wait()

	return deltas
}

// rateGame applies the kernel to one game and returns per-player deltas
// relative to the pre-round ratings.
func (c *Controller) rateGame(gr gameRosters, preRound map[string]trueskill.Rating) []playerDelta {
	g := gr.game
	outcome := trueskill.OutcomeFromScores(*g.HomeScore, *g.AwayScore)
	weight := g.Weight(c.cfg.PlayoffWeight)

	newHome, newAway := c.params.Update(
		ratingsOf(gr.home, preRound),
		ratingsOf(gr.away, preRound),
		outcome, weight)

	out := make([]playerDelta, 0, len(gr.home)+len(gr.away))
	for i, rs := range gr.home {
		pre := preRound[rs.PlayerID]
		out = append(out, playerDelta{
			playerID: rs.PlayerID,
			dMu:      newHome[i].Mu - pre.Mu,
			dSigma:   newHome[i].Sigma - pre.Sigma,
			seasonID: g.SeasonID,
		})
	}
	for i, rs := range gr.away {
		pre := preRound[rs.PlayerID]
		out = append(out, playerDelta{
			playerID: rs.PlayerID,
			dMu:      newAway[i].Mu - pre.Mu,
			dSigma:   newAway[i].Sigma - pre.Sigma,
			seasonID: g.SeasonID,
		})
	}
	return out
}

// buildSnapshot projects the post-round map into a RankingSnapshot. Every
// player seen so far appears, so the history UI can render a full
// leaderboard at any point in time and the last snapshot replays the final
// rankings.
func (c *Controller) buildSnapshot(m RatingMap, preRound map[string]trueskill.Rating, round Round, calcID string) model.RankingSnapshot {
	ids := m.SortedIDs()
	entries := make([]model.SnapshotEntry, 0, len(ids))
	for rank, id := range ids {
		rs := m[id]
		prev := preRound[id].Mu
		change := rs.Rating.Mu - prev
		entries = append(entries, model.SnapshotEntry{
			PlayerID:       rs.PlayerID,
			PlayerName:     rs.PlayerName,
			Rating:         rs.Rating.Mu,
			Rank:           rank + 1,
			TotalGames:     rs.TotalGames,
			TotalSeasons:   len(rs.Seasons),
			Change:         &change,
			PreviousRating: &prev,
		})
	}

	gameIDs := make([]string, 0, len(round.Games))
	for _, g := range round.Games {
		gameIDs = append(gameIDs, g.ID)
	}

	start := round.Games[0].Date
	return model.RankingSnapshot{
		DocID:        round.SnapshotDocID(),
		SeasonID:     round.SeasonID(),
		SnapshotDate: start,
		Entries:      entries,
		RoundMeta: model.RoundMeta{
			RoundID:        round.ID,
			RoundStartTime: start,
			GameCount:      len(round.Games),
			GameIDs:        gameIDs,
			CalculationID:  calcID,
		},
	}
}
