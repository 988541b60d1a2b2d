package rankings

import (
	"sort"
	"strconv"

	"github.com/joshkautz/winter-league-rankings/internal/model"
)

// Round is the maximal set of completed games sharing the same start instant.
// Games within a round are simultaneous and have no defined order.
type Round struct {
	ID    string // start instant as epoch milliseconds
	Games []model.Game
}

// Start returns the shared start instant of the round's games.
func (r Round) Start() int64 {
	return r.Games[0].Date.UnixMilli()
}

// SeasonID returns the season carried in the round's snapshot document id.
// A round can span seasons (two leagues playing the same timeslot); the
// first game's season is used, matching the document id scheme.
func (r Round) SeasonID() string {
	return r.Games[0].SeasonID
}

// SnapshotDocID returns the history document id for this round:
// {roundTimestampMillis}_{seasonId}. Epoch millis are 13 digits for every
// instant the league can schedule, so lexical order over ids equals
// chronological order without a secondary index.
func (r Round) SnapshotDocID() string {
	return r.ID + "_" + r.SeasonID()
}

// GroupRounds partitions completed games into rounds ordered by start instant
// ascending. Non-completed games must already be filtered out by the loader.
// Games within each round keep a stable id order so that downstream
// processing is deterministic.
func GroupRounds(games []model.Game) []Round {
	if len(games) == 0 {
		return nil
	}

	sorted := append([]model.Game(nil), games...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.Before(sorted[j].Date)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var rounds []Round
	for _, g := range sorted {
		n := len(rounds)
		if n > 0 && rounds[n-1].Games[0].Date.Equal(g.Date) {
			rounds[n-1].Games = append(rounds[n-1].Games, g)
			continue
		}
		rounds = append(rounds, Round{
			ID:    strconv.FormatInt(g.Date.UnixMilli(), 10),
			Games: []model.Game{g},
		})
	}
	return rounds
}
