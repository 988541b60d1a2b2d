package rankings

import (
	"sort"

	"github.com/joshkautz/winter-league-rankings/internal/model"
	"github.com/joshkautz/winter-league-rankings/internal/trueskill"
)

// RatingState is the transient per-player state carried through a rebuild.
// It is never persisted directly; the controller projects it into
// PlayerRating documents and snapshot entries.
type RatingState struct {
	PlayerID   string
	PlayerName string
	Rating     trueskill.Rating
	TotalGames int
	Seasons    map[string]struct{}
	LastSeason string
	// Inactive counts consecutive rounds without a game, driving the
	// sigma inflation of the decay operator.
	Inactive int
}

// RatingMap holds every player seen so far in a rebuild.
type RatingMap map[string]*RatingState

// Seed inserts a fresh state at the starting rating. Seeding is the engine's
// only source of new players: a player gets a state the first time a team
// roster containing them plays a completed game.
func (m RatingMap) Seed(playerID, playerName string, params trueskill.Params) *RatingState {
	rs := &RatingState{
		PlayerID:   playerID,
		PlayerName: playerName,
		Rating:     params.NewRating(),
		Seasons:    make(map[string]struct{}),
	}
	m[playerID] = rs
	return rs
}

// SortedIDs returns player ids ordered by rank: conservative rating
// descending, then mu descending, then player id ascending for stability.
func (m RatingMap) SortedIDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m[ids[i]], m[ids[j]]
		ao, bo := a.Rating.Ordinal(), b.Rating.Ordinal()
		if ao != bo {
			return ao > bo
		}
		if a.Rating.Mu != b.Rating.Mu {
			return a.Rating.Mu > b.Rating.Mu
		}
		return a.PlayerID < b.PlayerID
	})
	return ids
}

// ToPlayerRatings projects the map into ranked PlayerRating documents.
// lastChange carries each player's mu delta from the final round they played.
func (m RatingMap) ToPlayerRatings(lastChange map[string]float64, now timeSource) []model.PlayerRating {
	ids := m.SortedIDs()
	out := make([]model.PlayerRating, 0, len(ids))
	for rank, id := range ids {
		rs := m[id]
		pr := model.PlayerRating{
			PlayerID:         rs.PlayerID,
			PlayerName:       rs.PlayerName,
			Mu:               rs.Rating.Mu,
			Sigma:            rs.Rating.Sigma,
			TotalGames:       rs.TotalGames,
			TotalSeasons:     len(rs.Seasons),
			Rank:             rank + 1,
			LastUpdated:      now(),
			LastRatingChange: lastChange[id],
		}
		if rs.LastSeason != "" {
			season := rs.LastSeason
			pr.LastSeasonID = &season
		}
		out = append(out, pr)
	}
	return out
}
