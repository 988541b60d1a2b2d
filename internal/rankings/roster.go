package rankings

import (
	"context"
	"errors"
	"fmt"

	"github.com/joshkautz/winter-league-rankings/internal/model"
	"github.com/joshkautz/winter-league-rankings/internal/trueskill"
)

// resolveRoster returns the rating states for a team's roster, in roster
// order, seeding any player not yet in the map at the starting rating.
//
// A nil teamID or a team id that resolves to nothing yields an empty roster:
// the game still counts but that side contributes no rating movement. The
// returned warning (if any) is recorded on the calculation state.
func (c *Controller) resolveRoster(ctx context.Context, m RatingMap, teamID *string) ([]*RatingState, string, error) {
	if teamID == nil {
		return nil, "", nil
	}

	team, err := c.store.LoadTeam(ctx, *teamID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Sprintf("team %s not found; treated as empty roster", *teamID), nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load team %s: %w", *teamID, err)
	}

	states := make([]*RatingState, 0, len(team.Roster))
	for _, entry := range team.Roster {
		rs, ok := m[entry.PlayerID]
		if !ok {
			name, err := c.store.LoadPlayerName(ctx, entry.PlayerID)
			if errors.Is(err, ErrNotFound) {
				name = entry.PlayerID
			} else if err != nil {
				return nil, "", fmt.Errorf("load player %s: %w", entry.PlayerID, err)
			}
			rs = m.Seed(entry.PlayerID, name, c.params)
		}
		states = append(states, rs)
	}
	return states, "", nil
}

// ratingsOf projects states into kernel inputs using the captured pre-round
// ratings, so simultaneous games all see the same starting point.
func ratingsOf(states []*RatingState, preRound map[string]trueskill.Rating) []trueskill.Rating {
	out := make([]trueskill.Rating, len(states))
	for i, rs := range states {
		out[i] = preRound[rs.PlayerID]
	}
	return out
}

// gameRosters holds one game's resolved sides.
type gameRosters struct {
	game model.Game
	home []*RatingState
	away []*RatingState
}
