package rankings

import (
	"context"

	"github.com/joshkautz/winter-league-rankings/internal/model"
)

// ErrNotFound is returned by Store loads when a referenced document does not
// exist. The rebuild treats a missing team as an empty roster and records a
// warning instead of failing the run.
var ErrNotFound = model.ErrNotFound

// Store is everything the rebuild needs from the persistence layer. The
// production implementation lives in internal/store; tests substitute an
// in-memory fake.
//
// LoadTeam and LoadPlayerName must memoise: each distinct id is read at most
// once per rebuild. Implementations are expected to be scoped to one run.
type Store interface {
	LoadSeasonsOrdered(ctx context.Context) ([]model.Season, error)

	// LoadCompletedGamesOrdered streams completed games in (date, id)
	// ascending order, invoking fn for each. Implementations page; they
	// must not assume the full game list fits in one round trip.
	LoadCompletedGamesOrdered(ctx context.Context, fn func(model.Game) error) error

	LoadTeam(ctx context.Context, teamID string) (*model.Team, error)
	LoadPlayerName(ctx context.Context, playerID string) (string, error)

	// WriteRankingSnapshot is idempotent by document id.
	WriteRankingSnapshot(ctx context.Context, snap model.RankingSnapshot) error

	// WritePlayerRatings writes the batch atomically, chunked internally to
	// the backend's per-batch operation limit.
	WritePlayerRatings(ctx context.Context, batch []model.PlayerRating) error

	CreateCalculationState(ctx context.Context, state model.CalculationState) error
	UpdateCalculationState(ctx context.Context, id string, update model.CalculationUpdate) error
	GetCalculation(ctx context.Context, id string) (*model.CalculationState, error)
	LatestCalculation(ctx context.Context) (*model.CalculationState, error)
}
