package rankings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshkautz/winter-league-rankings/internal/apperr"
	"github.com/joshkautz/winter-league-rankings/internal/config"
	"github.com/joshkautz/winter-league-rankings/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRatingConfig() config.RatingConfig {
	sigma0 := 25.0 / 3.0
	return config.RatingConfig{
		StartingMu:      25.0,
		StartingSigma:   sigma0,
		Beta:            sigma0 / 2.0,
		Tau:             sigma0 / 100.0,
		DrawProbability: 0.10,
		PlayoffWeight:   2.0,

		InactivityThresholdRounds:        3,
		InactivitySigmaInflationPerRound: sigma0 / 100.0,
		InactivitySigmaCap:               sigma0,

		MaxConcurrentGamesPerRound: 8,
		WriteBatchSize:             500,
		GamePageSize:               1000,
		HostDeadline:               540 * time.Second,
	}
}

// --------------------------------------------------------------------------
// In-memory Store
// --------------------------------------------------------------------------

type fakeStore struct {
	seasons []model.Season
	games   []model.Game
	teams   map[string]*model.Team
	players map[string]string

	rankings  []model.PlayerRating
	snapshots []model.RankingSnapshot
	calcs     map[string]*model.CalculationState
	calcOrder []string

	// every progress block recorded, in update order
	progresses []model.CalculationProgress

	failRatingsWrite bool
	snapshotErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		teams:   make(map[string]*model.Team),
		players: make(map[string]string),
		calcs:   make(map[string]*model.CalculationState),
	}
}

func (f *fakeStore) LoadSeasonsOrdered(ctx context.Context) ([]model.Season, error) {
	out := append([]model.Season(nil), f.seasons...)
	sort.Slice(out, func(i, j int) bool { return out[i].DateStart.Before(out[j].DateStart) })
	return out, nil
}

func (f *fakeStore) LoadCompletedGamesOrdered(ctx context.Context, fn func(model.Game) error) error {
	out := make([]model.Game, 0, len(f.games))
	for _, g := range f.games {
		if g.Completed() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	for _, g := range out {
		if err := fn(g); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) LoadTeam(ctx context.Context, teamID string) (*model.Team, error) {
	team, ok := f.teams[teamID]
	if !ok {
		return nil, fmt.Errorf("team %s: %w", teamID, model.ErrNotFound)
	}
	return team, nil
}

func (f *fakeStore) LoadPlayerName(ctx context.Context, playerID string) (string, error) {
	name, ok := f.players[playerID]
	if !ok {
		return "", fmt.Errorf("player %s: %w", playerID, model.ErrNotFound)
	}
	return name, nil
}

func (f *fakeStore) WriteRankingSnapshot(ctx context.Context, snap model.RankingSnapshot) error {
	if f.snapshotErr != nil {
		return f.snapshotErr
	}
	for i, s := range f.snapshots {
		if s.DocID == snap.DocID {
			f.snapshots[i] = snap
			return nil
		}
	}
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeStore) WritePlayerRatings(ctx context.Context, batch []model.PlayerRating) error {
	if f.failRatingsWrite {
		return errors.New("backend unavailable")
	}
	f.rankings = append([]model.PlayerRating(nil), batch...)
	return nil
}

func (f *fakeStore) CreateCalculationState(ctx context.Context, state model.CalculationState) error {
	s := state
	f.calcs[state.ID] = &s
	f.calcOrder = append(f.calcOrder, state.ID)
	return nil
}

func (f *fakeStore) UpdateCalculationState(ctx context.Context, id string, update model.CalculationUpdate) error {
	state, ok := f.calcs[id]
	if !ok {
		return model.ErrNotFound
	}
	if update.Status != nil {
		state.Status = *update.Status
	}
	if update.CompletedAt != nil {
		state.CompletedAt = update.CompletedAt
	}
	if update.Progress != nil {
		state.Progress = *update.Progress
		f.progresses = append(f.progresses, *update.Progress)
	}
	if update.Error != nil {
		state.Error = update.Error
	}
	if update.Warnings != nil {
		state.Warnings = update.Warnings
	}
	return nil
}

func (f *fakeStore) GetCalculation(ctx context.Context, id string) (*model.CalculationState, error) {
	state, ok := f.calcs[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	out := *state
	return &out, nil
}

func (f *fakeStore) LatestCalculation(ctx context.Context) (*model.CalculationState, error) {
	if len(f.calcOrder) == 0 {
		return nil, model.ErrNotFound
	}
	out := *f.calcs[f.calcOrder[len(f.calcOrder)-1]]
	return &out, nil
}

var _ Store = (*fakeStore)(nil)

// --------------------------------------------------------------------------
// Fixture helpers
// --------------------------------------------------------------------------

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func (f *fakeStore) addSeason(id string, start time.Time) {
	f.seasons = append(f.seasons, model.Season{
		ID:        id,
		Name:      id,
		DateStart: start,
		DateEnd:   start.AddDate(0, 3, 0),
	})
}

func (f *fakeStore) addTeam(id, seasonID string, playerIDs ...string) {
	team := &model.Team{ID: id, Name: id, SeasonID: seasonID}
	for _, pid := range playerIDs {
		team.Roster = append(team.Roster, model.RosterEntry{PlayerID: pid})
		if _, ok := f.players[pid]; !ok {
			f.players[pid] = "Player " + pid
		}
	}
	f.teams[id] = team
}

func (f *fakeStore) addGame(id, seasonID string, date time.Time, home, away string, hs, as int, typ model.GameType) {
	f.games = append(f.games, model.Game{
		ID:         id,
		SeasonID:   seasonID,
		Date:       date,
		Type:       typ,
		HomeTeamID: strPtr(home),
		AwayTeamID: strPtr(away),
		HomeScore:  intPtr(hs),
		AwayScore:  intPtr(as),
	})
}

// runRebuild drives Begin + Run against the fake and returns the final state.
func runRebuild(t *testing.T, f *fakeStore, cfg config.RatingConfig) (*model.CalculationState, error) {
	t.Helper()
	ctrl := NewController(f, cfg, testLogger())
	state, err := ctrl.Begin(context.Background(), "test")
	require.NoError(t, err)
	runErr := ctrl.Run(context.Background(), state.ID)
	final, err := f.GetCalculation(context.Background(), state.ID)
	require.NoError(t, err)
	return final, runErr
}

func ratingOf(t *testing.T, rankings []model.PlayerRating, playerID string) model.PlayerRating {
	t.Helper()
	for _, r := range rankings {
		if r.PlayerID == playerID {
			return r
		}
	}
	t.Fatalf("player %s not in rankings", playerID)
	return model.PlayerRating{}
}

var slotOne = time.Date(2024, 1, 7, 18, 0, 0, 0, time.UTC) // epoch millis 1704650400000

// --------------------------------------------------------------------------
// Single round, end to end
// --------------------------------------------------------------------------

func TestRebuildSingleRound(t *testing.T) {
	f := newFakeStore()
	f.addSeason("S1", slotOne.AddDate(0, 0, -7))
	f.addTeam("T1", "S1", "p1", "p2")
	f.addTeam("T2", "S1", "p3", "p4")
	f.addGame("g1", "S1", slotOne, "T1", "T2", 15, 10, model.GameRegular)

	state, err := runRebuild(t, f, testRatingConfig())
	require.NoError(t, err)

	assert.Equal(t, model.CalcCompleted, state.Status)
	assert.NotNil(t, state.CompletedAt)
	assert.Equal(t, 100, state.Progress.PercentComplete)
	assert.Equal(t, "complete", state.Progress.CurrentStep)
	assert.Empty(t, state.Warnings)

	require.Len(t, f.rankings, 4)

	p1 := ratingOf(t, f.rankings, "p1")
	p2 := ratingOf(t, f.rankings, "p2")
	p3 := ratingOf(t, f.rankings, "p3")

	assert.Greater(t, p1.Mu, 25.0)
	assert.Equal(t, p1.Mu, p2.Mu, "teammates with identical priors move identically")
	assert.Less(t, p3.Mu, 25.0)
	assert.Less(t, p1.Sigma, 25.0/3.0)

	assert.Equal(t, 1, p1.TotalGames)
	assert.Equal(t, 1, p1.TotalSeasons)
	require.NotNil(t, p1.LastSeasonID)
	assert.Equal(t, "S1", *p1.LastSeasonID)
	assert.Positive(t, p1.LastRatingChange)
	assert.Negative(t, p3.LastRatingChange)

	// Winners rank above losers; the teammate tie breaks on player id.
	assert.Equal(t, 1, p1.Rank)
	assert.Equal(t, 2, p2.Rank)

	require.Len(t, f.snapshots, 1)
	snap := f.snapshots[0]
	assert.Equal(t, "1704650400000_S1", snap.DocID)
	assert.Equal(t, "S1", snap.SeasonID)
	assert.Equal(t, "1704650400000", snap.RoundMeta.RoundID)
	assert.Equal(t, 1, snap.RoundMeta.GameCount)
	assert.Equal(t, []string{"g1"}, snap.RoundMeta.GameIDs)
	assert.Equal(t, state.ID, snap.RoundMeta.CalculationID)
	assert.Len(t, snap.Entries, 4)
	for _, e := range snap.Entries {
		require.NotNil(t, e.Change)
		require.NotNil(t, e.PreviousRating)
		assert.Equal(t, 25.0, *e.PreviousRating)
	}
}

func TestRebuildPlayoffWeightDoublesMovement(t *testing.T) {
	build := func(typ model.GameType) float64 {
		f := newFakeStore()
		f.addSeason("S1", slotOne.AddDate(0, 0, -7))
		f.addTeam("T1", "S1", "p1", "p2")
		f.addTeam("T2", "S1", "p3", "p4")
		f.addGame("g1", "S1", slotOne, "T1", "T2", 15, 10, typ)
		_, err := runRebuild(t, f, testRatingConfig())
		require.NoError(t, err)
		return ratingOf(t, f.rankings, "p1").Mu - 25.0
	}

	regular := build(model.GameRegular)
	playoff := build(model.GamePlayoff)
	assert.InDelta(t, 2*regular, playoff, 1e-9)
}

// --------------------------------------------------------------------------
// Determinism
// --------------------------------------------------------------------------

func multiRoundFixture(shuffleSeed int64) *fakeStore {
	f := newFakeStore()
	f.addSeason("S1", slotOne.AddDate(0, 0, -7))
	for i := 1; i <= 8; i++ {
		f.addTeam(fmt.Sprintf("T%d", i), "S1",
			fmt.Sprintf("p%d", 2*i-1), fmt.Sprintf("p%d", 2*i))
	}
	// Round one: four simultaneous games. Round two: rematches with some
	// upsets and a draw.
	f.addGame("g1", "S1", slotOne, "T1", "T2", 15, 10, model.GameRegular)
	f.addGame("g2", "S1", slotOne, "T3", "T4", 7, 12, model.GameRegular)
	f.addGame("g3", "S1", slotOne, "T5", "T6", 9, 9, model.GameRegular)
	f.addGame("g4", "S1", slotOne, "T7", "T8", 3, 11, model.GameRegular)

	slotTwo := slotOne.AddDate(0, 0, 7)
	f.addGame("g5", "S1", slotTwo, "T2", "T1", 8, 6, model.GameRegular)
	f.addGame("g6", "S1", slotTwo, "T4", "T3", 10, 10, model.GameRegular)
	f.addGame("g7", "S1", slotTwo, "T6", "T5", 5, 13, model.GameRegular)
	f.addGame("g8", "S1", slotTwo, "T8", "T7", 9, 2, model.GamePlayoff)

	rand.New(rand.NewSource(shuffleSeed)).Shuffle(len(f.games), func(i, j int) {
		f.games[i], f.games[j] = f.games[j], f.games[i]
	})
	return f
}

func TestRebuildIsDeterministic(t *testing.T) {
	cfg := testRatingConfig()

	var prev *fakeStore
	for _, seed := range []int64{1, 42, 7} {
		f := multiRoundFixture(seed)
		_, err := runRebuild(t, f, cfg)
		require.NoError(t, err)

		if prev != nil {
			require.Len(t, f.rankings, len(prev.rankings))
			for i, r := range f.rankings {
				p := prev.rankings[i]
				assert.Equal(t, p.PlayerID, r.PlayerID, "rank order must not vary")
				assert.Equal(t, p.Mu, r.Mu, "mu must be bit-identical across runs")
				assert.Equal(t, p.Sigma, r.Sigma)
				assert.Equal(t, p.Rank, r.Rank)
			}
			require.Len(t, f.snapshots, len(prev.snapshots))
			for i := range f.snapshots {
				assert.Equal(t, prev.snapshots[i].DocID, f.snapshots[i].DocID)
				assert.Equal(t, prev.snapshots[i].Entries, f.snapshots[i].Entries)
			}
		}
		prev = f
	}
}

func TestRebuildSingleWorkerMatchesParallel(t *testing.T) {
	parallel := multiRoundFixture(1)
	serial := multiRoundFixture(1)

	cfg := testRatingConfig()
	_, err := runRebuild(t, parallel, cfg)
	require.NoError(t, err)

	cfg.MaxConcurrentGamesPerRound = 1
	_, err = runRebuild(t, serial, cfg)
	require.NoError(t, err)

	require.Len(t, serial.rankings, len(parallel.rankings))
	for i := range serial.rankings {
		assert.Equal(t, serial.rankings[i].PlayerID, parallel.rankings[i].PlayerID)
		assert.Equal(t, serial.rankings[i].Mu, parallel.rankings[i].Mu)
		assert.Equal(t, serial.rankings[i].Sigma, parallel.rankings[i].Sigma)
	}
}

func TestRebuildSharedParticipantAcrossSimultaneousGames(t *testing.T) {
	cfg := testRatingConfig()
	sigma0 := cfg.StartingSigma

	// p1 is rostered on both T1 and T3, which play different games in the
	// same timeslot. Both kernel invocations must read p1's pre-round rating,
	// and the two per-game deltas must sum.
	fixture := func(games ...string) *fakeStore {
		f := newFakeStore()
		f.addSeason("S1", slotOne.AddDate(0, 0, -7))
		f.addTeam("T1", "S1", "p1", "p2")
		f.addTeam("T2", "S1", "p3", "p4")
		f.addTeam("T3", "S1", "p1", "p6")
		f.addTeam("T4", "S1", "p7", "p8")
		for _, id := range games {
			if id == "g1" {
				f.addGame("g1", "S1", slotOne, "T1", "T2", 15, 10, model.GameRegular)
			} else {
				f.addGame("g2", "S1", slotOne, "T3", "T4", 5, 11, model.GameRegular)
			}
		}
		return f
	}

	onlyWin := fixture("g1")
	_, err := runRebuild(t, onlyWin, cfg)
	require.NoError(t, err)
	win := ratingOf(t, onlyWin.rankings, "p1")
	require.Greater(t, win.Mu, 25.0)

	onlyLoss := fixture("g2")
	_, err = runRebuild(t, onlyLoss, cfg)
	require.NoError(t, err)
	loss := ratingOf(t, onlyLoss.rankings, "p1")
	require.Less(t, loss.Mu, 25.0)

	both := fixture("g1", "g2")
	_, err = runRebuild(t, both, cfg)
	require.NoError(t, err)

	p1 := ratingOf(t, both.rankings, "p1")
	assert.Equal(t, 2, p1.TotalGames, "a shared participant counts both games")
	assert.InDelta(t, 25.0+(win.Mu-25.0)+(loss.Mu-25.0), p1.Mu, 1e-12,
		"mu is the starting rating plus both independent per-game deltas")
	assert.InDelta(t, sigma0+(win.Sigma-sigma0)+(loss.Sigma-sigma0), p1.Sigma, 1e-12)

	// Single-roster teammates are unaffected by the sharing.
	assert.Equal(t, 1, ratingOf(t, both.rankings, "p2").TotalGames)
	assert.Equal(t, win.Mu, ratingOf(t, both.rankings, "p2").Mu)
}

// --------------------------------------------------------------------------
// Universal properties over the multi-round fixture
// --------------------------------------------------------------------------

func TestRebuildTotalGamesIdentity(t *testing.T) {
	f := multiRoundFixture(1)
	_, err := runRebuild(t, f, testRatingConfig())
	require.NoError(t, err)

	// Every roster has two players, so each game contributes four
	// participations.
	want := len(f.games) * 4
	got := 0
	for _, r := range f.rankings {
		got += r.TotalGames
	}
	assert.Equal(t, want, got)
}

func TestRebuildLastSnapshotReplaysFinalRankings(t *testing.T) {
	f := multiRoundFixture(1)
	_, err := runRebuild(t, f, testRatingConfig())
	require.NoError(t, err)

	require.NotEmpty(t, f.snapshots)
	last := f.snapshots[len(f.snapshots)-1]
	require.Len(t, last.Entries, len(f.rankings))

	for i, e := range last.Entries {
		r := f.rankings[i]
		assert.Equal(t, r.PlayerID, e.PlayerID)
		assert.Equal(t, r.Mu, e.Rating)
		assert.Equal(t, r.Rank, e.Rank)
		assert.Equal(t, r.TotalGames, e.TotalGames)
	}
}

func TestRebuildProgressIsMonotonic(t *testing.T) {
	f := multiRoundFixture(1)
	state, err := runRebuild(t, f, testRatingConfig())
	require.NoError(t, err)
	require.Equal(t, model.CalcCompleted, state.Status)

	require.NotEmpty(t, f.progresses)
	prev := 0
	for _, p := range f.progresses {
		assert.GreaterOrEqual(t, p.PercentComplete, prev)
		if p.CurrentStep != "complete" {
			assert.LessOrEqual(t, p.PercentComplete, 95,
				"only completion reports more than 95")
		}
		prev = p.PercentComplete
	}
	final := f.progresses[len(f.progresses)-1]
	assert.Equal(t, 100, final.PercentComplete)
	assert.Equal(t, "complete", final.CurrentStep)
	assert.Nil(t, final.CurrentSeasonID)
}

// --------------------------------------------------------------------------
// Inactivity decay across rounds
// --------------------------------------------------------------------------

func TestRebuildInactivityInflation(t *testing.T) {
	cfg := testRatingConfig()

	// p9/p10 play only the first round; the other two teams keep playing
	// weekly. Five rounds total means four consecutive absences, which is
	// one past the threshold of three: two inflation steps.
	build := func(extraRounds int) *fakeStore {
		f := newFakeStore()
		f.addSeason("S1", slotOne.AddDate(0, 0, -7))
		f.addTeam("T1", "S1", "p1", "p2")
		f.addTeam("T2", "S1", "p3", "p4")
		f.addTeam("T5", "S1", "p9", "p10")
		f.addTeam("T6", "S1", "p11", "p12")
		f.addGame("g1", "S1", slotOne, "T1", "T2", 15, 10, model.GameRegular)
		f.addGame("g2", "S1", slotOne, "T5", "T6", 12, 8, model.GameRegular)
		for i := 1; i <= extraRounds; i++ {
			f.addGame(fmt.Sprintf("g%d", i+2), "S1", slotOne.AddDate(0, 0, 7*i),
				"T1", "T2", 10+i, 9, model.GameRegular)
		}
		return f
	}

	afterRoundOne := build(0)
	_, err := runRebuild(t, afterRoundOne, cfg)
	require.NoError(t, err)
	baseline := ratingOf(t, afterRoundOne.rankings, "p9")

	full := build(4)
	_, err = runRebuild(t, full, cfg)
	require.NoError(t, err)
	final := ratingOf(t, full.rankings, "p9")

	assert.InDelta(t, baseline.Sigma+2*cfg.InactivitySigmaInflationPerRound, final.Sigma, 1e-12)
	assert.Equal(t, baseline.Mu, final.Mu,
		"absence inflates sigma but never moves mu")
	assert.Equal(t, 1, final.TotalGames)
}

// --------------------------------------------------------------------------
// Failure handling
// --------------------------------------------------------------------------

func TestRebuildDeadlineAborts(t *testing.T) {
	f := multiRoundFixture(1)
	cfg := testRatingConfig()
	cfg.HostDeadline = time.Second // inside the abort grace window from the start

	state, err := runRebuild(t, f, cfg)
	require.Error(t, err)
	assert.Equal(t, apperr.DeadlineExceeded, apperr.CodeOf(err))

	assert.Equal(t, model.CalcFailed, state.Status)
	assert.Nil(t, state.CompletedAt, "failed runs never get a completion time")
	require.NotNil(t, state.Error)
	assert.Equal(t, "deadline exceeded", state.Error.Message)
	assert.Empty(t, state.Error.Trace, "only internal errors carry a trace")
	assert.Empty(t, f.rankings, "aborted runs leave the published rankings untouched")
}

func TestRebuildMidRoundDeadlineRecorded(t *testing.T) {
	f := multiRoundFixture(1)
	// A deadline firing inside a store call comes back as a wrapped context
	// error rather than through the round-boundary check.
	f.snapshotErr = fmt.Errorf("write snapshot: %w", context.DeadlineExceeded)

	state, err := runRebuild(t, f, testRatingConfig())
	require.Error(t, err)
	assert.Equal(t, apperr.DeadlineExceeded, apperr.CodeOf(err))

	assert.Equal(t, model.CalcFailed, state.Status)
	assert.Nil(t, state.CompletedAt)
	require.NotNil(t, state.Error)
	assert.Equal(t, "deadline exceeded", state.Error.Message)
	assert.Empty(t, state.Error.Trace)
	assert.Empty(t, f.rankings)
}

func TestRebuildWriteFailureRecordedAtomically(t *testing.T) {
	f := multiRoundFixture(1)
	f.failRatingsWrite = true
	f.rankings = []model.PlayerRating{{PlayerID: "stale"}}

	state, err := runRebuild(t, f, testRatingConfig())
	require.Error(t, err)

	assert.Equal(t, model.CalcFailed, state.Status)
	assert.Nil(t, state.CompletedAt)
	require.NotNil(t, state.Error)
	assert.NotEmpty(t, state.Error.Trace, "internal failures keep the wrapped cause")
	assert.Equal(t, []model.PlayerRating{{PlayerID: "stale"}}, f.rankings,
		"previous rankings survive a failed write")
}

func TestRebuildMissingTeamWarns(t *testing.T) {
	f := newFakeStore()
	f.addSeason("S1", slotOne.AddDate(0, 0, -7))
	f.addTeam("T2", "S1", "p3", "p4")
	f.addGame("g1", "S1", slotOne, "ghost", "T2", 15, 10, model.GameRegular)

	state, err := runRebuild(t, f, testRatingConfig())
	require.NoError(t, err, "a missing team is a document gap, not a failure")

	assert.Equal(t, model.CalcCompleted, state.Status)
	require.Len(t, state.Warnings, 1)
	assert.Contains(t, state.Warnings[0], "ghost")

	// The opposing side still counts the game, with no rating movement
	// against an empty roster.
	p3 := ratingOf(t, f.rankings, "p3")
	assert.Equal(t, 1, p3.TotalGames)
	assert.Equal(t, 25.0, p3.Mu)
}

// --------------------------------------------------------------------------
// Single-rebuild guard
// --------------------------------------------------------------------------

func TestBeginRefusesWhileRunInProgress(t *testing.T) {
	f := newFakeStore()
	cfg := testRatingConfig()

	first := NewController(f, cfg, testLogger())
	state, err := first.Begin(context.Background(), "admin-1")
	require.NoError(t, err)
	require.Equal(t, model.CalcPending, state.Status)

	second := NewController(f, cfg, testLogger())
	_, err = second.Begin(context.Background(), "admin-2")
	require.Error(t, err)
	assert.Equal(t, apperr.FailedPrecondition, apperr.CodeOf(err))
	assert.Contains(t, err.Error(), state.ID)
}

func TestBeginAllowsAfterTerminalRun(t *testing.T) {
	f := newFakeStore()
	f.addSeason("S1", slotOne.AddDate(0, 0, -7))
	cfg := testRatingConfig()

	state, err := runRebuild(t, f, cfg)
	require.NoError(t, err)
	require.True(t, state.Status.Terminal())

	next := NewController(f, cfg, testLogger())
	_, err = next.Begin(context.Background(), "admin")
	assert.NoError(t, err)
}

func TestBeginSupersedesStaleRun(t *testing.T) {
	f := newFakeStore()
	cfg := testRatingConfig()

	// A running record older than the host deadline window belongs to a dead
	// run and must not block new rebuilds.
	stale := model.CalculationState{
		ID:              "dead-run",
		CalculationType: model.FullRebuild,
		Status:          model.CalcRunning,
		StartedAt:       time.Now().Add(-cfg.HostDeadline - time.Minute),
	}
	require.NoError(t, f.CreateCalculationState(context.Background(), stale))

	ctrl := NewController(f, cfg, testLogger())
	_, err := ctrl.Begin(context.Background(), "admin")
	assert.NoError(t, err)
}
