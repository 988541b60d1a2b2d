// Package store is the persistence layer of the rankings engine. Input
// entities live in relational tables; engine outputs are JSONB documents
// keyed by their document ids, so the document semantics the engine was
// designed around (idempotent by-id writes, lexical ordered history scans)
// survive the move to Postgres.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/joshkautz/winter-league-rankings/internal/config"
	"github.com/joshkautz/winter-league-rankings/internal/db"
	"github.com/joshkautz/winter-league-rankings/internal/model"
)

// Store implements rankings.Store over a pgx pool. Team and player-name
// loads are memoised for the lifetime of the Store, so construct one Store
// per rebuild run: each distinct id hits the database at most once per run.
type Store struct {
	pool      *db.Pool
	pageSize  int
	batchSize int

	mu      sync.Mutex
	teams   map[string]*model.Team // nil value records a known-missing team
	players map[string]*string     // nil value records a known-missing player
}

// New creates a run-scoped Store.
func New(pool *db.Pool, cfg config.RatingConfig) *Store {
	pageSize := cfg.GamePageSize
	if pageSize < 1 {
		pageSize = 1000
	}
	batchSize := cfg.WriteBatchSize
	if batchSize < 1 {
		batchSize = 500
	}
	return &Store{
		pool:      pool,
		pageSize:  pageSize,
		batchSize: batchSize,
		teams:     make(map[string]*model.Team),
		players:   make(map[string]*string),
	}
}

// --------------------------------------------------------------------------
// Input reads
// --------------------------------------------------------------------------

// LoadSeasonsOrdered returns all seasons ordered by date_start ascending.
func (s *Store) LoadSeasonsOrdered(ctx context.Context) ([]model.Season, error) {
	rows, err := s.pool.Query(ctx, "seasons_ordered")
	if err != nil {
		return nil, fmt.Errorf("query seasons: %w", err)
	}
	defer rows.Close()

	var seasons []model.Season
	for rows.Next() {
		var season model.Season
		if err := rows.Scan(&season.ID, &season.Name, &season.DateStart, &season.DateEnd,
			&season.RegistrationStart, &season.RegistrationEnd); err != nil {
			return nil, fmt.Errorf("scan season: %w", err)
		}
		seasons = append(seasons, season)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range seasons {
		teamIDs, err := s.seasonTeamIDs(ctx, seasons[i].ID)
		if err != nil {
			return nil, err
		}
		seasons[i].TeamIDs = teamIDs
	}
	return seasons, nil
}

func (s *Store) seasonTeamIDs(ctx context.Context, seasonID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, "season_team_ids", seasonID)
	if err != nil {
		return nil, fmt.Errorf("query season teams: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan season team: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadCompletedGamesOrdered streams completed games ordered by (date, id)
// ascending using keyset pagination, so the full game list never has to fit
// in a single round trip.
func (s *Store) LoadCompletedGamesOrdered(ctx context.Context, fn func(model.Game) error) error {
	cursorDate := time.Unix(0, 0).UTC()
	cursorID := ""

	for {
		games, err := s.completedGamesPage(ctx, cursorDate, cursorID)
		if err != nil {
			return err
		}
		if len(games) == 0 {
			return nil
		}
		for _, g := range games {
			if err := fn(g); err != nil {
				return err
			}
		}
		last := games[len(games)-1]
		cursorDate, cursorID = last.Date, last.ID
		if len(games) < s.pageSize {
			return nil
		}
	}
}

func (s *Store) completedGamesPage(ctx context.Context, afterDate time.Time, afterID string) ([]model.Game, error) {
	rows, err := s.pool.Query(ctx, "completed_games_page", afterDate, afterID, s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("query games page: %w", err)
	}
	defer rows.Close()

	var games []model.Game
	for rows.Next() {
		var g model.Game
		var gameType string
		if err := rows.Scan(&g.ID, &g.SeasonID, &g.Date, &g.Field, &gameType,
			&g.HomeTeamID, &g.AwayTeamID, &g.HomeScore, &g.AwayScore); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		g.Type = model.GameType(gameType)
		games = append(games, g)
	}
	return games, rows.Err()
}

// LoadTeam returns a team with its roster, memoised by id.
func (s *Store) LoadTeam(ctx context.Context, teamID string) (*model.Team, error) {
	s.mu.Lock()
	cached, ok := s.teams[teamID]
	s.mu.Unlock()
	if ok {
		if cached == nil {
			return nil, fmt.Errorf("team %s: %w", teamID, model.ErrNotFound)
		}
		return cached, nil
	}

	team := &model.Team{}
	err := s.pool.QueryRow(ctx, "team_by_id", teamID).Scan(&team.ID, &team.Name, &team.SeasonID)
	if errors.Is(err, pgx.ErrNoRows) {
		s.mu.Lock()
		s.teams[teamID] = nil
		s.mu.Unlock()
		return nil, fmt.Errorf("team %s: %w", teamID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query team %s: %w", teamID, err)
	}

	rows, err := s.pool.Query(ctx, "team_roster", teamID)
	if err != nil {
		return nil, fmt.Errorf("query roster %s: %w", teamID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var entry model.RosterEntry
		if err := rows.Scan(&entry.PlayerID, &entry.Captain, &entry.DateJoined); err != nil {
			return nil, fmt.Errorf("scan roster entry: %w", err)
		}
		team.Roster = append(team.Roster, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.teams[teamID] = team
	s.mu.Unlock()
	return team, nil
}

// GetPlayer returns a full player document. Not memoised; used by auth, not
// by the rebuild hot path.
func (s *Store) GetPlayer(ctx context.Context, playerID string) (*model.Player, error) {
	var p model.Player
	err := s.pool.QueryRow(ctx, "player_by_id", playerID).Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Admin, &p.EmailVerified)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", playerID, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query player %s: %w", playerID, err)
	}
	return &p, nil
}

// LoadPlayerName returns a player's display name, memoised by id.
func (s *Store) LoadPlayerName(ctx context.Context, playerID string) (string, error) {
	s.mu.Lock()
	cached, ok := s.players[playerID]
	s.mu.Unlock()
	if ok {
		if cached == nil {
			return "", fmt.Errorf("player %s: %w", playerID, model.ErrNotFound)
		}
		return *cached, nil
	}

	p, err := s.GetPlayer(ctx, playerID)
	if errors.Is(err, model.ErrNotFound) {
		s.mu.Lock()
		s.players[playerID] = nil
		s.mu.Unlock()
		return "", err
	}
	if err != nil {
		return "", err
	}

	name := p.DisplayName()
	s.mu.Lock()
	s.players[playerID] = &name
	s.mu.Unlock()
	return name, nil
}

// --------------------------------------------------------------------------
// Output writes
// --------------------------------------------------------------------------

// WriteRankingSnapshot upserts one history document. The deterministic
// document id makes the write idempotent within and across runs.
func (s *Store) WriteRankingSnapshot(ctx context.Context, snap model.RankingSnapshot) error {
	doc, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.DocID, err)
	}
	_, err = s.pool.Exec(ctx, "upsert_snapshot", snap.DocID, snap.SeasonID, snap.SnapshotDate, doc)
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", snap.DocID, err)
	}
	return nil
}

// WritePlayerRatings overwrites the current rating documents in one
// transaction, issuing batches of at most the configured chunk size.
func (s *Store) WritePlayerRatings(ctx context.Context, batch []model.PlayerRating) error {
	return s.InTx(ctx, func(tx *Tx) error {
		for start := 0; start < len(batch); start += s.batchSize {
			end := start + s.batchSize
			if end > len(batch) {
				end = len(batch)
			}

			b := &pgx.Batch{}
			for _, pr := range batch[start:end] {
				doc, err := json.Marshal(pr)
				if err != nil {
					return fmt.Errorf("marshal rating %s: %w", pr.PlayerID, err)
				}
				b.Queue("upsert_ranking", pr.PlayerID, doc)
			}
			if err := tx.SendBatch(ctx, b); err != nil {
				return fmt.Errorf("write ratings chunk [%d:%d]: %w", start, end, err)
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Calculation state
// --------------------------------------------------------------------------

// CreateCalculationState inserts a new calculation record.
func (s *Store) CreateCalculationState(ctx context.Context, state model.CalculationState) error {
	doc, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal calculation: %w", err)
	}
	if _, err := s.pool.Exec(ctx, "insert_calculation", state.ID, state.StartedAt, doc); err != nil {
		return fmt.Errorf("insert calculation: %w", err)
	}
	return nil
}

// UpdateCalculationState merges a partial update into the record's document.
func (s *Store) UpdateCalculationState(ctx context.Context, id string, update model.CalculationUpdate) error {
	patch, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal calculation update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, "update_calculation", id, patch)
	if err != nil {
		return fmt.Errorf("update calculation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("calculation %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// GetCalculation returns one calculation record by id.
func (s *Store) GetCalculation(ctx context.Context, id string) (*model.CalculationState, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "get_calculation", id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("calculation %s: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query calculation %s: %w", id, err)
	}
	return unmarshalCalculation(doc)
}

// LatestCalculation returns the most recently started calculation record.
func (s *Store) LatestCalculation(ctx context.Context) (*model.CalculationState, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "latest_calculation").Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("latest calculation: %w", model.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query latest calculation: %w", err)
	}
	return unmarshalCalculation(doc)
}

func unmarshalCalculation(doc []byte) (*model.CalculationState, error) {
	var state model.CalculationState
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, fmt.Errorf("unmarshal calculation: %w", err)
	}
	return &state, nil
}
