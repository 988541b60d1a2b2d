// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshkautz/winter-league-rankings/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// registerPreparedStatements registers all statements the rankings engine
// uses. Prepared statements eliminate parse overhead on the hot rebuild path,
// where the team and player lookups run once per distinct id per rebuild.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Rebuild inputs
		"seasons_ordered": `
			SELECT id, name, date_start, date_end, registration_start, registration_end
			FROM seasons ORDER BY date_start ASC`,
		"season_team_ids": `
			SELECT team_id FROM season_teams WHERE season_id = $1 ORDER BY team_id`,
		"completed_games_page": `
			SELECT id, season_id, date, field, type, home_team_id, away_team_id, home_score, away_score
			FROM games
			WHERE home_team_id IS NOT NULL AND away_team_id IS NOT NULL
			  AND home_score IS NOT NULL AND away_score IS NOT NULL
			  AND (date, id) > ($1, $2)
			ORDER BY date ASC, id ASC
			LIMIT $3`,
		"team_by_id": `
			SELECT id, name, season_id FROM teams WHERE id = $1`,
		"team_roster": `
			SELECT player_id, captain, date_joined
			FROM team_rosters WHERE team_id = $1
			ORDER BY date_joined ASC, player_id ASC`,
		"player_by_id": `
			SELECT id, firstname, lastname, admin, email_verified
			FROM players WHERE id = $1`,

		// Rebuild outputs
		"upsert_ranking": `
			INSERT INTO rankings (player_id, doc, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (player_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		"upsert_snapshot": `
			INSERT INTO rankings_history (doc_id, season_id, snapshot_date, doc)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (doc_id) DO UPDATE SET
				season_id = EXCLUDED.season_id,
				snapshot_date = EXCLUDED.snapshot_date,
				doc = EXCLUDED.doc`,
		"history_page": `
			SELECT doc_id, doc FROM rankings_history
			WHERE doc_id < $1 ORDER BY doc_id DESC LIMIT $2`,
		"rankings_ordered": `
			SELECT doc FROM rankings ORDER BY (doc->>'rank')::int ASC`,

		// Calculation state
		"insert_calculation": `
			INSERT INTO rankings_calculations (id, started_at, doc) VALUES ($1, $2, $3)`,
		"get_calculation": `
			SELECT doc FROM rankings_calculations WHERE id = $1`,
		"update_calculation": `
			UPDATE rankings_calculations SET doc = doc || $2 WHERE id = $1`,
		"latest_calculation": `
			SELECT doc FROM rankings_calculations
			ORDER BY started_at DESC LIMIT 1`,
		"stale_calculations": `
			SELECT id, doc FROM rankings_calculations
			WHERE doc->>'status' IN ('pending', 'running')
			  AND started_at < $1`,
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
