package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joshkautz/winter-league-rankings/internal/model"
)

// LoadRankings returns the current PlayerRating documents ordered by rank.
func (s *Store) LoadRankings(ctx context.Context) ([]model.PlayerRating, error) {
	rows, err := s.pool.Query(ctx, "rankings_ordered")
	if err != nil {
		return nil, fmt.Errorf("query rankings: %w", err)
	}
	defer rows.Close()

	var out []model.PlayerRating
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan ranking: %w", err)
		}
		var pr model.PlayerRating
		if err := json.Unmarshal(doc, &pr); err != nil {
			return nil, fmt.Errorf("unmarshal ranking: %w", err)
		}
		out = append(out, pr)
	}
	return out, rows.Err()
}

// HistoryPage returns up to limit snapshots with document ids lexically
// below before, newest first. Because snapshot ids encode the round instant,
// this is a reverse-chronological keyset scan with no secondary index.
// Pass an empty before to start from the newest snapshot.
func (s *Store) HistoryPage(ctx context.Context, before string, limit int) ([]model.RankingSnapshot, error) {
	if before == "" {
		// Lexically above every epoch-millis prefix.
		before = "~"
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, "history_page", before, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.RankingSnapshot
	for rows.Next() {
		var docID string
		var doc []byte
		if err := rows.Scan(&docID, &doc); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snap model.RankingSnapshot
		if err := json.Unmarshal(doc, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot %s: %w", docID, err)
		}
		snap.DocID = docID
		out = append(out, snap)
	}
	return out, rows.Err()
}

// StaleCalculations returns non-terminal calculation records started before
// the cutoff. These are leftovers of runs whose host died inside the timeout
// window; the maintenance sweeper fails them so they stop blocking triggers.
func (s *Store) StaleCalculations(ctx context.Context, cutoff time.Time) ([]model.CalculationState, error) {
	rows, err := s.pool.Query(ctx, "stale_calculations", cutoff)
	if err != nil {
		return nil, fmt.Errorf("query stale calculations: %w", err)
	}
	defer rows.Close()

	var out []model.CalculationState
	for rows.Next() {
		var id string
		var doc []byte
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan stale calculation: %w", err)
		}
		state, err := unmarshalCalculation(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, *state)
	}
	return out, rows.Err()
}
