// Package maintenance runs periodic background tasks as Go tickers.
// The API server is already a persistent process, so scheduled work is
// driven from Go instead of an external cron.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/joshkautz/winter-league-rankings/internal/config"
	"github.com/joshkautz/winter-league-rankings/internal/model"
	"github.com/joshkautz/winter-league-rankings/internal/store"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	// SweepInterval controls how often stale calculation records are failed.
	SweepInterval time.Duration
	// StaleAfter is how old a non-terminal calculation must be before it is
	// considered dead. Must be at least the host deadline, or the sweeper
	// could fail a run that is still making progress.
	StaleAfter time.Duration
}

// DefaultConfig returns production defaults derived from the engine config.
func DefaultConfig(rating config.RatingConfig) Config {
	return Config{
		SweepInterval: 5 * time.Minute,
		StaleAfter:    rating.HostDeadline + time.Minute,
	}
}

// Start launches the maintenance tickers. Blocks until ctx is cancelled.
// Intended to be called with `go`.
func Start(ctx context.Context, st *store.Store, cfg Config, logger *slog.Logger) {
	if cfg.SweepInterval <= 0 {
		return
	}
	logger.Info("Maintenance tickers started",
		"sweep", cfg.SweepInterval,
		"stale_after", cfg.StaleAfter)

	t := time.NewTicker(cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			SweepStale(ctx, st, cfg.StaleAfter, logger)
		case <-ctx.Done():
			logger.Info("Maintenance tickers stopped")
			return
		}
	}
}

// SweepStale fails every non-terminal calculation record older than
// staleAfter. Such records belong to runs whose host died mid-rebuild; until
// they are failed, they block new rebuild triggers.
func SweepStale(ctx context.Context, st *store.Store, staleAfter time.Duration, logger *slog.Logger) {
	cutoff := time.Now().Add(-staleAfter)
	stale, err := st.StaleCalculations(ctx, cutoff)
	if err != nil {
		logger.Warn("Sweep: failed to list stale calculations", "error", err)
		return
	}

	for _, state := range stale {
		failed := model.CalcFailed
		update := model.CalculationUpdate{
			Status: &failed,
			Error: &model.CalculationError{
				Message:   "superseded: exceeded host timeout window",
				Timestamp: time.Now().UTC(),
			},
		}
		if err := st.UpdateCalculationState(ctx, state.ID, update); err != nil {
			logger.Warn("Sweep: failed to mark calculation failed",
				"calculation_id", state.ID, "error", err)
			continue
		}
		logger.Info("Sweep: marked stale calculation failed",
			"calculation_id", state.ID,
			"started_at", state.StartedAt,
			"was_status", state.Status)
	}
}
