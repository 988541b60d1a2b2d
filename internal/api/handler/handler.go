// Package handler provides HTTP handlers for the rankings API. The admin
// surface is thin: it validates the caller, delegates to the rankings
// controller, and shapes responses; all rating work happens in
// internal/rankings.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/joshkautz/winter-league-rankings/internal/api/respond"
	"github.com/joshkautz/winter-league-rankings/internal/auth"
	"github.com/joshkautz/winter-league-rankings/internal/config"
	"github.com/joshkautz/winter-league-rankings/internal/db"
	"github.com/joshkautz/winter-league-rankings/internal/rankings"
	"github.com/joshkautz/winter-league-rankings/internal/store"
)

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	pool   *db.Pool
	cfg    *config.Config
	logger *slog.Logger

	players auth.PlayerLoader
	reader  RankingsReader
	// newRebuild builds a run-scoped controller: store memoisation and the
	// controller's accumulators both live exactly one rebuild.
	newRebuild func() Rebuilder
}

// New creates a Handler with shared dependencies.
func New(pool *db.Pool, cfg *config.Config, logger *slog.Logger) *Handler {
	shared := store.New(pool, cfg.Rating)
	return &Handler{
		pool:    pool,
		cfg:     cfg,
		logger:  logger,
		players: shared,
		reader:  shared,
		newRebuild: func() Rebuilder {
			return rankings.NewController(store.New(pool, cfg.Rating), cfg.Rating, logger)
		},
	}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "Winter League Rankings API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
