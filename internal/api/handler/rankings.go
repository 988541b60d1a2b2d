package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/joshkautz/winter-league-rankings/internal/api/respond"
	"github.com/joshkautz/winter-league-rankings/internal/apperr"
	"github.com/joshkautz/winter-league-rankings/internal/auth"
	"github.com/joshkautz/winter-league-rankings/internal/model"
	"github.com/joshkautz/winter-league-rankings/internal/rankings"
)

// Rebuilder drives one rebuild run. Satisfied by *rankings.Controller.
type Rebuilder interface {
	Begin(ctx context.Context, triggeredBy string) (*model.CalculationState, error)
	Run(ctx context.Context, calcID string) error
}

// RankingsReader reads published ranking documents and calculation state.
// Satisfied by *store.Store.
type RankingsReader interface {
	GetCalculation(ctx context.Context, id string) (*model.CalculationState, error)
	LatestCalculation(ctx context.Context) (*model.CalculationState, error)
	LoadRankings(ctx context.Context) ([]model.PlayerRating, error)
	HistoryPage(ctx context.Context, before string, limit int) ([]model.RankingSnapshot, error)
}

// identity pulls the authenticated caller set by the auth middleware.
func identity(r *http.Request) (*auth.Identity, error) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return nil, apperr.New(apperr.Unauthenticated, "missing bearer credentials")
	}
	return id, nil
}

// RebuildPlayerRankings triggers a full rankings rebuild.
//
// POST /api/v1/rankings/rebuild
//
// The rebuild runs on a background goroutine; the response carries the new
// calculation id and its current status, and the admin dashboard polls
// GetCalculationStatus for progress. No state record is created unless the
// caller passes the administrator check.
func (h *Handler) RebuildPlayerRankings(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respond.WriteError(w, err)
		return
	}
	if err := auth.RequireAdmin(r.Context(), h.players, id); err != nil {
		respond.WriteError(w, err)
		return
	}

	ctrl := h.newRebuild()
	state, err := ctrl.Begin(r.Context(), id.UserID)
	if err != nil {
		h.logger.Warn("Rebuild trigger refused", "user_id", id.UserID, "error", err)
		respond.WriteError(w, err)
		return
	}

	h.logger.Info("Rankings rebuild triggered",
		"calculation_id", state.ID, "triggered_by", id.UserID)

	// Detached from the request context: the dashboard client is expected to
	// abandon the call and poll the state record instead.
	go func() {
		_ = ctrl.Run(context.Background(), state.ID)
	}()

	respond.WriteJSONObject(w, http.StatusAccepted, map[string]any{
		"calculationId": state.ID,
		"status":        state.Status,
	})
}

// GetCalculationStatus returns one calculation record.
//
// GET /api/v1/rankings/calculations/{calculationID}
func (h *Handler) GetCalculationStatus(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respond.WriteError(w, err)
		return
	}
	if err := auth.RequireAdmin(r.Context(), h.players, id); err != nil {
		respond.WriteError(w, err)
		return
	}

	calcID := chi.URLParam(r, "calculationID")
	if _, err := uuid.Parse(calcID); err != nil {
		respond.WriteError(w, apperr.New(apperr.InvalidArgument, "calculationId must be a UUID"))
		return
	}

	state, err := h.reader.GetCalculation(r.Context(), calcID)
	if errors.Is(err, model.ErrNotFound) {
		respond.WriteError(w, apperr.New(apperr.NotFound, "calculation %s not found", calcID))
		return
	}
	if err != nil {
		h.logger.Error("Failed to load calculation", "calculation_id", calcID, "error", err)
		respond.WriteError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, sanitise(state))
}

// GetLatestCalculation returns the most recent calculation record, so the
// dashboard can decide whether to offer the rebuild button.
//
// GET /api/v1/rankings/calculations/latest
func (h *Handler) GetLatestCalculation(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		respond.WriteError(w, err)
		return
	}
	if err := auth.RequireAdmin(r.Context(), h.players, id); err != nil {
		respond.WriteError(w, err)
		return
	}

	state, err := h.reader.LatestCalculation(r.Context())
	if errors.Is(err, model.ErrNotFound) {
		respond.WriteError(w, apperr.New(apperr.NotFound, "no calculations recorded"))
		return
	}
	if err != nil {
		h.logger.Error("Failed to load latest calculation", "error", err)
		respond.WriteError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, sanitise(state))
}

// sanitise strips the internal trace from a calculation record before it
// crosses the API boundary.
func sanitise(state *model.CalculationState) *model.CalculationState {
	if state.Error == nil {
		return state
	}
	clean := *state
	errCopy := *state.Error
	errCopy.Trace = ""
	clean.Error = &errCopy
	return &clean
}

// GetRankings returns the current leaderboard documents ordered by rank.
//
// GET /api/v1/rankings
func (h *Handler) GetRankings(w http.ResponseWriter, r *http.Request) {
	ratings, err := h.reader.LoadRankings(r.Context())
	if err != nil {
		h.logger.Error("Failed to load rankings", "error", err)
		respond.WriteError(w, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"rankings": ratings,
		"count":    len(ratings),
	})
}

// GetRankingsHistory returns ranking snapshots newest-first with keyset
// pagination over the lexically ordered document ids.
//
// GET /api/v1/rankings/history?limit=20&before={docID}
func (h *Handler) GetRankingsHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			respond.WriteError(w, apperr.New(apperr.InvalidArgument, "limit must be an integer between 1 and 100"))
			return
		}
		limit = n
	}
	before := r.URL.Query().Get("before")

	snaps, err := h.reader.HistoryPage(r.Context(), before, limit)
	if err != nil {
		h.logger.Error("Failed to load rankings history", "error", err)
		respond.WriteError(w, err)
		return
	}

	next := ""
	if len(snaps) == limit {
		next = snaps[len(snaps)-1].DocID
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"snapshots": snaps,
		"next":      next,
	})
}

var _ Rebuilder = (*rankings.Controller)(nil)
