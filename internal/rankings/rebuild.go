// Package rankings implements the player rankings rebuild: a full,
// chronological re-derivation of every player's TrueSkill rating from the
// complete record of completed games, with a per-round snapshot history and
// a polled calculation-state record.
package rankings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joshkautz/winter-league-rankings/internal/apperr"
	"github.com/joshkautz/winter-league-rankings/internal/config"
	"github.com/joshkautz/winter-league-rankings/internal/model"
	"github.com/joshkautz/winter-league-rankings/internal/trueskill"
)

type timeSource func() time.Time

// abortGrace is how close to the host deadline the controller will still
// start a new round. Inside this window the run is flushed and failed so the
// state record never lies about an aborted run.
const abortGrace = 5 * time.Second

// Controller drives one full rebuild end to end and owns the calculation
// state record for that run. Construct a fresh Controller per run: it holds
// run-scoped accumulators, and its Store memoisation is per-run by contract.
type Controller struct {
	store  Store
	cfg    config.RatingConfig
	params trueskill.Params
	logger *slog.Logger
	now    timeSource

	// run-scoped accumulators
	lastChange map[string]float64
	warnings   []string
}

// NewController builds a controller for a single rebuild run.
func NewController(store Store, cfg config.RatingConfig, logger *slog.Logger) *Controller {
	return &Controller{
		store: store,
		cfg:   cfg,
		params: trueskill.Params{
			Mu0:             cfg.StartingMu,
			Sigma0:          cfg.StartingSigma,
			Beta:            cfg.Beta,
			Tau:             cfg.Tau,
			DrawProbability: cfg.DrawProbability,
		},
		logger:     logger,
		now:        time.Now,
		lastChange: make(map[string]float64),
	}
}

// Begin enforces the single-rebuild guard and creates the pending
// calculation record. It does not start processing; callers pass the
// returned state's ID to Run, inline or on a background goroutine.
//
// A second rebuild is refused while the most recent record is non-terminal
// and younger than the host deadline window. Older non-terminal records are
// treated as failed leftovers of a dead run and may be superseded.
func (c *Controller) Begin(ctx context.Context, triggeredBy string) (*model.CalculationState, error) {
	latest, err := c.store.LatestCalculation(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load latest calculation: %w", err)
	}
	if latest != nil && !latest.Status.Terminal() &&
		c.now().Sub(latest.StartedAt) < c.cfg.HostDeadline {
		return nil, apperr.New(apperr.FailedPrecondition,
			"a rankings calculation is already in progress (id %s)", latest.ID)
	}

	state := model.CalculationState{
		ID:              uuid.NewString(),
		CalculationType: model.FullRebuild,
		Status:          model.CalcPending,
		StartedAt:       c.now().UTC(),
		TriggeredBy:     triggeredBy,
		Progress: model.CalculationProgress{
			CurrentStep: "loading",
		},
		Parameters: model.CalculationParams{
			StartingMu:      c.cfg.StartingMu,
			StartingSigma:   c.cfg.StartingSigma,
			Beta:            c.cfg.Beta,
			Tau:             c.cfg.Tau,
			DrawProbability: c.cfg.DrawProbability,
			PlayoffWeight:   c.cfg.PlayoffWeight,
		},
	}
	if err := c.store.CreateCalculationState(ctx, state); err != nil {
		return nil, fmt.Errorf("create calculation state: %w", err)
	}
	return &state, nil
}

// Run executes the rebuild for a previously created calculation record and
// transitions it to completed or failed. The error returned mirrors what was
// recorded on the state.
func (c *Controller) Run(ctx context.Context, calcID string) error {
	deadline := c.now().Add(c.cfg.HostDeadline)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	err := c.rebuild(runCtx, calcID, deadline)
	if err == nil {
		return nil
	}

	// The deadline can also fire inside a store call mid-round, surfacing as
	// a wrapped context error; record it under the same code as the
	// round-boundary check.
	if apperr.CodeOf(err) == apperr.Internal && errors.Is(err, context.DeadlineExceeded) {
		err = apperr.Wrap(err, apperr.DeadlineExceeded, "deadline exceeded")
	}

	// Record the failure on a fresh context: the run context may already be
	// past its deadline.
	failCtx, failCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer failCancel()

	calcErr := model.CalculationError{
		Message:   apperr.MessageOf(err),
		Timestamp: c.now().UTC(),
	}
	if apperr.CodeOf(err) == apperr.Internal {
		calcErr.Trace = err.Error()
	}
	failed := model.CalcFailed
	if uerr := c.store.UpdateCalculationState(failCtx, calcID, model.CalculationUpdate{
		Status: &failed,
		Error:  &calcErr,
	}); uerr != nil {
		c.logger.Error("Failed to record calculation failure", "calculation_id", calcID, "error", uerr)
	}
	c.logger.Error("Rankings rebuild failed", "calculation_id", calcID, "error", err)
	return err
}

func (c *Controller) rebuild(ctx context.Context, calcID string, deadline time.Time) error {
	start := c.now()
	running := model.CalcRunning
	if err := c.store.UpdateCalculationState(ctx, calcID, model.CalculationUpdate{
		Status:   &running,
		Progress: &model.CalculationProgress{CurrentStep: "loading"},
	}); err != nil {
		return fmt.Errorf("mark running: %w", err)
	}

	seasons, err := c.store.LoadSeasonsOrdered(ctx)
	if err != nil {
		return fmt.Errorf("load seasons: %w", err)
	}

	var games []model.Game
	if err := c.store.LoadCompletedGamesOrdered(ctx, func(g model.Game) error {
		games = append(games, g)
		return nil
	}); err != nil {
		return fmt.Errorf("load games: %w", err)
	}

	rounds := GroupRounds(games)
	c.logger.Info("Rebuild inputs loaded",
		"calculation_id", calcID,
		"seasons", len(seasons),
		"games", len(games),
		"rounds", len(rounds))

	seasonIndex := make(map[string]int, len(seasons))
	for i, s := range seasons {
		seasonIndex[s.ID] = i
	}

	progress := model.CalculationProgress{
		CurrentStep:  "loading",
		TotalSeasons: len(seasons),
	}

	progressEvery := len(rounds) / 100
	if progressEvery < 1 {
		progressEvery = 1
	}

	m := make(RatingMap)
	currentSeason := ""
	for i, round := range rounds {
		if deadline.Sub(c.now()) < abortGrace {
			return apperr.New(apperr.DeadlineExceeded, "deadline exceeded")
		}

		seasonChanged := round.SeasonID() != currentSeason
		if seasonChanged {
			if currentSeason != "" {
				progress.SeasonsProcessed++
			}
			currentSeason = round.SeasonID()
			seasonID := currentSeason
			progress.CurrentSeasonID = &seasonID
			progress.CurrentStep = fmt.Sprintf("processing season %d/%d",
				seasonIndex[currentSeason]+1, len(seasons))
		}

		warnings, err := c.processRound(ctx, m, round, calcID)
		if err != nil {
			return fmt.Errorf("process round %s: %w", round.ID, err)
		}
		c.warnings = append(c.warnings, warnings...)

		if seasonChanged || (i+1)%progressEvery == 0 {
			progress.PercentComplete = progressPercent(progress.SeasonsProcessed, len(seasons))
			if err := c.updateProgress(ctx, calcID, progress); err != nil {
				return err
			}
		}
	}

	progress.SeasonsProcessed = len(seasons)
	progress.CurrentStep = "saving rankings"
	progress.PercentComplete = progressPercent(len(seasons), len(seasons))
	if err := c.updateProgress(ctx, calcID, progress); err != nil {
		return err
	}

	ratings := m.ToPlayerRatings(c.lastChange, c.now)
	if err := c.store.WritePlayerRatings(ctx, ratings); err != nil {
		return fmt.Errorf("write player ratings: %w", err)
	}

	completed := model.CalcCompleted
	completedAt := c.now().UTC()
	progress.CurrentStep = "complete"
	progress.PercentComplete = 100
	progress.CurrentSeasonID = nil
	if err := c.store.UpdateCalculationState(ctx, calcID, model.CalculationUpdate{
		Status:      &completed,
		CompletedAt: &completedAt,
		Progress:    &progress,
		Warnings:    c.warnings,
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}

	c.logger.Info("Rankings rebuild complete",
		"calculation_id", calcID,
		"players", len(ratings),
		"rounds", len(rounds),
		"warnings", len(c.warnings),
		"duration", c.now().Sub(start).Round(time.Millisecond))
	return nil
}

func (c *Controller) updateProgress(ctx context.Context, calcID string, progress model.CalculationProgress) error {
	update := model.CalculationUpdate{Progress: &progress}
	if len(c.warnings) > 0 {
		update.Warnings = c.warnings
	}
	if err := c.store.UpdateCalculationState(ctx, calcID, update); err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// progressPercent caps mid-run progress at 95; the final 5 points are
// reserved for the rankings write and only completion reports 100.
func progressPercent(seasonsProcessed, totalSeasons int) int {
	if totalSeasons == 0 {
		return 95
	}
	pct := 95 * seasonsProcessed / totalSeasons
	if pct > 95 {
		pct = 95
	}
	return pct
}
