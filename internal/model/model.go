// Package model defines the entities the rankings engine reads and the
// documents it writes. Input entities (Season, Team, Player, Game) are
// produced by the rest of the league platform and are immutable from the
// engine's perspective; output documents (PlayerRating, RankingSnapshot,
// CalculationState) are owned by the engine.
package model

import (
	"errors"
	"time"
)

// ErrNotFound is the shared sentinel for a referenced document that does not
// exist. Loaders return it wrapped; callers test with errors.Is.
var ErrNotFound = errors.New("document not found")

// --------------------------------------------------------------------------
// Input entities
// --------------------------------------------------------------------------

// Season is one league season. Seasons are totally ordered by DateStart.
type Season struct {
	ID                string
	Name              string
	DateStart         time.Time
	DateEnd           time.Time
	RegistrationStart time.Time
	RegistrationEnd   time.Time
	TeamIDs           []string
}

// RosterEntry is one player's membership on a team.
type RosterEntry struct {
	PlayerID   string
	Captain    bool
	DateJoined time.Time
}

// Team is a season-scoped team with its current roster. The engine uses the
// roster as it exists at calculation time; it never reconstructs
// point-in-time rosters.
type Team struct {
	ID       string
	Name     string
	SeasonID string
	Roster   []RosterEntry
}

// Player carries only the fields the engine cares about. The platform stores
// many more profile fields on the same document; they are ignored here.
type Player struct {
	ID            string
	FirstName     string
	LastName      string
	Admin         bool
	EmailVerified bool
}

// DisplayName returns the denormalised name stored on ranking documents.
func (p Player) DisplayName() string {
	if p.FirstName == "" {
		return p.LastName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// GameType distinguishes regular-season games from playoff games.
type GameType string

const (
	GameRegular GameType = "regular"
	GamePlayoff GameType = "playoff"
)

// Game is one scheduled game. Team ids and scores are pointers because the
// platform creates games before teams are assigned and before scores are
// recorded; a game participates in rankings only once all four are set.
type Game struct {
	ID         string
	SeasonID   string
	Date       time.Time
	Field      int
	Type       GameType
	HomeTeamID *string
	AwayTeamID *string
	HomeScore  *int
	AwayScore  *int
}

// Completed reports whether the game has both teams and both scores and is
// therefore eligible for rating.
func (g Game) Completed() bool {
	return g.HomeTeamID != nil && g.AwayTeamID != nil &&
		g.HomeScore != nil && g.AwayScore != nil
}

// Weight returns the rating weight for the game's type.
func (g Game) Weight(playoffWeight float64) float64 {
	if g.Type == GamePlayoff {
		return playoffWeight
	}
	return 1.0
}

// --------------------------------------------------------------------------
// Output documents
// --------------------------------------------------------------------------

// PlayerRating is the current rating document for one player, overwritten by
// every successful rebuild. PlayerName is a cache of the player's display
// name, refreshed on each rebuild.
type PlayerRating struct {
	PlayerID         string    `json:"playerId"`
	PlayerName       string    `json:"playerName"`
	Mu               float64   `json:"mu"`
	Sigma            float64   `json:"sigma"`
	TotalGames       int       `json:"totalGames"`
	TotalSeasons     int       `json:"totalSeasons"`
	Rank             int       `json:"rank"`
	LastUpdated      time.Time `json:"lastUpdated"`
	LastSeasonID     *string   `json:"lastSeasonId"`
	LastRatingChange float64   `json:"lastRatingChange"`
}

// Ordinal returns the conservative display rating mu - 3*sigma.
func (r PlayerRating) Ordinal() float64 {
	return r.Mu - 3*r.Sigma
}

// SnapshotEntry is one player's line in a RankingSnapshot.
type SnapshotEntry struct {
	PlayerID       string   `json:"playerId"`
	PlayerName     string   `json:"playerName"`
	Rating         float64  `json:"rating"`
	Rank           int      `json:"rank"`
	TotalGames     int      `json:"totalGames"`
	TotalSeasons   int      `json:"totalSeasons"`
	Change         *float64 `json:"change,omitempty"`
	PreviousRating *float64 `json:"previousRating,omitempty"`
}

// RoundMeta describes the round a snapshot was taken after.
type RoundMeta struct {
	RoundID        string    `json:"roundId"`
	RoundStartTime time.Time `json:"roundStartTime"`
	GameCount      int       `json:"gameCount"`
	GameIDs        []string  `json:"gameIds"`
	CalculationID  string    `json:"calculationId"`
}

// RankingSnapshot is the point-in-time standings written after each round.
// The document id encodes the round instant so that a lexical ordered scan
// of snapshot ids equals a chronological scan.
type RankingSnapshot struct {
	DocID        string          `json:"-"`
	SeasonID     string          `json:"seasonId"`
	SnapshotDate time.Time       `json:"snapshotDate"`
	Entries      []SnapshotEntry `json:"rankings"`
	RoundMeta    RoundMeta       `json:"roundMeta"`
}

// CalculationStatus is the lifecycle state of one rebuild run.
type CalculationStatus string

const (
	CalcPending   CalculationStatus = "pending"
	CalcRunning   CalculationStatus = "running"
	CalcCompleted CalculationStatus = "completed"
	CalcFailed    CalculationStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s CalculationStatus) Terminal() bool {
	return s == CalcCompleted || s == CalcFailed
}

// CalculationProgress is the progress block of a CalculationState.
type CalculationProgress struct {
	CurrentStep      string  `json:"currentStep"`
	PercentComplete  int     `json:"percentComplete"`
	CurrentSeasonID  *string `json:"currentSeasonId,omitempty"`
	TotalSeasons     int     `json:"totalSeasons"`
	SeasonsProcessed int     `json:"seasonsProcessed"`
}

// CalculationParams records the rating parameters a run was started with.
type CalculationParams struct {
	StartingMu      float64 `json:"startingMu"`
	StartingSigma   float64 `json:"startingSigma"`
	Beta            float64 `json:"beta"`
	Tau             float64 `json:"tau"`
	DrawProbability float64 `json:"drawProbability"`
	PlayoffWeight   float64 `json:"playoffWeight"`
}

// CalculationError captures the failure of a run. Trace is sanitised and is
// never surfaced to API callers.
type CalculationError struct {
	Message   string    `json:"message"`
	Trace     string    `json:"trace,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CalculationState is the control record for one rebuild. One record is
// created per run and only that run updates it; records are never reused.
type CalculationState struct {
	ID              string              `json:"id"`
	CalculationType string              `json:"calculationType"`
	Status          CalculationStatus   `json:"status"`
	StartedAt       time.Time           `json:"startedAt"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	TriggeredBy     string              `json:"triggeredBy"`
	Progress        CalculationProgress `json:"progress"`
	Parameters      CalculationParams   `json:"parameters"`
	Error           *CalculationError   `json:"error,omitempty"`
	Warnings        []string            `json:"warnings,omitempty"`
}

// CalculationUpdate is a partial update to a CalculationState document.
// Only non-nil fields are merged; the record itself is append-only and is
// touched only by the run that created it (and the staleness sweeper).
type CalculationUpdate struct {
	Status      *CalculationStatus   `json:"status,omitempty"`
	CompletedAt *time.Time           `json:"completedAt,omitempty"`
	Progress    *CalculationProgress `json:"progress,omitempty"`
	Error       *CalculationError    `json:"error,omitempty"`
	Warnings    []string             `json:"warnings,omitempty"`
}

// FullRebuild is the only calculation type the engine supports. Incremental
// recalculation was removed because it cannot maintain correct sigma.
const FullRebuild = "full_rebuild"
