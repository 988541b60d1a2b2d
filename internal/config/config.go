// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/rankings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// Auth
	AuthJWTSecret string

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Rating engine
	Rating RatingConfig
}

// RatingConfig carries every tunable of the rating engine. Defaults are the
// standard TrueSkill constants; changing them invalidates comparability with
// previously published rankings, so treat overrides as a migration.
type RatingConfig struct {
	StartingMu      float64
	StartingSigma   float64
	Beta            float64
	Tau             float64
	DrawProbability float64
	PlayoffWeight   float64

	InactivityThresholdRounds        int
	InactivitySigmaInflationPerRound float64
	InactivitySigmaCap               float64

	MaxConcurrentGamesPerRound int
	WriteBatchSize             int
	GamePageSize               int
	HostDeadline               time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	sigma0 := envFloat("RANKINGS_STARTING_SIGMA", 25.0/3.0)
	tau := envFloat("RANKINGS_TAU", sigma0/100.0)

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		AuthJWTSecret: envOr("AUTH_JWT_SECRET", ""),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled: envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     envFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   envInt("RATE_LIMIT_BURST", 10),

		Rating: RatingConfig{
			StartingMu:      envFloat("RANKINGS_STARTING_MU", 25.0),
			StartingSigma:   sigma0,
			Beta:            envFloat("RANKINGS_BETA", sigma0/2.0),
			Tau:             tau,
			DrawProbability: envFloat("RANKINGS_DRAW_PROBABILITY", 0.10),
			PlayoffWeight:   envFloat("RANKINGS_PLAYOFF_WEIGHT", 2.0),

			InactivityThresholdRounds:        envInt("RANKINGS_INACTIVITY_THRESHOLD_ROUNDS", 3),
			InactivitySigmaInflationPerRound: envFloat("RANKINGS_INACTIVITY_SIGMA_INFLATION", tau),
			InactivitySigmaCap:               envFloat("RANKINGS_INACTIVITY_SIGMA_CAP", sigma0),

			MaxConcurrentGamesPerRound: envInt("RANKINGS_MAX_CONCURRENT_GAMES", 8),
			WriteBatchSize:             envInt("RANKINGS_WRITE_BATCH_SIZE", 500),
			GamePageSize:               envInt("RANKINGS_GAME_PAGE_SIZE", 1000),
			HostDeadline:               time.Duration(envInt("RANKINGS_HOST_DEADLINE_SECONDS", 540)) * time.Second,
		},
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
