package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/joshkautz/winter-league-rankings/internal/api/handler"
	"github.com/joshkautz/winter-league-rankings/internal/api/respond"
	"github.com/joshkautz/winter-league-rankings/internal/auth"
	"github.com/joshkautz/winter-league-rankings/internal/config"
	"github.com/joshkautz/winter-league-rankings/internal/db"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(pool *db.Pool, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Process-Time"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}

	// --- Handler dependencies ---
	h := handler.New(pool, cfg, logger)
	verifier := auth.NewVerifier(cfg.AuthJWTSecret)
	authenticated := verifier.Middleware(respond.WriteError)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	// Swagger UI
	mountDocs(r)

	// API v1 routes
	r.Route("/api/v1/rankings", func(r chi.Router) {
		// Published ranking documents: readable without credentials, same
		// as the leaderboard views that consume them.
		r.Get("/", h.GetRankings)
		r.Get("/history", h.GetRankingsHistory)

		// Admin surface: authenticated callers only; the handlers
		// additionally require the administrator capability.
		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/rebuild", h.RebuildPlayerRankings)
			r.Get("/calculations/latest", h.GetLatestCalculation)
			r.Get("/calculations/{calculationID}", h.GetCalculationStatus)
		})
	})

	return r
}
