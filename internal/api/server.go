package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/pitlane/internal/api/handler"
	"github.com/albapepper/pitlane/internal/auth"
	"github.com/albapepper/pitlane/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins: cfg.CORSAllowOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Accept-Encoding", "Authorization", "Content-Type", "If-None-Match", "Cache-Control",
			auth.HeaderSettlementSecret, auth.HeaderCronSecret,
		},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow, func(req *http.Request) bool {
			return auth.CheckSecret(cfg.SettlementSecret, auth.SuppliedSecret(req))
		}))
	}

	// --- Routes ---

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	users := auth.RequireUser(auth.JWT{Secret: []byte(cfg.JWTSecret)})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/races", h.ListRaces)
		r.Get("/races/{raceID}/markets", h.GetRaceMarkets)

		r.Group(func(r chi.Router) {
			r.Use(users)
			r.Post("/races/{raceID}/bets", h.PlaceBets)
			r.Get("/races/{raceID}/bets/me", h.MyBets)
			r.Get("/leagues/{leagueID}/standings", h.GetStandings)
		})
	})

	// Operator and cron routes
	r.Route("/internal", func(r chi.Router) {
		r.Use(auth.InternalOnly(cfg.SettlementSecret))

		r.Post("/schedule/ingest", h.IngestSchedule)
		r.Post("/races/{raceID}/ingest-results", h.IngestResults)
		r.Post("/races/{raceID}/settle", h.SettleRace)

		r.Get("/cron/settle-races", h.RunSweep)
		r.Post("/cron/settle-races", h.RunSweep)
		r.Get("/cron/settle-races/health", h.SweepHealth)
	})

	return r
}
