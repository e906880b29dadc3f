package api

import (
	"net/http"

	"github.com/carewire/hospital-router/internal/api/handler"
	customMiddleware "github.com/carewire/hospital-router/internal/api/middleware"
	"github.com/carewire/hospital-router/internal/config"
	"github.com/carewire/hospital-router/internal/domain"
	"github.com/carewire/hospital-router/internal/repository/postgres"
	"github.com/carewire/hospital-router/internal/repository/redis"
	"github.com/carewire/hospital-router/internal/router"
	"github.com/carewire/hospital-router/internal/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router. db and redisClient may
// be nil; the call log and rate limiting are then disabled.
func NewRouter(
	cfg *config.Config,
	callRouter *router.Router,
	transcript domain.TranscriptRepository,
	db *postgres.DB,
	redisClient *redis.Client,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(customMiddleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.MiddlewareTimeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	jwtManager := security.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	queryHandler := handler.NewQueryHandler(callRouter)
	sessionHandler := handler.NewSessionHandler(callRouter, transcript)
	adminHandler := handler.NewAdminHandler(callRouter)
	authHandler := handler.NewAuthHandler(cfg.Auth, jwtManager)

	authMiddleware := customMiddleware.NewAuthMiddleware(jwtManager)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", handler.HealthCheck)
		r.Get("/ready", handler.ReadyCheck(db, redisClient))

		// Operator auth (public)
		r.Post("/auth/login", authHandler.Login)

		// Caller-facing routes
		r.Group(func(r chi.Router) {
			if redisClient != nil {
				rateLimiter := redis.NewRateLimiter(
					redisClient,
					cfg.Security.RateLimit.RequestsPerMinute,
					cfg.Security.RateLimit.Burst,
				)
				r.Use(customMiddleware.NewRateLimitMiddleware(rateLimiter).Limit)
			}

			r.Post("/query", queryHandler.Process)

			r.Route("/sessions/{sessionID}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Clear)
			})
		})

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Get("/admin/stats", adminHandler.Stats)
			r.Get("/admin/handoffs", adminHandler.Handoffs)
			r.Get("/admin/matrix", adminHandler.Matrix)
			r.Get("/sessions/{sessionID}/transcript", sessionHandler.Transcript)
		})
	})

	return r
}
