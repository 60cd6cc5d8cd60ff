package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/OpenMined/network-ensemble-extras/internal/api/middleware"
	"github.com/OpenMined/network-ensemble-extras/internal/chat"
	"github.com/OpenMined/network-ensemble-extras/internal/config"
	"github.com/OpenMined/network-ensemble-extras/internal/handlers"
	"github.com/OpenMined/network-ensemble-extras/internal/store"
)

const (
	maxJSONBody  = 64 * 1024
	maxProxyBody = 1 << 20
)

// Deps are the services the HTTP layer is built on.
type Deps struct {
	Routers  store.DataStore
	Sessions store.SessionStore
	Redis    *store.RedisStore // optional; enables rate limiting
	Chat     *chat.Orchestrator
	Contact  handlers.ContactSubmitter // optional
	Proxy    http.Handler              // optional
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - the chat page and the contact form are served from other origins
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limiting needs Redis
	var limit func(http.Handler) http.Handler
	if deps.Redis != nil {
		limiter := middleware.NewRateLimiter(deps.Redis.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		limit = limiter.Middleware
	} else {
		logger.Warn().Msg("redis not configured, rate limiting disabled")
	}

	h := handlers.NewHandler(deps.Routers, deps.Sessions, deps.Chat, deps.Contact, cfg)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/api", h.Root)
	r.Get("/health", h.Health)

	// JSON API
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(maxJSONBody))
		r.Use(middleware.RequireJSON)
		r.Use(middleware.RejectSuspicious)
		if limit != nil {
			r.Use(limit)
		}

		// Directory backend
		r.Get("/router/list", h.ListRouters)
		r.Get("/username", h.Username)
		r.Get("/sburl", h.SyftBoxURL)
		r.Post("/router", h.UpsertRouter)

		r.Post("/contact", h.Contact)

		r.Route("/api/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/{id}", h.GetSession)
			r.Put("/{id}/sources", h.SetSources)
			r.Post("/{id}/messages", h.SendMessage)
			r.Delete("/{id}/messages", h.ResetSession)
		})
	})

	// Reverse proxy; bodies pass through untouched
	if deps.Proxy != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(maxProxyBody))
			r.Use(middleware.RejectSuspicious)
			if limit != nil {
				r.Use(limit)
			}
			r.Handle("/api/proxy/*", deps.Proxy)
		})
	}

	return r
}
