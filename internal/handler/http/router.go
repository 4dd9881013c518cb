package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/health"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/middleware"
)

// RouterConfig carries the dependencies and settings of NewRouter.
type RouterConfig struct {
	ServiceName string
	Auth        AuthService
	Contacts    ContactService
	Health      *health.Handler
	// Redis is pinged by GET /health. Nil reports the cache as disabled.
	Redis Pinger
	// Media serves in-memory avatars under /media/. Nil when an object
	// store hosts them.
	Media             MediaSource
	CORS              middleware.CORSConfig
	ContactCreate     middleware.RateLimitConfig
	PprofAllowedCIDRs []string
	Logger            *slog.Logger
}

// NewRouter creates a chi router with all routes registered. ctx bounds the
// background work of the rate limiters.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/", Index)

	// Health check endpoints
	r.Get("/health", Status(cfg.Redis))
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofAllowedCIDRs, logger)

	if cfg.Media != nil {
		r.Get("/media/*", Media(cfg.Media))
	}

	requireAuth := middleware.Auth(Authenticator(cfg.Auth))

	authHandler := NewAuthHandler(cfg.Auth, logger)
	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NoStore)

		// Public
		r.Post("/login", authHandler.Login)
		r.Get("/verify-email", authHandler.VerifyEmail)
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/register", authHandler.Register)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/request-password-reset", authHandler.RequestPasswordReset)
			r.Post("/reset-password", authHandler.ResetPassword)
		})

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", authHandler.Me)
			r.Post("/upload-avatar", authHandler.UploadAvatar)
		})
	})

	contactHandler := NewContactHandler(cfg.Contacts, logger)
	createLimit := middleware.RateLimit(ctx, cfg.ContactCreate, logger)

	r.Route("/contacts", func(r chi.Router) {
		// Auth runs first so an anonymous request is always a 401.
		r.Use(requireAuth)
		r.Use(middleware.NoStore)

		r.With(ContentTypeJSON, createLimit).Post("/", contactHandler.Create)
		r.Get("/", contactHandler.List)
		r.Get("/search", contactHandler.Search)
		r.Get("/search/", contactHandler.Search)
		r.Get("/{id}", contactHandler.Get)
		r.With(ContentTypeJSON).Put("/{id}", contactHandler.Update)
		r.Delete("/{id}", contactHandler.Delete)
	})

	return r
}
