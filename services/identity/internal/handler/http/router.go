package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/health"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/middleware"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/service"
)

const serviceName = "identity"

// RouterConfig carries the edge settings of the identity HTTP surface.
type RouterConfig struct {
	CORS middleware.CORSConfig
	// Verifier checks bearer access credentials.
	Verifier middleware.Verifier
	// Upstream, when non-nil, accepts identity headers from the gateway.
	Upstream *middleware.TrustedUpstream
	// MetricsCIDRs may scrape /metrics and /debug/pprof.
	MetricsCIDRs []string
	// Proxies are peers whose X-Forwarded-For is honored by the rate limiter.
	Proxies   *middleware.CIDRSet
	RateRPS   float64
	RateBurst int
}

// NewRouter creates a chi router with every identity route registered.
func NewRouter(svc *service.IdentityService, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.With(middleware.IPAllowlist(cfg.MetricsCIDRs, logger)).Handle("/metrics", promhttp.Handler())
	middleware.RegisterPprof(r, cfg.MetricsCIDRs, logger)

	authn := middleware.Auth(middleware.AuthConfig{
		Verifier: cfg.Verifier,
		Upstream: cfg.Upstream,
		Logger:   logger,
	})
	limited := middleware.RateLimit(middleware.RateLimitConfig{
		RPS:     cfg.RateRPS,
		Burst:   cfg.RateBurst,
		Proxies: cfg.Proxies,
		Logger:  logger,
	})

	authHandler := NewAuthHandler(svc, logger)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)

		// Public, rate-limited per client address.
		r.Group(func(r chi.Router) {
			r.Use(limited)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(authn)
			r.Post("/logout", authHandler.Logout)
			r.Post("/logout-all", authHandler.LogoutAll)
			r.Post("/change-password", authHandler.ChangePassword)
			r.Get("/verify", authHandler.Verify)
			r.Get("/me", authHandler.Me)
		})
	})

	adminHandler := NewAdminHandler(svc, logger)
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(middleware.NoStore)
		r.Use(authn)

		r.With(middleware.RequireAnyPermission(authz.PermUsersRead, authz.PermRolesUpdate)).Get("/roles", adminHandler.ListRoles)

		r.Route("/principals/{id}", func(r chi.Router) {
			r.With(middleware.RequirePermission(authz.PermUsersRead)).Get("/", adminHandler.GetPrincipal)
			r.With(middleware.RequirePermission(authz.PermUsersRead)).Get("/sessions", adminHandler.ListSessions)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(authz.PermUsersUpdate))
				r.Patch("/active", adminHandler.SetActive)
				r.Patch("/verified", adminHandler.SetVerified)
				r.Post("/sign-out", adminHandler.SignOut)
			})

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequirePermission(authz.PermRolesUpdate))
				r.Post("/roles", adminHandler.AssignRole)
				r.Delete("/roles/{role}", adminHandler.RemoveRole)
			})
		})
	})

	return r
}
