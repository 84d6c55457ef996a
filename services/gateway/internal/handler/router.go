package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/health"
	pkgmiddleware "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/middleware"
	gwmiddleware "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/gateway/internal/middleware"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/gateway/internal/proxy"
)

const serviceName = "gateway"

// RouterConfig carries the edge settings of the gateway.
type RouterConfig struct {
	CORS     pkgmiddleware.CORSConfig
	Verifier pkgmiddleware.Verifier
	Policy   gwmiddleware.Policy
	// Proxies are load balancers whose X-Forwarded-For is honored by the rate limiter.
	Proxies      *pkgmiddleware.CIDRSet
	RateRPS      float64
	RateBurst    int
	MetricsCIDRs []string
}

// NewRouter creates a chi router with global middleware, health endpoints,
// and proxy routes to the backend services.
func NewRouter(sp *proxy.ServiceProxy, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack (applied in order).
	r.Use(pkgmiddleware.CORS(cfg.CORS))
	r.Use(pkgmiddleware.RateLimit(pkgmiddleware.RateLimitConfig{
		RPS:     cfg.RateRPS,
		Burst:   cfg.RateBurst,
		Proxies: cfg.Proxies,
		Logger:  logger,
	}))
	r.Use(pkgmiddleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(pkgmiddleware.RequestLogging(logger))
	r.Use(pkgmiddleware.PrometheusMetrics(serviceName))
	r.Use(pkgmiddleware.Tracing(serviceName))
	r.Use(pkgmiddleware.RequestLogger(logger))

	// Health check endpoints (no auth required).
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())

	r.With(pkgmiddleware.IPAllowlist(cfg.MetricsCIDRs, logger)).Handle("/metrics", promhttp.Handler())
	pkgmiddleware.RegisterPprof(r, cfg.MetricsCIDRs, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(gwmiddleware.EdgeAuth(gwmiddleware.EdgeAuthConfig{
			Verifier: cfg.Verifier,
			Policy:   cfg.Policy,
			Logger:   logger,
		}))

		// Identity service
		r.Handle("/v1/auth/*", sp.Handler("identity"))
		r.Handle("/v1/admin/*", sp.Handler("identity"))

		// Inventory service
		r.Handle("/v1/inventory", sp.Handler("inventory"))
		r.Handle("/v1/inventory/*", sp.Handler("inventory"))

		// Order service
		r.Handle("/v1/orders", sp.Handler("orders"))
		r.Handle("/v1/orders/*", sp.Handler("orders"))

		// Analytics service
		r.Handle("/v1/analytics", sp.Handler("analytics"))
		r.Handle("/v1/analytics/*", sp.Handler("analytics"))
	})

	return r
}
