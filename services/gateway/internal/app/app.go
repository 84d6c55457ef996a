package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/health"
	pkgmiddleware "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/middleware"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/tracing"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/gateway/internal/config"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/gateway/internal/handler"
	gwmiddleware "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/gateway/internal/middleware"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/gateway/internal/proxy"
)

const serviceName = "gateway"

// App wires together all dependencies and runs the API gateway.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing the credential
// verifier, the reverse proxy and the HTTP router. The gateway holds no
// database or Kafka clients.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	verifier, err := cfg.Verifier(logger)
	if err != nil {
		return nil, fmt.Errorf("init verifier: %w", err)
	}
	logger.Info("credential verification configured", slog.String("mode", cfg.AuthMode))

	proxies, err := pkgmiddleware.ParseCIDRs(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
	}

	sp := proxy.NewServiceProxy(cfg.Upstreams(), proxy.TransportConfig{
		DialTimeout:     cfg.ProxyDialTimeout,
		ResponseTimeout: cfg.ProxyResponseTimeout,
		IdleTimeout:     cfg.ProxyIdleTimeout,
		MaxIdleConns:    cfg.ProxyMaxIdleConns,
	}, proxies, logger)

	// Every request depends on the identity service, for login and, in
	// remote mode, for verification; the business backends do not gate readiness.
	healthHandler := health.NewHandler()
	identityCheck := dialCheck(cfg.IdentityServiceURL)
	if cfg.AuthMode == config.AuthModeRemote {
		healthHandler.RegisterCritical("identity", identityCheck)
	} else {
		healthHandler.RegisterNonCritical("identity", identityCheck)
	}
	healthHandler.RegisterNonCritical("inventory", dialCheck(cfg.InventoryServiceURL))
	healthHandler.RegisterNonCritical("orders", dialCheck(cfg.OrderServiceURL))
	healthHandler.RegisterNonCritical("analytics", dialCheck(cfg.AnalyticsServiceURL))

	corsCfg := pkgmiddleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.MaxAge = cfg.CORSMaxAge

	router := handler.NewRouter(sp, healthHandler, logger, handler.RouterConfig{
		CORS:         corsCfg,
		Verifier:     verifier,
		Policy:       gwmiddleware.DefaultPolicy(),
		Proxies:      proxies,
		RateRPS:      cfg.RateLimitRPS,
		RateBurst:    cfg.RateLimitBurst,
		MetricsCIDRs: cfg.MetricsAllowedCIDRs,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// dialCheck reports whether a TCP connection to the host of rawURL succeeds.
func dialCheck(rawURL string) health.Checker {
	return func(ctx context.Context) error {
		u, err := url.Parse(rawURL)
		if err != nil {
			return fmt.Errorf("parse service URL: %w", err)
		}
		d := net.Dialer{Timeout: 2 * time.Second}
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return fmt.Errorf("%s unreachable: %w", u.Host, err)
		}
		_ = conn.Close()
		return nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the HTTP server in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
