package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/database"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/health"
	pkgkafka "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/kafka"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/middleware"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/tracing"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/auth"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/config"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/event"
	handler "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/handler/http"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/repository"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/repository/postgres"
	redisrepo "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/repository/redis"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/service"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/migrations"
)

// ServiceName labels logs, metrics and traces.
const ServiceName = "identity"

// App wires together all dependencies and runs the identity service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	sweeper        *service.Sweeper
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	sweepCancel context.CancelFunc
	sweepDone   sync.WaitGroup
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(ServiceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{cfg: cfg, logger: logger, tracerShutdown: tracerShutdown}

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		a.closeClients()
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, ServiceName)
	database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		a.closeClients()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	// The session cache is an optimization; the service starts without it.
	var sessions repository.SessionCache
	if cfg.SessionCacheEnabled {
		client, err := database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			logger.Warn("redis unavailable, session cache disabled", slog.String("error", err.Error()))
		} else {
			a.redis = client
			sessions = redisrepo.NewSessionCache(client)
			healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
		}
	}

	var eventProducer *event.Producer
	if len(cfg.KafkaBrokers) > 0 {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		eventProducer = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	tokens, err := cfg.TokenManager()
	if err != nil {
		a.closeClients()
		return nil, fmt.Errorf("token manager: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(cfg.BcryptCost)
	if err != nil {
		a.closeClients()
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	principals := postgres.NewPrincipalRepository(pool)
	roles := postgres.NewRoleRepository(pool)
	ledger := postgres.NewRefreshLedger(pool)

	credentials, err := auth.NewCredentialStore(principals, authz.NewEvaluator(roles), hasher)
	if err != nil {
		a.closeClients()
		return nil, fmt.Errorf("credential store: %w", err)
	}

	svc := service.NewIdentityService(service.Deps{
		Credentials: credentials,
		Roles:       roles,
		Ledger:      ledger,
		Sessions:    sessions,
		Tokens:      tokens,
		Producer:    eventProducer,
		SessionTTL:  cfg.SessionCacheTTL,
		Logger:      logger,
	})
	a.sweeper = service.NewSweeper(ledger, cfg.RefreshSweepInterval, logger)

	upstream, err := middleware.NewTrustedUpstream(cfg.TrustedProxyCIDRs)
	if err != nil {
		a.closeClients()
		return nil, fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
	}
	proxies, err := middleware.ParseCIDRs(cfg.TrustedProxyCIDRs)
	if err != nil {
		a.closeClients()
		return nil, fmt.Errorf("TRUSTED_PROXY_CIDRS: %w", err)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	router := handler.NewRouter(svc, healthHandler, logger, handler.RouterConfig{
		CORS:         corsCfg,
		Verifier:     tokens,
		Upstream:     upstream,
		MetricsCIDRs: cfg.MetricsAllowedCIDRs,
		Proxies:      proxies,
		RateRPS:      cfg.LoginRateLimitRPS,
		RateBurst:    cfg.LoginRateLimitBurst,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// Run starts the HTTP server and the ledger sweeper and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	sweepCtx, cancel := context.WithCancel(context.Background())
	a.sweepCancel = cancel
	a.sweepDone.Add(1)
	go func() {
		defer a.sweepDone.Done()
		a.sweeper.Run(sweepCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Ledger sweeper
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer, Redis, PostgreSQL
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.sweepCancel != nil {
		a.sweepCancel()
		a.sweepDone.Wait()
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	errs = append(errs, a.closeClients())

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeClients releases external clients in reverse order of creation.
func (a *App) closeClients() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.tracerShutdown(ctx)
		a.tracerShutdown = nil
	}
	return errors.Join(errs...)
}
