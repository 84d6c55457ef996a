package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/config"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/database"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/token"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/tracing"
)

const (
	devAccessKeys  = "access-dev=dev-access-secret-change-me-0123456789"
	devRefreshKeys = "refresh-dev=dev-refresh-secret-change-me-012345678"

	minSecretLen = 32
)

// Config holds all configuration for the identity service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"IDENTITY_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"erp"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"erp_secret"`
	PostgresDB   string `env:"IDENTITY_DB_NAME" envDefault:"identity_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Redis session cache
	RedisHost           string        `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort           int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword       string        `env:"REDIS_PASSWORD"`
	RedisDB             int           `env:"REDIS_DB" envDefault:"0"`
	SessionCacheEnabled bool          `env:"SESSION_CACHE_ENABLED" envDefault:"true"`
	SessionCacheTTL     time.Duration `env:"SESSION_CACHE_TTL" envDefault:"30m"`

	// Kafka; an empty broker list disables event publishing.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Tokens
	JWTIssuer        string        `env:"JWT_ISSUER" envDefault:"identity-service"`
	JWTAudience      string        `env:"JWT_AUDIENCE" envDefault:"erp"`
	JWTAccessKeys    string        `env:"JWT_ACCESS_KEYS"`
	JWTRefreshKeys   string        `env:"JWT_REFRESH_KEYS"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`
	JWTClockSkew     time.Duration `env:"JWT_CLOCK_SKEW" envDefault:"30s"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"12"`

	// TrustedProxyCIDRs are peers (the gateway) whose forwarded client
	// address and identity headers are honored.
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	LoginRateLimitRPS   float64 `env:"LOGIN_RATE_LIMIT_RPS" envDefault:"5"`
	LoginRateLimitBurst int     `env:"LOGIN_RATE_LIMIT_BURST" envDefault:"10"`

	RefreshSweepInterval time.Duration `env:"REFRESH_SWEEP_INTERVAL" envDefault:"1h"`

	// OpenTelemetry
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// MetricsAllowedCIDRs may scrape /metrics and /debug/pprof.
	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16" envSeparator:","`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load identity config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate checks ranges and, outside development, key strength.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.LoginRateLimitRPS <= 0 || c.LoginRateLimitBurst < 1 {
		return errors.New("LOGIN_RATE_LIMIT_RPS and LOGIN_RATE_LIMIT_BURST must be positive")
	}
	if c.SessionCacheTTL <= 0 {
		return errors.New("SESSION_CACHE_TTL must be positive")
	}
	if c.RefreshSweepInterval <= 0 {
		return errors.New("REFRESH_SWEEP_INTERVAL must be positive")
	}

	if !c.IsDevelopment() {
		if c.JWTAccessKeys == "" || c.JWTRefreshKeys == "" {
			return fmt.Errorf("JWT_ACCESS_KEYS and JWT_REFRESH_KEYS must be explicitly set in %q mode", c.Environment)
		}
		if c.JWTIssuer == "" || c.JWTAudience == "" {
			return fmt.Errorf("JWT_ISSUER and JWT_AUDIENCE must be set in %q mode", c.Environment)
		}
	}

	access, refresh, err := c.keyrings()
	if err != nil {
		return err
	}
	if !c.IsDevelopment() {
		if n := access.MinSecretLen(); n < minSecretLen {
			return fmt.Errorf("JWT_ACCESS_KEYS secrets must be at least %d bytes, got %d", minSecretLen, n)
		}
		if n := refresh.MinSecretLen(); n < minSecretLen {
			return fmt.Errorf("JWT_REFRESH_KEYS secrets must be at least %d bytes, got %d", minSecretLen, n)
		}
	}

	// NewManager rejects shared secrets and inverted lifetimes.
	if _, err := c.TokenManager(); err != nil {
		return fmt.Errorf("token configuration: %w", err)
	}
	return nil
}

func (c *Config) keyrings() (access, refresh *token.Keyring, err error) {
	accessSpec, refreshSpec := c.JWTAccessKeys, c.JWTRefreshKeys
	if accessSpec == "" {
		accessSpec = devAccessKeys
	}
	if refreshSpec == "" {
		refreshSpec = devRefreshKeys
	}
	if access, err = token.ParseKeyring(accessSpec); err != nil {
		return nil, nil, fmt.Errorf("JWT_ACCESS_KEYS: %w", err)
	}
	if refresh, err = token.ParseKeyring(refreshSpec); err != nil {
		return nil, nil, fmt.Errorf("JWT_REFRESH_KEYS: %w", err)
	}
	return access, refresh, nil
}

// TokenManager builds the credential minter from the configured keyrings.
func (c *Config) TokenManager() (*token.Manager, error) {
	access, refresh, err := c.keyrings()
	if err != nil {
		return nil, err
	}
	return token.NewManager(token.Config{
		Issuer:      c.JWTIssuer,
		Audience:    c.JWTAudience,
		AccessTTL:   c.JWTAccessExpiry,
		RefreshTTL:  c.JWTRefreshExpiry,
		AccessKeys:  access,
		RefreshKeys: refresh,
		Leeway:      c.JWTClockSkew,
	})
}

// Postgres returns the connection settings for the identity database.
func (c *Config) Postgres() database.PostgresConfig {
	pg := database.DefaultPostgresConfig()
	pg.Host = c.PostgresHost
	pg.Port = c.PostgresPort
	pg.User = c.PostgresUser
	pg.Password = c.PostgresPass
	pg.DBName = c.PostgresDB
	pg.SSLMode = c.PostgresSSL
	return pg
}

// Redis returns the session cache connection settings.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing(serviceName string) tracing.Config {
	tc := tracing.DefaultConfig(serviceName)
	tc.Environment = c.Environment
	tc.OTLPEndpoint = c.OTelEndpoint
	tc.SampleRate = c.OTelSampleRate
	tc.Enabled = c.OTelEnabled
	return tc
}
