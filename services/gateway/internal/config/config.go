package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	pkgconfig "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/config"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/identityclient"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/middleware"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/token"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/tracing"
)

// Authentication modes.
const (
	AuthModeLocal  = "local"
	AuthModeRemote = "remote"
)

const (
	devAccessKeys = "access-dev=dev-access-secret-change-me-0123456789"
	minSecretLen  = 32
)

// Config holds all configuration for the API gateway.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"GATEWAY_HTTP_PORT" envDefault:"8080"`

	// AuthMode selects how bearer credentials are verified: "local" checks
	// signatures with the access keyring, "remote" asks the identity service.
	AuthMode      string        `env:"GATEWAY_AUTH_MODE" envDefault:"local"`
	JWTIssuer     string        `env:"JWT_ISSUER" envDefault:"identity-service"`
	JWTAudience   string        `env:"JWT_AUDIENCE" envDefault:"erp"`
	JWTAccessKeys string        `env:"JWT_ACCESS_KEYS"`
	JWTClockSkew  time.Duration `env:"JWT_CLOCK_SKEW" envDefault:"30s"`
	VerifyTimeout time.Duration `env:"IDENTITY_VERIFY_TIMEOUT" envDefault:"3s"`

	// Backend service URLs
	IdentityServiceURL  string `env:"IDENTITY_SERVICE_URL" envDefault:"http://localhost:8010"`
	InventoryServiceURL string `env:"INVENTORY_SERVICE_URL" envDefault:"http://localhost:8011"`
	OrderServiceURL     string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8012"`
	AnalyticsServiceURL string `env:"ANALYTICS_SERVICE_URL" envDefault:"http://localhost:8013"`

	// Proxy transport
	ProxyDialTimeout     time.Duration `env:"PROXY_DIAL_TIMEOUT" envDefault:"5s"`
	ProxyResponseTimeout time.Duration `env:"PROXY_RESPONSE_TIMEOUT" envDefault:"30s"`
	ProxyIdleTimeout     time.Duration `env:"PROXY_IDLE_TIMEOUT" envDefault:"90s"`
	ProxyMaxIdleConns    int           `env:"PROXY_MAX_IDLE_CONNS" envDefault:"100"`

	// Rate limiting
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"200"`

	// TrustedProxyCIDRs are load balancers whose X-Forwarded-For is honored.
	TrustedProxyCIDRs []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	// OpenTelemetry
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	CORSMaxAge         int      `env:"CORS_MAX_AGE" envDefault:"3600"`

	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the gateway runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst < 1 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.IdentityServiceURL == "" {
		return errors.New("IDENTITY_SERVICE_URL must be set")
	}

	switch c.AuthMode {
	case AuthModeRemote:
		return nil
	case AuthModeLocal:
	default:
		return fmt.Errorf("GATEWAY_AUTH_MODE must be %q or %q, got %q", AuthModeLocal, AuthModeRemote, c.AuthMode)
	}

	if !c.IsDevelopment() && c.JWTAccessKeys == "" {
		return fmt.Errorf("JWT_ACCESS_KEYS must be explicitly set in %q mode", c.Environment)
	}
	keys, err := c.accessKeys()
	if err != nil {
		return err
	}
	if !c.IsDevelopment() {
		if n := keys.MinSecretLen(); n < minSecretLen {
			return fmt.Errorf("JWT_ACCESS_KEYS secrets must be at least %d bytes, got %d", minSecretLen, n)
		}
	}
	return nil
}

func (c *Config) accessKeys() (*token.Keyring, error) {
	spec := c.JWTAccessKeys
	if spec == "" {
		spec = devAccessKeys
	}
	keys, err := token.ParseKeyring(spec)
	if err != nil {
		return nil, fmt.Errorf("JWT_ACCESS_KEYS: %w", err)
	}
	return keys, nil
}

// Verifier builds the credential verifier for the configured mode.
func (c *Config) Verifier(logger *slog.Logger) (middleware.Verifier, error) {
	if c.AuthMode == AuthModeRemote {
		return identityclient.New(identityclient.Config{
			BaseURL: c.IdentityServiceURL,
			Timeout: c.VerifyTimeout,
		}, logger), nil
	}
	keys, err := c.accessKeys()
	if err != nil {
		return nil, err
	}
	v, err := token.NewVerifier(c.JWTIssuer, c.JWTAudience, keys, token.WithLeeway(c.JWTClockSkew))
	if err != nil {
		return nil, fmt.Errorf("token verifier: %w", err)
	}
	return v, nil
}

// Upstreams maps route names to backend base URLs.
func (c *Config) Upstreams() map[string]string {
	return map[string]string{
		"identity":  c.IdentityServiceURL,
		"inventory": c.InventoryServiceURL,
		"orders":    c.OrderServiceURL,
		"analytics": c.AnalyticsServiceURL,
	}
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
