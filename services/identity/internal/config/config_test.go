package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	strongAccess  = "access-v1=0123456789abcdef0123456789abcdef"
	strongRefresh = "refresh-v1=fedcba9876543210fedcba9876543210"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_DevelopmentDefaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, 15*time.Minute, cfg.JWTAccessExpiry)
	assert.Equal(t, 168*time.Hour, cfg.JWTRefreshExpiry)
	assert.Equal(t, 30*time.Second, cfg.JWTClockSkew)
	assert.Equal(t, 30*time.Minute, cfg.SessionCacheTTL)
	assert.Equal(t, time.Hour, cfg.RefreshSweepInterval)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.True(t, cfg.SessionCacheEnabled)

	m, err := cfg.TokenManager()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, m.AccessTTL())
}

func TestLoad_Production_RequiresExplicitKeys(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "production"})

	cfg, err := Load()
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be explicitly set")
}

func TestLoad_Production_RejectsShortSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":      "production",
		"JWT_ACCESS_KEYS":  "a1=short",
		"JWT_REFRESH_KEYS": strongRefresh,
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 32 bytes")
	assert.NotContains(t, err.Error(), "short")
}

func TestLoad_Production_RejectsSharedSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":      "production",
		"JWT_ACCESS_KEYS":  "a1=0123456789abcdef0123456789abcdef",
		"JWT_REFRESH_KEYS": "r1=0123456789abcdef0123456789abcdef",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share a secret")
}

func TestLoad_Production_AcceptsStrongKeys(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":      "production",
		"JWT_ACCESS_KEYS":  strongAccess + ",access-v0=00000000000000000000000000000000",
		"JWT_REFRESH_KEYS": strongRefresh,
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}

func TestLoad_Production_RequiresIssuer(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":      "staging",
		"JWT_ACCESS_KEYS":  strongAccess,
		"JWT_REFRESH_KEYS": strongRefresh,
		"JWT_ISSUER":       "",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_ISSUER")
}

func TestLoad_InvertedLifetimes(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":              "development",
		"JWT_ACCESS_TOKEN_EXPIRY":  "2h",
		"JWT_REFRESH_TOKEN_EXPIRY": "1h",
	})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shorter than refresh")
}

func TestLoad_InvalidPort(t *testing.T) {
	setEnvs(t, map[string]string{"IDENTITY_HTTP_PORT": "70000"})

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestLoad_Lists(t *testing.T) {
	setEnvs(t, map[string]string{
		"TRUSTED_PROXY_CIDRS": "10.0.0.0/8,172.16.0.0/12",
		"KAFKA_BROKERS":       "k1:9092,k2:9092",
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "172.16.0.0/12"}, cfg.TrustedProxyCIDRs)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "identity_db", cfg.Postgres().DBName)
	assert.Equal(t, "localhost:6379", cfg.Redis().Addr())
}
