// Package identityclient verifies access credentials against the identity
// service over HTTP. It implements middleware.Verifier for callers that do not
// hold the signing keys.
package identityclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/httpclient"
)

const (
	serviceName = "identity"
	verifyPath  = "/api/v1/auth/verify"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Breaker overrides the default breaker settings when Name is set.
	Breaker httpclient.CircuitBreakerConfig
}

// Client calls GET /api/v1/auth/verify through a circuit breaker.
type Client struct {
	baseURL string
	http    *httpclient.CircuitBreakerClient
	logger  *slog.Logger
}

// New creates a Client. Transport failures are not retried: a verify call
// sits on the request path of every protected route.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	base := httpclient.New(httpclient.Config{
		Timeout:         timeout,
		MaxRetries:      0,
		RetryWaitMin:    100 * time.Millisecond,
		RetryWaitMax:    time.Second,
		MaxConnsPerHost: 100,
	})
	breaker := cfg.Breaker
	if breaker.Name == "" {
		breaker = httpclient.DefaultCircuitBreakerConfig("identity-verify")
	}
	cb := httpclient.NewCircuitBreakerClient(base, breaker, logger)
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cb,
		logger:  logger,
	}
}

type verifyEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Authenticated bool             `json:"authenticated"`
		Principal     *authz.Principal `json:"principal"`
	} `json:"data"`
}

// Verify implements middleware.Verifier. Credential outcomes come back as
// the identity service's AppErrors; an unreachable service is ServiceUnavailable.
func (c *Client) Verify(ctx context.Context, credential string) (*authz.Principal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+verifyPath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create verify request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if errors.Is(err, httpclient.ErrCircuitOpen) {
			return nil, apperrors.ServiceUnavailable("identity service unavailable")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnContext(ctx, "identity verify call failed", slog.String("error", err.Error()))
		return nil, apperrors.ServiceUnavailable("identity service unavailable")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, serviceName)
	}
	defer func() { _ = resp.Body.Close() }()

	var env verifyEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode verify response: %w", err)
	}
	if !env.Data.Authenticated || env.Data.Principal == nil || env.Data.Principal.ID == "" {
		return nil, apperrors.InvalidToken("invalid token")
	}
	return env.Data.Principal, nil
}
