package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/httputil"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/logger"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/token"
)

type contextKeyType string

const (
	principalKey  contextKeyType = "principal"
	credentialKey contextKeyType = "credential"
)

var authDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_decisions_total",
		Help: "Access control decisions by outcome",
	},
	[]string{"outcome"},
)

// Verifier validates an access credential and returns the principal it asserts.
// *token.Manager and *identityclient.Client implement it.
type Verifier interface {
	Verify(ctx context.Context, credential string) (*authz.Principal, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, credential string) (*authz.Principal, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, credential string) (*authz.Principal, error) {
	return f(ctx, credential)
}

// AuthConfig configures the access control middleware.
type AuthConfig struct {
	Verifier Verifier
	// Upstream, when set, lets a trusted gateway pass a pre-resolved identity in headers.
	Upstream *TrustedUpstream
	Logger   *slog.Logger
}

// Authenticator is the request-time gatekeeper.
type Authenticator struct {
	verifier Verifier
	upstream *TrustedUpstream
	logger   *slog.Logger
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(cfg AuthConfig) *Authenticator {
	l := cfg.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Authenticator{verifier: cfg.Verifier, upstream: cfg.Upstream, logger: l}
}

// Required rejects any request that does not carry a valid credential.
func (a *Authenticator) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, credential, err := a.authenticate(r)
		if err != nil {
			authDecisions.WithLabelValues(outcomeOf(err)).Inc()
			a.reject(w, r, err)
			return
		}
		authDecisions.WithLabelValues("allowed").Inc()
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p, credential)))
	})
}

// Optional attaches the principal when a valid credential is present and
// otherwise proceeds unauthenticated.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, credential, err := a.authenticate(r)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNoToken) {
				logger.FromContext(r.Context()).DebugContext(r.Context(), "optional auth ignored credential",
					slog.String("reason", outcomeOf(err)),
				)
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p, credential)))
	})
}

// Auth returns the required variant as a middleware function.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return NewAuthenticator(cfg).Required
}

// OptionalAuth returns the optional variant as a middleware function.
func OptionalAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return NewAuthenticator(cfg).Optional
}

func (a *Authenticator) authenticate(r *http.Request) (*authz.Principal, string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if a.upstream != nil {
			if p, ok := a.upstream.Principal(r); ok {
				return p, "", nil
			}
		}
		return nil, "", apperrors.NoToken()
	}

	credential, ok := BearerToken(header)
	if !ok {
		return nil, "", apperrors.NoToken()
	}
	if a.verifier == nil {
		return nil, "", apperrors.InvalidToken("bearer credentials are not accepted here")
	}

	p, err := a.verifier.Verify(r.Context(), credential)
	if err != nil {
		return nil, "", translateVerifyError(err)
	}
	return p, credential, nil
}

func translateVerifyError(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, token.ErrExpired):
		return apperrors.TokenExpired()
	case errors.Is(err, token.ErrWrongType):
		return apperrors.InvalidToken("token type is not accepted here")
	case errors.Is(err, token.ErrMalformed):
		return apperrors.InvalidToken("invalid token")
	default:
		return apperrors.Internal(err)
	}
}

func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
		logger.FromContext(r.Context()).InfoContext(r.Context(), "request rejected",
			slog.String("code", appErr.Code),
			slog.String("path", r.URL.Path),
		)
	}
	httputil.WriteError(w, r, err, a.logger)
}

func outcomeOf(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}

// BearerToken extracts the credential from an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	credential := strings.TrimSpace(parts[1])
	if credential == "" {
		return "", false
	}
	return credential, true
}

// RequirePermission rejects authenticated principals whose permission set
// lacks perm. It must be mounted after Auth.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return RequireAnyPermission(perm)
}

// RequireAnyPermission passes principals holding at least one of perms.
func RequireAnyPermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httputil.WriteError(w, r, apperrors.NoToken(), nil)
				return
			}
			if !authz.HasAnyPermission(p, perms...) {
				authDecisions.WithLabelValues("insufficient_permissions").Inc()
				logger.FromContext(r.Context()).InfoContext(r.Context(), "permission denied",
					slog.String("required", strings.Join(perms, ",")),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteError(w, r, apperrors.InsufficientPermissions(strings.Join(perms, " or ")), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole passes principals holding at least one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				httputil.WriteError(w, r, apperrors.NoToken(), nil)
				return
			}
			if !authz.HasRole(p, roles...) {
				authDecisions.WithLabelValues("forbidden").Inc()
				httputil.WriteError(w, r, apperrors.Forbidden("role not permitted"), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withPrincipal(ctx context.Context, p *authz.Principal, credential string) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	if credential != "" {
		ctx = context.WithValue(ctx, credentialKey, credential)
	}
	ctx = logger.WithPrincipalID(ctx, p.ID)
	l := logger.FromContext(ctx)
	if l != slog.Default() {
		ctx = logger.NewContext(ctx, l.With(slog.String("principal_id", p.ID)))
	}
	return ctx
}

// ContextWithPrincipal attaches p to ctx. Intended for tests and internal callers.
func ContextWithPrincipal(ctx context.Context, p *authz.Principal) context.Context {
	return withPrincipal(ctx, p, "")
}

// PrincipalFromContext returns the authenticated principal.
func PrincipalFromContext(ctx context.Context) (*authz.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*authz.Principal)
	return p, ok && p != nil
}

// PrincipalIDFromContext returns the authenticated principal id or "".
func PrincipalIDFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.ID
	}
	return ""
}

// CredentialFromContext returns the bearer credential the request was authenticated with.
func CredentialFromContext(ctx context.Context) (string, bool) {
	c, ok := ctx.Value(credentialKey).(string)
	return c, ok && c != ""
}
