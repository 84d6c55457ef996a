package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/httputil"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/logger"
	pkgmiddleware "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/middleware"
)

// EdgeAuthConfig configures EdgeAuth.
type EdgeAuthConfig struct {
	Verifier pkgmiddleware.Verifier
	Policy   Policy
	Logger   *slog.Logger
}

// EdgeAuth authenticates requests before they are proxied. Identity headers
// supplied by the client are always removed. For protected routes the bearer
// credential is verified, the route permission is checked, and the identity
// headers are re-set from the verified principal.
func EdgeAuth(cfg EdgeAuthConfig) func(http.Handler) http.Handler {
	// Headers are never trusted at the edge, so no upstream is configured.
	authn := pkgmiddleware.NewAuthenticator(pkgmiddleware.AuthConfig{
		Verifier: cfg.Verifier,
		Logger:   cfg.Logger,
	})

	return func(next http.Handler) http.Handler {
		authorize := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := pkgmiddleware.PrincipalFromContext(r.Context())
			if perm, ok := cfg.Policy.Required(r.Method, r.URL.Path); ok && !authz.HasPermission(p, perm) {
				logger.FromContext(r.Context()).InfoContext(r.Context(), "edge permission denied",
					slog.String("required", perm),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteError(w, r, apperrors.InsufficientPermissions(perm), cfg.Logger)
				return
			}
			pkgmiddleware.SetIdentityHeaders(r.Header, p)
			next.ServeHTTP(w, r)
		})
		protected := authn.Required(authorize)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pkgmiddleware.StripIdentityHeaders(r.Header)
			if cfg.Policy.IsPublic(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			protected.ServeHTTP(w, r)
		})
	}
}
