package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/logger"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/token"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/auth"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/event"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/repository"
)

// DefaultSessionTTL is how long a session snapshot stays cached.
const DefaultSessionTTL = 30 * time.Minute

// IdentityService implements credential issuance, rotation and revocation
// and the administrative operations on principals.
type IdentityService struct {
	credentials *auth.CredentialStore
	roles       repository.RoleRepository
	ledger      repository.RefreshLedger
	sessions    repository.SessionCache
	tokens      *token.Manager
	producer    *event.Producer
	sessionTTL  time.Duration
	logger      *slog.Logger
}

// Deps are the collaborators of an IdentityService. Sessions and Producer
// are optional; a nil cache disables caching and a nil producer disables
// event publishing.
type Deps struct {
	Credentials *auth.CredentialStore
	Roles       repository.RoleRepository
	Ledger      repository.RefreshLedger
	Sessions    repository.SessionCache
	Tokens      *token.Manager
	Producer    *event.Producer
	SessionTTL  time.Duration
	Logger      *slog.Logger
}

// NewIdentityService creates a new identity service.
func NewIdentityService(d Deps) *IdentityService {
	if d.Sessions == nil {
		d.Sessions = noopCache{}
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = DefaultSessionTTL
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &IdentityService{
		credentials: d.Credentials,
		roles:       d.Roles,
		ledger:      d.Ledger,
		sessions:    d.Sessions,
		tokens:      d.Tokens,
		producer:    d.Producer,
		sessionTTL:  d.SessionTTL,
		logger:      d.Logger,
	}
}

// --- Input/Output types ---

// RegisterInput holds the parameters for registering a principal.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// LoginInput holds the parameters for a login.
type LoginInput struct {
	Email    string
	Password string
}

// ChangePasswordInput holds the parameters for a password change.
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
}

// AuthResult is returned by every operation that issues credentials.
type AuthResult struct {
	Principal *domain.Principal `json:"principal"`
	Tokens    *token.Pair       `json:"tokens"`
}

func (s *IdentityService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}

func subjectOf(p *domain.Principal) token.Subject {
	return token.Subject{
		ID:          p.ID,
		Email:       p.Email,
		Roles:       p.Roles,
		Permissions: p.Permissions,
	}
}

// ListRoles returns every role with its permission bundle.
func (s *IdentityService) ListRoles(ctx context.Context) ([]authz.Role, error) {
	return s.roles.ListRoles(ctx)
}
