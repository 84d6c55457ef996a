package repository

import (
	"context"
	"time"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
)

// PrincipalRepository defines persistence operations for principals.
// Returned principals carry their password hash and role names; permissions
// are resolved by the caller.
type PrincipalRepository interface {
	// Create inserts the principal and its role assignments in one transaction.
	// A duplicate email yields an EMAIL_EXISTS error.
	Create(ctx context.Context, p *domain.Principal) error

	// GetByID retrieves a principal by its identifier.
	GetByID(ctx context.Context, id string) (*domain.Principal, error)

	// GetByEmail retrieves a principal by its normalized email.
	GetByEmail(ctx context.Context, email string) (*domain.Principal, error)

	// EmailExists reports whether a principal with the email exists.
	EmailExists(ctx context.Context, email string) (bool, error)

	// UpdatePassword replaces the stored password hash.
	UpdatePassword(ctx context.Context, id, passwordHash string) error

	// SetActive activates or deactivates a principal.
	SetActive(ctx context.Context, id string, active bool) error

	// SetVerified sets the email-verified flag.
	SetVerified(ctx context.Context, id string, verified bool) error

	// TouchLastLogin records a successful authentication.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// RoleRepository defines persistence operations for roles and assignments.
type RoleRepository interface {
	authz.RoleSource

	// ListRoles returns every role with its permission bundle.
	ListRoles(ctx context.Context) ([]authz.Role, error)

	// Assign grants a role to a principal. Assigning a held role is a no-op.
	Assign(ctx context.Context, principalID, role string) error

	// Remove revokes a role from a principal.
	Remove(ctx context.Context, principalID, role string) error
}

// RefreshLedger is the durable record of issued refresh credentials.
// Credentials are addressed by their string form and stored hashed.
type RefreshLedger interface {
	// Record stores a newly issued refresh credential.
	Record(ctx context.Context, grant domain.RefreshGrant) (*domain.RefreshToken, error)

	// FindByToken returns the entry for a credential in any state.
	FindByToken(ctx context.Context, token string) (*domain.RefreshToken, error)

	// IsValid reports whether the entry exists, is not revoked and has not expired.
	IsValid(ctx context.Context, token string) (bool, error)

	// Revoke marks the entry revoked. Revoking twice is safe.
	Revoke(ctx context.Context, token string) error

	// RevokeAllForPrincipal revokes every live entry of a principal and
	// returns how many were revoked.
	RevokeAllForPrincipal(ctx context.Context, principalID string) (int64, error)

	// Rotate revokes the presented entry and records next atomically. It
	// fails with TOKEN_REVOKED when the presented entry is no longer live,
	// which is what the loser of a concurrent rotation observes.
	Rotate(ctx context.Context, presented string, next domain.RefreshGrant) (*domain.RefreshToken, error)

	// PurgeExpired deletes entries whose expiry has passed.
	PurgeExpired(ctx context.Context) (int64, error)

	// ListActive returns a page of live entries for a principal and the total count.
	ListActive(ctx context.Context, principalID string, limit, offset int) ([]domain.RefreshToken, int, error)
}

// SessionCache is an expiring mirror of active principals. Implementations
// return domain.ErrSessionMiss when no entry exists.
type SessionCache interface {
	Put(ctx context.Context, s domain.Session, ttl time.Duration) error
	Get(ctx context.Context, principalID string) (*domain.Session, error)
	Invalidate(ctx context.Context, principalID string) error
}
