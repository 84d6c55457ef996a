package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/repository"
)

// CredentialStore owns principals and their secrets. Every principal it
// returns has the password hash stripped and permissions resolved.
type CredentialStore struct {
	principals repository.PrincipalRepository
	evaluator  *authz.Evaluator
	hasher     *PasswordHasher
	dummyHash  string
	now        func() time.Time
}

// NewCredentialStore creates a credential store.
func NewCredentialStore(principals repository.PrincipalRepository, evaluator *authz.Evaluator, hasher *PasswordHasher) (*CredentialStore, error) {
	// Compared against when the email is unknown so both login failures
	// cost one bcrypt comparison.
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	return &CredentialStore{
		principals: principals,
		evaluator:  evaluator,
		hasher:     hasher,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// Create registers a new principal. Email is normalized; a duplicate email
// fails with EMAIL_EXISTS. Roles default to authz.DefaultRole.
func (s *CredentialStore) Create(ctx context.Context, reg domain.Registration) (*domain.Principal, error) {
	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, err
	}

	roles := authz.NormalizeRoles(reg.Roles)
	if len(roles) == 0 {
		roles = []string{authz.DefaultRole}
	}

	now := s.now().UTC()
	p := &domain.Principal{
		ID:           uuid.New().String(),
		Email:        domain.NormalizeEmail(reg.Email),
		PasswordHash: hash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Phone:        reg.Phone,
		IsActive:     true,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.principals.Create(ctx, p); err != nil {
		return nil, err
	}

	return s.resolve(ctx, p)
}

// FindByID returns the principal or a NOT_FOUND error.
func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	p, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, id)
	}
	return s.resolve(ctx, p)
}

// FindByEmail returns the principal or a NOT_FOUND error.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, notFound(err, domain.NormalizeEmail(email))
	}
	return s.resolve(ctx, p)
}

// EmailExists reports whether the email is registered.
func (s *CredentialStore) EmailExists(ctx context.Context, email string) (bool, error) {
	return s.principals.EmailExists(ctx, email)
}

// VerifySecret reports whether plain matches hash.
func (s *CredentialStore) VerifySecret(plain, hash string) bool {
	return s.hasher.Verify(plain, hash)
}

// Authenticate checks an email and password. Unknown email and wrong
// password are indistinguishable to the caller. A deactivated principal is
// reported only after its password has been verified.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (*domain.Principal, error) {
	p, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, apperrors.InvalidCredentials()
		}
		return nil, fmt.Errorf("get principal by email: %w", err)
	}

	if !s.hasher.Verify(password, p.PasswordHash) {
		return nil, apperrors.InvalidCredentials()
	}
	if !p.IsActive {
		return nil, apperrors.AccountDisabled()
	}

	return s.resolve(ctx, p)
}

// CheckSecret verifies the current password of principal id.
func (s *CredentialStore) CheckSecret(ctx context.Context, id, plain string) error {
	p, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return notFound(err, id)
	}
	if !s.hasher.Verify(plain, p.PasswordHash) {
		return apperrors.InvalidCredentials()
	}
	return nil
}

// UpdateSecret replaces the password of principal id.
func (s *CredentialStore) UpdateSecret(ctx context.Context, id, newPlain string) error {
	hash, err := s.hasher.Hash(newPlain)
	if err != nil {
		return err
	}
	return s.principals.UpdatePassword(ctx, id, hash)
}

// SetActive activates or deactivates principal id.
func (s *CredentialStore) SetActive(ctx context.Context, id string, active bool) error {
	return s.principals.SetActive(ctx, id, active)
}

// SetVerified sets the email-verified flag of principal id.
func (s *CredentialStore) SetVerified(ctx context.Context, id string, verified bool) error {
	return s.principals.SetVerified(ctx, id, verified)
}

// TouchLastLogin records a successful login.
func (s *CredentialStore) TouchLastLogin(ctx context.Context, id string) error {
	return s.principals.TouchLastLogin(ctx, id, s.now().UTC())
}

// resolve strips the hash and fills permissions from the principal's roles.
func (s *CredentialStore) resolve(ctx context.Context, p *domain.Principal) (*domain.Principal, error) {
	out := p.Sanitized()
	perms, err := s.evaluator.PermissionsForRoles(ctx, out.Roles)
	if err != nil {
		return nil, fmt.Errorf("resolve permissions: %w", err)
	}
	out.Permissions = perms
	return out, nil
}

func notFound(err error, id string) error {
	if errors.Is(err, apperrors.ErrNotFound) {
		return apperrors.NotFound("principal", id)
	}
	return err
}
