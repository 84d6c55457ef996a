package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/pagination"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/event"
)

// GetPrincipal returns a principal with its current roles and permissions.
func (s *IdentityService) GetPrincipal(ctx context.Context, id string) (*domain.Principal, error) {
	return s.credentials.FindByID(ctx, id)
}

// SetActive activates or deactivates a principal. Deactivation revokes every
// refresh credential; outstanding access credentials expire on their own.
func (s *IdentityService) SetActive(ctx context.Context, id string, active bool) (*domain.Principal, error) {
	if err := s.credentials.SetActive(ctx, id, active); err != nil {
		return nil, err
	}

	if !active {
		n, err := s.ledger.RevokeAllForPrincipal(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("revoke refresh tokens: %w", err)
		}
		revokedTokens.Add(float64(n))
		s.publishSession(ctx, event.TypeDeactivated, event.SessionData{PrincipalID: id, Revoked: n, Reason: "admin"})
	}
	s.cacheInvalidate(ctx, id)

	s.log(ctx).InfoContext(ctx, "principal active flag changed",
		slog.String("target_id", id),
		slog.Bool("active", active),
	)

	return s.credentials.FindByID(ctx, id)
}

// SetVerified sets a principal's email-verified flag.
func (s *IdentityService) SetVerified(ctx context.Context, id string, verified bool) (*domain.Principal, error) {
	if err := s.credentials.SetVerified(ctx, id, verified); err != nil {
		return nil, err
	}
	s.cacheInvalidate(ctx, id)
	return s.credentials.FindByID(ctx, id)
}

// AssignRole grants a role. The change reaches access credentials at their
// next issuance; tokens already issued keep their permission snapshot.
func (s *IdentityService) AssignRole(ctx context.Context, id, role string) (*domain.Principal, error) {
	if _, err := s.credentials.FindByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.roles.Assign(ctx, id, role); err != nil {
		return nil, err
	}
	return s.rolesChanged(ctx, id, role, "assigned")
}

// RemoveRole revokes a role.
func (s *IdentityService) RemoveRole(ctx context.Context, id, role string) (*domain.Principal, error) {
	if _, err := s.credentials.FindByID(ctx, id); err != nil {
		return nil, err
	}
	if err := s.roles.Remove(ctx, id, role); err != nil {
		return nil, err
	}
	return s.rolesChanged(ctx, id, role, "removed")
}

func (s *IdentityService) rolesChanged(ctx context.Context, id, role, change string) (*domain.Principal, error) {
	s.cacheInvalidate(ctx, id)

	p, err := s.credentials.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log(ctx).InfoContext(ctx, "principal roles changed",
		slog.String("target_id", id),
		slog.String("role", role),
		slog.String("change", change),
	)
	if s.producer != nil {
		if err := s.producer.PublishRolesChanged(ctx, p); err != nil {
			s.log(ctx).ErrorContext(ctx, "failed to publish roles_changed event",
				slog.String("principal_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return p, nil
}

// SignOutPrincipal revokes every refresh credential of another principal.
func (s *IdentityService) SignOutPrincipal(ctx context.Context, id string) (int64, error) {
	if _, err := s.credentials.FindByID(ctx, id); err != nil {
		return 0, err
	}
	n, err := s.revokeAll(ctx, id, "admin")
	observe("sign_out_principal", err)
	return n, err
}

// ListSessions returns a page of a principal's live refresh credentials.
func (s *IdentityService) ListSessions(ctx context.Context, id string, params pagination.Params) (pagination.Result[domain.SessionInfo], error) {
	entries, total, err := s.ledger.ListActive(ctx, id, params.PerPage, params.Offset)
	if err != nil {
		return pagination.Result[domain.SessionInfo]{}, fmt.Errorf("list sessions: %w", err)
	}

	out := make([]domain.SessionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, domain.SessionInfo{ID: e.ID, CreatedAt: e.CreatedAt, ExpiresAt: e.ExpiresAt})
	}
	return pagination.NewResult(out, total, params), nil
}
