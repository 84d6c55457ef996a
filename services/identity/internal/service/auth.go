package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/token"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/event"
)

// Register creates a principal with the default role and issues its first
// credential pair.
func (s *IdentityService) Register(ctx context.Context, input RegisterInput) (res *AuthResult, err error) {
	defer func() { observe("register", err) }()

	p, err := s.credentials.Create(ctx, domain.Registration{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Phone:     input.Phone,
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.issue(ctx, p)
	if err != nil {
		return nil, err
	}

	s.log(ctx).InfoContext(ctx, "principal registered", slog.String("principal_id", p.ID))

	if s.producer != nil {
		if err := s.producer.PublishRegistered(ctx, p); err != nil {
			s.log(ctx).ErrorContext(ctx, "failed to publish registered event",
				slog.String("principal_id", p.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return &AuthResult{Principal: p, Tokens: pair}, nil
}

// Login authenticates an email and password and issues a credential pair.
func (s *IdentityService) Login(ctx context.Context, input LoginInput) (res *AuthResult, err error) {
	defer func() { observe("login", err) }()

	p, err := s.credentials.Authenticate(ctx, input.Email, input.Password)
	if err != nil {
		return nil, err
	}

	if err := s.credentials.TouchLastLogin(ctx, p.ID); err != nil {
		s.log(ctx).WarnContext(ctx, "failed to record last login",
			slog.String("principal_id", p.ID),
			slog.String("error", err.Error()),
		)
	}

	pair, err := s.issue(ctx, p)
	if err != nil {
		return nil, err
	}

	s.log(ctx).InfoContext(ctx, "principal logged in", slog.String("principal_id", p.ID))
	s.publishSession(ctx, event.TypeLoggedIn, event.SessionData{PrincipalID: p.ID})

	return &AuthResult{Principal: p, Tokens: pair}, nil
}

// issue mints a pair, records its refresh credential and populates the cache.
func (s *IdentityService) issue(ctx context.Context, p *domain.Principal) (*token.Pair, error) {
	pair, err := s.tokens.IssuePair(subjectOf(p))
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	if _, err := s.ledger.Record(ctx, domain.RefreshGrant{
		PrincipalID: p.ID,
		Token:       pair.RefreshToken,
		TokenID:     pair.RefreshID,
		ExpiresAt:   pair.RefreshExpiresAt,
	}); err != nil {
		return nil, fmt.Errorf("record refresh token: %w", err)
	}

	s.cachePut(ctx, p)
	return pair, nil
}

// Refresh exchanges a live refresh credential for a new pair. The presented
// credential is revoked atomically with recording its successor; replaying
// it afterwards fails with TOKEN_REVOKED.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (res *AuthResult, err error) {
	defer func() { observe("refresh", err) }()

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, refreshVerifyError(err)
	}

	valid, err := s.ledger.IsValid(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("check refresh token: %w", err)
	}
	if !valid {
		s.log(ctx).WarnContext(ctx, "refresh with revoked credential",
			slog.String("principal_id", claims.Subject),
		)
		return nil, apperrors.TokenRevoked()
	}

	p, err := s.credentials.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidToken("refresh token subject no longer exists")
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, apperrors.AccountDisabled()
	}

	pair, err := s.tokens.IssuePair(subjectOf(p))
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	if _, err := s.ledger.Rotate(ctx, refreshToken, domain.RefreshGrant{
		PrincipalID: p.ID,
		Token:       pair.RefreshToken,
		TokenID:     pair.RefreshID,
		ExpiresAt:   pair.RefreshExpiresAt,
	}); err != nil {
		if errors.Is(err, apperrors.ErrTokenRevoked) {
			s.log(ctx).WarnContext(ctx, "lost concurrent refresh rotation",
				slog.String("principal_id", p.ID),
			)
			return nil, err
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	s.cachePut(ctx, p)
	s.log(ctx).InfoContext(ctx, "refresh token rotated", slog.String("principal_id", p.ID))

	return &AuthResult{Principal: p, Tokens: pair}, nil
}

func refreshVerifyError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return apperrors.TokenExpired()
	case errors.Is(err, token.ErrWrongType):
		return apperrors.InvalidToken("credential is not a refresh token")
	default:
		return apperrors.InvalidToken("invalid refresh token")
	}
}

// Logout revokes the presented refresh credential. The credential must
// belong to principalID. Logging out an already revoked credential succeeds.
// Access credentials issued earlier remain valid until they expire.
func (s *IdentityService) Logout(ctx context.Context, principalID, refreshToken string) (err error) {
	defer func() { observe("logout", err) }()

	entry, err := s.ledger.FindByToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidToken("unknown refresh token")
		}
		return fmt.Errorf("find refresh token: %w", err)
	}
	if entry.PrincipalID != principalID {
		return apperrors.Forbidden("refresh token belongs to another principal")
	}

	if err := s.ledger.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	if !entry.Revoked {
		revokedTokens.Inc()
	}

	s.cacheInvalidate(ctx, principalID)
	s.log(ctx).InfoContext(ctx, "principal logged out", slog.String("principal_id", principalID))
	s.publishSession(ctx, event.TypeSignedOut, event.SessionData{PrincipalID: principalID, Revoked: 1})

	return nil
}

// LogoutAll revokes every live refresh credential of the principal.
func (s *IdentityService) LogoutAll(ctx context.Context, principalID string) (int64, error) {
	n, err := s.revokeAll(ctx, principalID, "self")
	observe("logout_all", err)
	return n, err
}

// ChangePassword verifies the current password, stores the new one and
// revokes every refresh credential of the principal.
func (s *IdentityService) ChangePassword(ctx context.Context, principalID string, input ChangePasswordInput) (err error) {
	defer func() { observe("change_password", err) }()

	if err := s.credentials.CheckSecret(ctx, principalID, input.CurrentPassword); err != nil {
		return err
	}
	if input.CurrentPassword == input.NewPassword {
		return apperrors.Validation(map[string]string{"newPassword": "must differ from the current password"})
	}
	if err := s.credentials.UpdateSecret(ctx, principalID, input.NewPassword); err != nil {
		return err
	}

	n, err := s.ledger.RevokeAllForPrincipal(ctx, principalID)
	if err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	revokedTokens.Add(float64(n))
	s.cacheInvalidate(ctx, principalID)

	s.log(ctx).InfoContext(ctx, "password changed",
		slog.String("principal_id", principalID),
		slog.Int64("revoked", n),
	)
	s.publishSession(ctx, event.TypePasswordChanged, event.SessionData{PrincipalID: principalID, Revoked: n})

	return nil
}

// revokeAll revokes every live refresh credential of principalID and drops
// its session snapshot.
func (s *IdentityService) revokeAll(ctx context.Context, principalID, reason string) (int64, error) {
	n, err := s.ledger.RevokeAllForPrincipal(ctx, principalID)
	if err != nil {
		return 0, fmt.Errorf("revoke refresh tokens: %w", err)
	}
	revokedTokens.Add(float64(n))
	s.cacheInvalidate(ctx, principalID)

	s.log(ctx).InfoContext(ctx, "principal signed out everywhere",
		slog.String("principal_id", principalID),
		slog.String("reason", reason),
		slog.Int64("revoked", n),
	)
	s.publishSession(ctx, event.TypeSignOutAll, event.SessionData{PrincipalID: principalID, Revoked: n, Reason: reason})

	return n, nil
}

func (s *IdentityService) publishSession(ctx context.Context, eventType string, data event.SessionData) {
	if s.producer == nil {
		return
	}
	if err := s.producer.PublishSession(ctx, eventType, data); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to publish session event",
			slog.String("type", eventType),
			slog.String("principal_id", data.PrincipalID),
			slog.String("error", err.Error()),
		)
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "error"
}
