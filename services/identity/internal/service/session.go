package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
)

// noopCache stands in when the session cache is disabled. Every read misses.
type noopCache struct{}

func (noopCache) Put(context.Context, domain.Session, time.Duration) error { return nil }

func (noopCache) Get(context.Context, string) (*domain.Session, error) {
	return nil, domain.ErrSessionMiss
}

func (noopCache) Invalidate(context.Context, string) error { return nil }

// cachePut populates the session cache. Failures are logged and ignored.
func (s *IdentityService) cachePut(ctx context.Context, p *domain.Principal) {
	if err := s.sessions.Put(ctx, domain.SessionOf(p), s.sessionTTL); err != nil {
		s.log(ctx).WarnContext(ctx, "session cache put failed",
			slog.String("principal_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// cacheInvalidate drops a principal's snapshot. Failures are logged and ignored;
// the snapshot then lives until its TTL.
func (s *IdentityService) cacheInvalidate(ctx context.Context, principalID string) {
	if err := s.sessions.Invalidate(ctx, principalID); err != nil {
		s.log(ctx).WarnContext(ctx, "session cache invalidate failed",
			slog.String("principal_id", principalID),
			slog.String("error", err.Error()),
		)
	}
}

// cachedSession returns the snapshot or nil. A miss is informational and an
// unavailable cache is treated as a miss.
func (s *IdentityService) cachedSession(ctx context.Context, principalID string) *domain.Session {
	sess, err := s.sessions.Get(ctx, principalID)
	if err == nil {
		return sess
	}
	if errors.Is(err, domain.ErrSessionMiss) {
		s.log(ctx).DebugContext(ctx, "session cache miss", slog.String("principal_id", principalID))
	} else {
		s.log(ctx).WarnContext(ctx, "session cache get failed",
			slog.String("principal_id", principalID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Me returns the session snapshot of the principal, reading through the
// cache to the credential store. A miss repopulates the cache.
func (s *IdentityService) Me(ctx context.Context, principalID string) (*domain.Session, error) {
	if sess := s.cachedSession(ctx, principalID); sess != nil {
		return sess, nil
	}

	p, err := s.credentials.FindByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperrors.AccountDisabled()
	}

	s.cachePut(ctx, p)
	sess := domain.SessionOf(p)
	return &sess, nil
}
