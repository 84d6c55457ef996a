package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
)

func TestPrincipals_CreateAndLookup(t *testing.T) {
	ctx := context.Background()
	roles := NewRoles(authz.CatalogRoles())
	store := NewPrincipals(roles)

	p := &domain.Principal{ID: "p-1", Email: "alice@example.com", Roles: []string{authz.RoleViewer}, IsActive: true}
	require.NoError(t, store.Create(ctx, p))

	got, err := store.GetByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{authz.RoleViewer}, got.Roles)

	err = store.Create(ctx, &domain.Principal{ID: "p-2", Email: "alice@example.com"})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeEmailExists, appErr.Code)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPrincipals_CreateWithUnknownRoleRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewPrincipals(NewRoles(authz.CatalogRoles()))

	err := store.Create(ctx, &domain.Principal{ID: "p-1", Email: "a@example.com", Roles: []string{"ghost"}})
	require.Error(t, err)

	ok, err := store.EmailExists(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLedger_RotateOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := NewLedger(func() time.Time { return now })

	_, err := l.Record(ctx, domain.RefreshGrant{PrincipalID: "p-1", Token: "r1", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	next, err := l.Rotate(ctx, "r1", domain.RefreshGrant{PrincipalID: "p-1", Token: "r2", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	old, err := l.FindByToken(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, old.Revoked)
	require.NotNil(t, old.ReplacedBy)
	assert.Equal(t, next.ID, *old.ReplacedBy)

	_, err = l.Rotate(ctx, "r1", domain.RefreshGrant{PrincipalID: "p-1", Token: "r3", ExpiresAt: now.Add(time.Hour)})
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestSessions_Expire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c := NewSessions(func() time.Time { return now })

	require.NoError(t, c.Put(ctx, domain.Session{PrincipalID: "p-1"}, time.Minute))
	_, err := c.Get(ctx, "p-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = c.Get(ctx, "p-1")
	assert.ErrorIs(t, err, domain.ErrSessionMiss)
}
