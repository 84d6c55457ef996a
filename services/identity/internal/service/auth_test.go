package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError %s, got %v", code, err)
	assert.Equal(t, code, appErr.Code)
}

func TestAliceFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg := f.register(t, "alice@example.com")
	assert.Equal(t, []string{authz.RoleViewer}, reg.Principal.Roles)

	login, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Str0ng!Pass"})
	require.NoError(t, err)
	require.NotEmpty(t, login.Tokens.AccessToken)

	rotated, err := f.svc.Refresh(ctx, login.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.Tokens.RefreshToken, rotated.Tokens.RefreshToken)

	_, err = f.svc.Refresh(ctx, login.Tokens.RefreshToken)
	requireCode(t, err, apperrors.CodeTokenRevoked)

	claims, err := f.tokens.VerifyAccess(rotated.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.Principal.ID, claims.Subject)

	require.NoError(t, f.svc.Logout(ctx, reg.Principal.ID, rotated.Tokens.RefreshToken))

	_, err = f.svc.Refresh(ctx, rotated.Tokens.RefreshToken)
	requireCode(t, err, apperrors.CodeTokenRevoked)

	// Access credentials are not revocable; they live out their lifetime.
	_, err = f.tokens.VerifyAccess(rotated.Tokens.AccessToken)
	assert.NoError(t, err)
	f.clock.Advance(16 * time.Minute)
	_, err = f.tokens.VerifyAccess(rotated.Tokens.AccessToken)
	assert.Error(t, err)
}

func TestRegister_EmailCaseInsensitiveConflict(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice@example.com")

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "ALICE@example.com", Password: "Str0ng!Pass"})
	requireCode(t, err, apperrors.CodeEmailExists)
}

func TestRegister_PopulatesCacheAndPublishes(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "alice@example.com")

	assert.True(t, f.cache.has(res.Principal.ID))
	assert.Equal(t, 1, f.ledger.liveCount(res.Principal.ID))
	assert.Contains(t, f.events.published(), "erp.identity.registered")
	assert.Empty(t, res.Principal.PasswordHash)
}

func TestLogin_Failures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "alice@example.com")

	_, err := f.svc.Login(ctx, LoginInput{Email: "bob@example.com", Password: "Str0ng!Pass"})
	requireCode(t, err, apperrors.CodeInvalidCredentials)

	_, err = f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong"})
	requireCode(t, err, apperrors.CodeInvalidCredentials)

	_, err = f.svc.SetActive(ctx, res.Principal.ID, false)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Str0ng!Pass"})
	requireCode(t, err, apperrors.CodeAccountDisabled)
}

func TestLogin_RecordsLastLogin(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "alice@example.com")

	_, err := f.svc.Login(context.Background(), LoginInput{Email: "Alice@Example.com", Password: "Str0ng!Pass"})
	require.NoError(t, err)

	stored, err := f.principals.GetByID(context.Background(), res.Principal.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "alice@example.com")

	_, err := f.svc.Refresh(context.Background(), res.Tokens.AccessToken)
	requireCode(t, err, apperrors.CodeInvalidToken)
}

func TestRefresh_Garbage(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Refresh(context.Background(), "not-a-token")
	requireCode(t, err, apperrors.CodeInvalidToken)
}

func TestRefresh_Expired(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "alice@example.com")

	f.clock.Advance(8 * 24 * time.Hour)
	_, err := f.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
	requireCode(t, err, apperrors.CodeTokenExpired)
}

func TestRefresh_ConcurrentRotationHasOneWinner(t *testing.T) {
	f := newFixture(t)
	res := f.register(t, "alice@example.com")

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		revoked int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(context.Background(), res.Tokens.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, apperrors.ErrTokenRevoked) {
				revoked++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, racers-1, revoked)
	assert.Equal(t, 1, f.ledger.liveCount(res.Principal.ID))
}

func TestRefresh_FailedRotationKeepsPresentedTokenLive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "alice@example.com")

	f.ledger.failInsert = true
	_, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.Error(t, err)

	ok, err := f.ledger.IsValid(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, ok, "presented credential must survive a failed rotation")

	f.ledger.failInsert = false
	_, err = f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_PicksUpRoleChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "alice@example.com")

	_, err := f.svc.AssignRole(ctx, res.Principal.ID, authz.RoleAdmin)
	require.NoError(t, err)

	// The earlier access credential keeps its snapshot.
	old, err := f.tokens.VerifyAccess(res.Tokens.AccessToken)
	require.NoError(t, err)
	assert.NotContains(t, old.Permissions, authz.PermOrdersUpdate)

	rotated, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	fresh, err := f.tokens.VerifyAccess(rotated.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Contains(t, fresh.Permissions, authz.PermOrdersUpdate)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")

	err := f.svc.Logout(ctx, bob.Principal.ID, alice.Tokens.RefreshToken)
	requireCode(t, err, apperrors.CodeForbidden)

	err = f.svc.Logout(ctx, alice.Principal.ID, "unknown")
	requireCode(t, err, apperrors.CodeInvalidToken)

	require.NoError(t, f.svc.Logout(ctx, alice.Principal.ID, alice.Tokens.RefreshToken))
	assert.False(t, f.cache.has(alice.Principal.ID))

	// Revoking twice is safe.
	require.NoError(t, f.svc.Logout(ctx, alice.Principal.ID, alice.Tokens.RefreshToken))
	entry, err := f.ledger.FindByToken(ctx, alice.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.True(t, entry.Revoked)
}

func TestLogoutAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "alice@example.com")
	second, err := f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Str0ng!Pass"})
	require.NoError(t, err)

	n, err := f.svc.LogoutAll(ctx, res.Principal.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, tok := range []string{res.Tokens.RefreshToken, second.Tokens.RefreshToken} {
		_, err := f.svc.Refresh(ctx, tok)
		requireCode(t, err, apperrors.CodeTokenRevoked)
	}
	assert.Contains(t, f.events.published(), "erp.identity.sign_out_all")
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "alice@example.com")

	err := f.svc.ChangePassword(ctx, res.Principal.ID, ChangePasswordInput{CurrentPassword: "wrong", NewPassword: "N3w!Passw0rd"})
	requireCode(t, err, apperrors.CodeInvalidCredentials)

	err = f.svc.ChangePassword(ctx, res.Principal.ID, ChangePasswordInput{CurrentPassword: "Str0ng!Pass", NewPassword: "Str0ng!Pass"})
	requireCode(t, err, apperrors.CodeValidation)

	require.NoError(t, f.svc.ChangePassword(ctx, res.Principal.ID, ChangePasswordInput{CurrentPassword: "Str0ng!Pass", NewPassword: "N3w!Passw0rd"}))
	assert.Zero(t, f.ledger.liveCount(res.Principal.ID))

	_, err = f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Str0ng!Pass"})
	requireCode(t, err, apperrors.CodeInvalidCredentials)
	_, err = f.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "N3w!Passw0rd"})
	assert.NoError(t, err)
}

func TestCacheOutageNeverBlocksAuthentication(t *testing.T) {
	f := newFixture(t)
	f.cache.fail = true
	ctx := context.Background()

	res := f.register(t, "alice@example.com")
	_, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)

	sess, err := f.svc.Me(ctx, res.Principal.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", sess.Email)
}

func TestMe_ReadThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "alice@example.com")

	require.NoError(t, f.cache.Invalidate(ctx, res.Principal.ID))

	sess, err := f.svc.Me(ctx, res.Principal.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Principal.ID, sess.PrincipalID)
	assert.True(t, f.cache.has(res.Principal.ID), "miss repopulates the cache")

	again, err := f.svc.Me(ctx, res.Principal.ID)
	require.NoError(t, err)
	assert.Equal(t, sess, again)
}

func TestMe_WithoutCache(t *testing.T) {
	f := newFixtureWithCache(t, false)
	res := f.register(t, "alice@example.com")

	sess, err := f.svc.Me(context.Background(), res.Principal.ID)
	require.NoError(t, err)
	assert.Contains(t, sess.Permissions, authz.PermOrdersRead)
	assert.Zero(t, f.cache.gets)
}
