package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	pkgmiddleware "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/middleware"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/token"
)

const (
	testIssuer   = "identity-service"
	testAudience = "erp"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type edgeFixture struct {
	minter   *token.Manager
	verifier *token.Manager
	clock    time.Time
}

func newEdgeFixture(t *testing.T) *edgeFixture {
	t.Helper()
	access, err := token.NewKeyring(token.Key{ID: "a1", Secret: []byte("access-secret-access-secret-0001")})
	require.NoError(t, err)
	refresh, err := token.NewKeyring(token.Key{ID: "r1", Secret: []byte("refresh-secret-refresh-secret-01")})
	require.NoError(t, err)

	f := &edgeFixture{clock: time.Now()}
	clock := token.WithClock(func() time.Time { return f.clock })
	f.minter, err = token.NewManager(token.Config{
		Issuer:      testIssuer,
		Audience:    testAudience,
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  time.Hour,
		AccessKeys:  access,
		RefreshKeys: refresh,
	}, clock)
	require.NoError(t, err)
	f.verifier, err = token.NewVerifier(testIssuer, testAudience, access, clock)
	require.NoError(t, err)
	return f
}

func (f *edgeFixture) pair(t *testing.T, id string, roles ...string) *token.Pair {
	t.Helper()
	perms, err := authz.NewEvaluator(authz.NewStaticSource(authz.CatalogRoles())).
		PermissionsForRoles(context.Background(), roles)
	require.NoError(t, err)
	p, err := f.minter.IssuePair(token.Subject{ID: id, Email: id + "@example.com", Roles: roles, Permissions: perms})
	require.NoError(t, err)
	return p
}

func (f *edgeFixture) handler(next http.Handler) http.Handler {
	return EdgeAuth(EdgeAuthConfig{
		Verifier: f.verifier,
		Policy:   DefaultPolicy(),
		Logger:   newTestLogger(),
	})(next)
}

// headerCapture echoes the identity headers the backend would receive.
func headerCapture() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":          r.Header.Get(pkgmiddleware.HeaderUserID),
			"email":       r.Header.Get(pkgmiddleware.HeaderUserEmail),
			"roles":       r.Header.Get(pkgmiddleware.HeaderUserRoles),
			"permissions": r.Header.Get(pkgmiddleware.HeaderUserPermissions),
		})
	}
}

func serve(h http.Handler, method, path, bearer string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var m map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestEdgeAuth_ValidToken_SetsIdentityHeaders(t *testing.T) {
	f := newEdgeFixture(t)
	pair := f.pair(t, "p-1", authz.RoleViewer)

	rec := serve(f.handler(headerCapture()), http.MethodGet, "/api/v1/orders", pair.AccessToken, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeMap(t, rec)
	assert.Equal(t, "p-1", got["id"])
	assert.Equal(t, "p-1@example.com", got["email"])
	assert.Equal(t, authz.RoleViewer, got["roles"])
	assert.Contains(t, got["permissions"], authz.PermOrdersRead)
}

func TestEdgeAuth_SpoofedHeadersReplaced(t *testing.T) {
	f := newEdgeFixture(t)
	pair := f.pair(t, "p-1", authz.RoleViewer)

	rec := serve(f.handler(headerCapture()), http.MethodGet, "/api/v1/orders", pair.AccessToken, map[string]string{
		pkgmiddleware.HeaderUserID:          "attacker",
		pkgmiddleware.HeaderUserRoles:       authz.RoleAdmin,
		pkgmiddleware.HeaderUserPermissions: authz.PermOrdersUpdate,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeMap(t, rec)
	assert.Equal(t, "p-1", got["id"])
	assert.Equal(t, authz.RoleViewer, got["roles"])
	assert.NotContains(t, got["permissions"], authz.PermOrdersUpdate)
}

func TestEdgeAuth_SpoofedHeadersStrippedOnPublicRoute(t *testing.T) {
	f := newEdgeFixture(t)

	rec := serve(f.handler(headerCapture()), http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		pkgmiddleware.HeaderUserID:    "attacker",
		pkgmiddleware.HeaderUserRoles: authz.RoleAdmin,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeMap(t, rec)
	assert.Empty(t, got["id"])
	assert.Empty(t, got["roles"])
}

func TestEdgeAuth_HeadersWithoutTokenRejected(t *testing.T) {
	f := newEdgeFixture(t)

	rec := serve(f.handler(headerCapture()), http.MethodGet, "/api/v1/orders", "", map[string]string{
		pkgmiddleware.HeaderUserID:          "attacker",
		pkgmiddleware.HeaderUserPermissions: authz.PermOrdersRead,
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "NO_TOKEN", errorCode(t, rec))
}

func TestEdgeAuth_CredentialFailures(t *testing.T) {
	f := newEdgeFixture(t)
	pair := f.pair(t, "p-1", authz.RoleViewer)

	tests := []struct {
		name   string
		bearer string
		code   string
	}{
		{"missing", "", "NO_TOKEN"},
		{"garbage", "not-a-jwt", "INVALID_TOKEN"},
		{"refresh presented as access", pair.RefreshToken, "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(f.handler(headerCapture()), http.MethodGet, "/api/v1/inventory", tt.bearer, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestEdgeAuth_ExpiredToken(t *testing.T) {
	f := newEdgeFixture(t)
	pair := f.pair(t, "p-1", authz.RoleViewer)
	f.clock = f.clock.Add(16 * time.Minute)

	rec := serve(f.handler(headerCapture()), http.MethodGet, "/api/v1/inventory", pair.AccessToken, nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "TOKEN_EXPIRED", errorCode(t, rec))
}

func TestEdgeAuth_RoutePermissions(t *testing.T) {
	f := newEdgeFixture(t)
	viewer := f.pair(t, "viewer-1", authz.RoleViewer).AccessToken
	manager := f.pair(t, "manager-1", authz.RoleManager).AccessToken
	admin := f.pair(t, "admin-1", authz.RoleAdmin).AccessToken

	tests := []struct {
		name   string
		bearer string
		method string
		path   string
		want   int
	}{
		{"viewer reads orders", viewer, http.MethodGet, "/api/v1/orders/42", http.StatusOK},
		{"viewer cannot update orders", viewer, http.MethodPatch, "/api/v1/orders/42", http.StatusForbidden},
		{"viewer cannot create inventory", viewer, http.MethodPost, "/api/v1/inventory", http.StatusForbidden},
		{"manager updates orders", manager, http.MethodPut, "/api/v1/orders/42", http.StatusOK},
		{"manager deletes inventory", manager, http.MethodDelete, "/api/v1/inventory/7", http.StatusOK},
		{"manager cannot write analytics", manager, http.MethodPost, "/api/v1/analytics/reports", http.StatusForbidden},
		{"admin writes analytics", admin, http.MethodPost, "/api/v1/analytics/reports", http.StatusOK},
		{"unguarded identity route", viewer, http.MethodGet, "/api/v1/auth/me", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(f.handler(headerCapture()), tt.method, tt.path, tt.bearer, nil)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "INSUFFICIENT_PERMISSIONS", errorCode(t, rec))
			}
		})
	}
}

func TestEdgeAuth_OptionsAlwaysPasses(t *testing.T) {
	f := newEdgeFixture(t)

	rec := serve(f.handler(headerCapture()), http.MethodOptions, "/api/v1/orders", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEdgeAuth_RemoteStyleVerifier(t *testing.T) {
	verifier := pkgmiddleware.VerifierFunc(func(_ context.Context, credential string) (*authz.Principal, error) {
		assert.Equal(t, "opaque", credential)
		return &authz.Principal{ID: "p-9", Roles: []string{authz.RoleManager}, Permissions: []string{authz.PermOrdersUpdate}}, nil
	})
	h := EdgeAuth(EdgeAuthConfig{Verifier: verifier, Policy: DefaultPolicy(), Logger: newTestLogger()})(headerCapture())

	rec := serve(h, http.MethodPatch, "/api/v1/orders/1", "opaque", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "p-9", decodeMap(t, rec)["id"])
}
