package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	pkgkafka "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/kafka"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/token"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/auth"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/event"
)

// --- clock ---

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// --- principals ---

type memPrincipals struct {
	mu    sync.Mutex
	byID  map[string]*domain.Principal
	roles *memRoles
}

func (m *memPrincipals) Create(_ context.Context, p *domain.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == p.Email {
			return apperrors.EmailExists(p.Email)
		}
	}
	cp := *p
	cp.Roles = nil
	m.byID[p.ID] = &cp
	for _, r := range p.Roles {
		if err := m.roles.Assign(context.Background(), p.ID, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *memPrincipals) get(match func(*domain.Principal) bool) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if match(p) {
			cp := *p
			cp.Roles, _ = m.roles.RolesOf(context.Background(), p.ID)
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memPrincipals) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	return m.get(func(p *domain.Principal) bool { return p.ID == id })
}

func (m *memPrincipals) GetByEmail(_ context.Context, email string) (*domain.Principal, error) {
	email = domain.NormalizeEmail(email)
	return m.get(func(p *domain.Principal) bool { return p.Email == email })
}

func (m *memPrincipals) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetByEmail(ctx, email)
	return err == nil, nil
}

func (m *memPrincipals) mutate(id string, fn func(*domain.Principal)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return apperrors.NotFound("principal", id)
	}
	fn(p)
	return nil
}

func (m *memPrincipals) UpdatePassword(_ context.Context, id, hash string) error {
	return m.mutate(id, func(p *domain.Principal) { p.PasswordHash = hash })
}

func (m *memPrincipals) SetActive(_ context.Context, id string, active bool) error {
	return m.mutate(id, func(p *domain.Principal) { p.IsActive = active })
}

func (m *memPrincipals) SetVerified(_ context.Context, id string, verified bool) error {
	return m.mutate(id, func(p *domain.Principal) { p.EmailVerified = verified })
}

func (m *memPrincipals) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return m.mutate(id, func(p *domain.Principal) { p.LastLoginAt = &at })
}

// --- roles ---

type memRoles struct {
	*authz.StaticSource
	mu       sync.Mutex
	assigned map[string]map[string]bool
}

func newMemRoles() *memRoles {
	return &memRoles{
		StaticSource: authz.NewStaticSource(authz.CatalogRoles()),
		assigned:     make(map[string]map[string]bool),
	}
}

func (m *memRoles) RolesOf(_ context.Context, principalID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for r := range m.assigned[principalID] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRoles) ListRoles(context.Context) ([]authz.Role, error) {
	return authz.CatalogRoles(), nil
}

func (m *memRoles) Assign(_ context.Context, principalID, role string) error {
	known := false
	for _, r := range authz.CatalogRoles() {
		known = known || r.Name == role
	}
	if !known {
		return apperrors.NotFound("role", role)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.assigned[principalID] == nil {
		m.assigned[principalID] = make(map[string]bool)
	}
	m.assigned[principalID][role] = true
	return nil
}

func (m *memRoles) Remove(_ context.Context, principalID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.assigned[principalID][role] {
		return apperrors.NotFound("role assignment", role)
	}
	delete(m.assigned[principalID], role)
	return nil
}

// --- refresh ledger ---

type memLedger struct {
	mu         sync.Mutex
	now        func() time.Time
	entries    map[string]*domain.RefreshToken
	failInsert bool
}

func (l *memLedger) insert(g domain.RefreshGrant) (*domain.RefreshToken, error) {
	if l.failInsert {
		return nil, errors.New("insert refresh token: disk full")
	}
	h := domain.HashToken(g.Token)
	if _, dup := l.entries[h]; dup {
		return nil, apperrors.Conflict("refresh token already recorded")
	}
	e := &domain.RefreshToken{
		ID: uuid.NewString(), PrincipalID: g.PrincipalID, TokenHash: h, TokenID: g.TokenID,
		ExpiresAt: g.ExpiresAt, CreatedAt: l.now(),
	}
	l.entries[h] = e
	return e, nil
}

func (l *memLedger) Record(_ context.Context, g domain.RefreshGrant) (*domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.insert(g)
}

func (l *memLedger) FindByToken(_ context.Context, tok string) (*domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[domain.HashToken(tok)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (l *memLedger) IsValid(_ context.Context, tok string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[domain.HashToken(tok)].Valid(l.now()), nil
}

func (l *memLedger) Revoke(_ context.Context, tok string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[domain.HashToken(tok)]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !e.Revoked {
		now := l.now()
		e.Revoked, e.RevokedAt = true, &now
	}
	return nil
}

func (l *memLedger) RevokeAllForPrincipal(_ context.Context, principalID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, e := range l.entries {
		if e.PrincipalID == principalID && !e.Revoked {
			e.Revoked = true
			n++
		}
	}
	return n, nil
}

func (l *memLedger) Rotate(_ context.Context, presented string, next domain.RefreshGrant) (*domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	old := l.entries[domain.HashToken(presented)]
	if !old.Valid(l.now()) || old.PrincipalID != next.PrincipalID {
		return nil, apperrors.TokenRevoked()
	}
	e, err := l.insert(next)
	if err != nil {
		return nil, err
	}
	old.Revoked, old.ReplacedBy = true, &e.ID
	return e, nil
}

func (l *memLedger) PurgeExpired(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for h, e := range l.entries {
		if !l.now().Before(e.ExpiresAt) {
			delete(l.entries, h)
			n++
		}
	}
	return n, nil
}

func (l *memLedger) ListActive(_ context.Context, principalID string, limit, offset int) ([]domain.RefreshToken, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var live []domain.RefreshToken
	for _, e := range l.entries {
		if e.PrincipalID == principalID && e.Valid(l.now()) {
			live = append(live, *e)
		}
	}
	total := len(live)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return live[offset:end], total, nil
}

func (l *memLedger) liveCount(principalID string) int {
	_, n, _ := l.ListActive(context.Background(), principalID, 1000, 0)
	return n
}

// --- session cache ---

type memCache struct {
	mu      sync.Mutex
	entries map[string]domain.Session
	gets    int
	fail    bool
}

func (c *memCache) Put(_ context.Context, s domain.Session, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("redis: connection refused")
	}
	c.entries[s.PrincipalID] = s
	return nil
}

func (c *memCache) Get(_ context.Context, id string) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.fail {
		return nil, errors.New("redis: connection refused")
	}
	s, ok := c.entries[id]
	if !ok {
		return nil, domain.ErrSessionMiss
	}
	return &s, nil
}

func (c *memCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("redis: connection refused")
	}
	delete(c.entries, id)
	return nil
}

func (c *memCache) has(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	return ok
}

// --- events ---

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, _ *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingPublisher) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...)
}

// --- fixture ---

type fixture struct {
	svc        *IdentityService
	tokens     *token.Manager
	clock      *testClock
	principals *memPrincipals
	roles      *memRoles
	ledger     *memLedger
	cache      *memCache
	events     *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCache(t, true)
}

func newFixtureWithCache(t *testing.T, withCache bool) *fixture {
	t.Helper()

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	access, err := token.NewKeyring(token.Key{ID: "access-v1", Secret: []byte("access-secret-access-secret-0001")})
	require.NoError(t, err)
	refresh, err := token.NewKeyring(token.Key{ID: "refresh-v1", Secret: []byte("refresh-secret-refresh-secret-01")})
	require.NoError(t, err)
	tokens, err := token.NewManager(token.Config{
		Issuer:      "identity-service",
		Audience:    "erp",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  7 * 24 * time.Hour,
		AccessKeys:  access,
		RefreshKeys: refresh,
	}, token.WithClock(clock.Now))
	require.NoError(t, err)

	roles := newMemRoles()
	principals := &memPrincipals{byID: make(map[string]*domain.Principal), roles: roles}
	ledger := &memLedger{now: clock.Now, entries: make(map[string]*domain.RefreshToken)}
	cache := &memCache{entries: make(map[string]domain.Session)}
	events := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	creds, err := auth.NewCredentialStore(principals, authz.NewEvaluator(roles), hasher)
	require.NoError(t, err)

	deps := Deps{
		Credentials: creds,
		Roles:       roles,
		Ledger:      ledger,
		Tokens:      tokens,
		Producer:    event.NewProducer(events, logger),
		Logger:      logger,
	}
	if withCache {
		deps.Sessions = cache
	}

	return &fixture{
		svc:        NewIdentityService(deps),
		tokens:     tokens,
		clock:      clock,
		principals: principals,
		roles:      roles,
		ledger:     ledger,
		cache:      cache,
		events:     events,
	}
}

func (f *fixture) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "Str0ng!Pass",
		FirstName: "Alice",
		LastName:  "Smith",
	})
	require.NoError(t, err)
	return res
}
