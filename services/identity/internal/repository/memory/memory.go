// Package memory provides in-process implementations of the identity
// repositories. They back handler and end-to-end tests that run without
// Postgres or Redis.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/repository"
)

var (
	_ repository.PrincipalRepository = (*Principals)(nil)
	_ repository.RoleRepository      = (*Roles)(nil)
	_ repository.RefreshLedger       = (*Ledger)(nil)
	_ repository.SessionCache        = (*Sessions)(nil)
)

// Roles holds role bundles and assignments. Bundles come from a fixed catalog.
type Roles struct {
	*authz.StaticSource
	catalog []authz.Role

	mu       sync.RWMutex
	assigned map[string]map[string]bool
}

// NewRoles creates a role store over catalog.
func NewRoles(catalog []authz.Role) *Roles {
	return &Roles{
		StaticSource: authz.NewStaticSource(catalog),
		catalog:      catalog,
		assigned:     make(map[string]map[string]bool),
	}
}

// RolesOf implements authz.RoleSource.
func (r *Roles) RolesOf(_ context.Context, principalID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.assigned[principalID]))
	for name := range r.assigned[principalID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ListRoles returns the catalog.
func (r *Roles) ListRoles(context.Context) ([]authz.Role, error) {
	return append([]authz.Role(nil), r.catalog...), nil
}

// Assign grants role. Unknown roles yield NOT_FOUND.
func (r *Roles) Assign(_ context.Context, principalID, role string) error {
	if !r.known(role) {
		return apperrors.NotFound("role", role)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assigned[principalID] == nil {
		r.assigned[principalID] = make(map[string]bool)
	}
	r.assigned[principalID][role] = true
	return nil
}

// Remove revokes role.
func (r *Roles) Remove(_ context.Context, principalID, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.assigned[principalID][role] {
		return apperrors.NotFound("role assignment", role)
	}
	delete(r.assigned[principalID], role)
	return nil
}

func (r *Roles) known(role string) bool {
	for _, c := range r.catalog {
		if c.Name == role {
			return true
		}
	}
	return false
}

// Principals stores principals by id.
type Principals struct {
	roles *Roles

	mu   sync.RWMutex
	byID map[string]*domain.Principal
}

// NewPrincipals creates a principal store whose role assignments live in roles.
func NewPrincipals(roles *Roles) *Principals {
	return &Principals{roles: roles, byID: make(map[string]*domain.Principal)}
}

// Create inserts p and assigns its roles.
func (s *Principals) Create(ctx context.Context, p *domain.Principal) error {
	s.mu.Lock()
	for _, existing := range s.byID {
		if existing.Email == p.Email {
			s.mu.Unlock()
			return apperrors.EmailExists(p.Email)
		}
	}
	cp := *p
	cp.Roles = nil
	s.byID[p.ID] = &cp
	s.mu.Unlock()

	for _, role := range p.Roles {
		if err := s.roles.Assign(ctx, p.ID, role); err != nil {
			s.mu.Lock()
			delete(s.byID, p.ID)
			s.mu.Unlock()
			return err
		}
	}
	return nil
}

func (s *Principals) find(ctx context.Context, match func(*domain.Principal) bool) (*domain.Principal, error) {
	s.mu.RLock()
	var found *domain.Principal
	for _, p := range s.byID {
		if match(p) {
			cp := *p
			found = &cp
			break
		}
	}
	s.mu.RUnlock()

	if found == nil {
		return nil, apperrors.ErrNotFound
	}
	found.Roles, _ = s.roles.RolesOf(ctx, found.ID)
	return found, nil
}

// GetByID returns the principal or ErrNotFound.
func (s *Principals) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	return s.find(ctx, func(p *domain.Principal) bool { return p.ID == id })
}

// GetByEmail returns the principal or ErrNotFound.
func (s *Principals) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	email = domain.NormalizeEmail(email)
	return s.find(ctx, func(p *domain.Principal) bool { return p.Email == email })
}

// EmailExists reports whether email is taken.
func (s *Principals) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := s.GetByEmail(ctx, email)
	return err == nil, nil
}

func (s *Principals) mutate(id string, fn func(*domain.Principal)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return apperrors.NotFound("principal", id)
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePassword replaces the stored hash.
func (s *Principals) UpdatePassword(_ context.Context, id, hash string) error {
	return s.mutate(id, func(p *domain.Principal) { p.PasswordHash = hash })
}

// SetActive sets the active flag.
func (s *Principals) SetActive(_ context.Context, id string, active bool) error {
	return s.mutate(id, func(p *domain.Principal) { p.IsActive = active })
}

// SetVerified sets the email-verified flag.
func (s *Principals) SetVerified(_ context.Context, id string, verified bool) error {
	return s.mutate(id, func(p *domain.Principal) { p.EmailVerified = verified })
}

// TouchLastLogin records at as the last login time.
func (s *Principals) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	return s.mutate(id, func(p *domain.Principal) { p.LastLoginAt = &at })
}

// Ledger is an in-memory refresh ledger keyed by credential hash.
type Ledger struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*domain.RefreshToken
}

// NewLedger creates a ledger. A nil clock uses time.Now.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{now: now, entries: make(map[string]*domain.RefreshToken)}
}

func (l *Ledger) insert(g domain.RefreshGrant) (*domain.RefreshToken, error) {
	h := domain.HashToken(g.Token)
	if _, dup := l.entries[h]; dup {
		return nil, apperrors.Conflict("refresh token already recorded")
	}
	e := &domain.RefreshToken{
		ID:          uuid.NewString(),
		PrincipalID: g.PrincipalID,
		TokenHash:   h,
		TokenID:     g.TokenID,
		ExpiresAt:   g.ExpiresAt,
		CreatedAt:   l.now(),
	}
	l.entries[h] = e
	return e, nil
}

// Record stores a newly issued credential.
func (l *Ledger) Record(_ context.Context, g domain.RefreshGrant) (*domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, err := l.insert(g)
	if err != nil {
		return nil, err
	}
	cp := *e
	return &cp, nil
}

// FindByToken returns the entry in any state.
func (l *Ledger) FindByToken(_ context.Context, tok string) (*domain.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[domain.HashToken(tok)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

// IsValid reports whether the entry is live.
func (l *Ledger) IsValid(_ context.Context, tok string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[domain.HashToken(tok)].Valid(l.now()), nil
}

// Revoke marks the entry revoked.
func (l *Ledger) Revoke(_ context.Context, tok string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[domain.HashToken(tok)]
	if !ok {
		return apperrors.ErrNotFound
	}
	l.revoke(e)
	return nil
}

func (l *Ledger) revoke(e *domain.RefreshToken) {
	if e.Revoked {
		return
	}
	now := l.now()
	e.Revoked, e.RevokedAt = true, &now
}

// RevokeAllForPrincipal revokes every live entry of principalID.
func (l *Ledger) RevokeAllForPrincipal(_ context.Context, principalID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, e := range l.entries {
		if e.PrincipalID == principalID && !e.Revoked {
			l.revoke(e)
			n++
		}
	}
	return n, nil
}

// Rotate revokes presented and records next under one lock.
func (l *Ledger) Rotate(_ context.Context, presented string, next domain.RefreshGrant) (*domain.RefreshToken, error) {
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
	l.revoke(old)
	id := e.ID
	old.ReplacedBy = &id
	cp := *e
	return &cp, nil
}

// PurgeExpired deletes entries whose expiry has passed.
func (l *Ledger) PurgeExpired(context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	var n int64
	for h, e := range l.entries {
		if !now.Before(e.ExpiresAt) {
			delete(l.entries, h)
			n++
		}
	}
	return n, nil
}

// ListActive returns a page of live entries, newest first.
func (l *Ledger) ListActive(_ context.Context, principalID string, limit, offset int) ([]domain.RefreshToken, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	var live []domain.RefreshToken
	for _, e := range l.entries {
		if e.PrincipalID == principalID && e.Valid(now) {
			live = append(live, *e)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.After(live[j].CreatedAt) })

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

// Sessions is an expiring session cache.
type Sessions struct {
	now func() time.Time

	mu      sync.Mutex
	entries map[string]sessionEntry
}

type sessionEntry struct {
	session domain.Session
	expires time.Time
}

// NewSessions creates a session cache. A nil clock uses time.Now.
func NewSessions(now func() time.Time) *Sessions {
	if now == nil {
		now = time.Now
	}
	return &Sessions{now: now, entries: make(map[string]sessionEntry)}
}

// Put stores s for ttl.
func (c *Sessions) Put(_ context.Context, s domain.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.PrincipalID] = sessionEntry{session: s, expires: c.now().Add(ttl)}
	return nil
}

// Get returns the cached session or domain.ErrSessionMiss.
func (c *Sessions) Get(_ context.Context, principalID string) (*domain.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[principalID]
	if !ok || !c.now().Before(e.expires) {
		delete(c.entries, principalID)
		return nil, domain.ErrSessionMiss
	}
	s := e.session
	return &s, nil
}

// Invalidate drops the cached session.
func (c *Sessions) Invalidate(_ context.Context, principalID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, principalID)
	return nil
}
