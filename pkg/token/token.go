// Package token mints and verifies the access and refresh credentials used
// across the ERP services.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
)

// Kind discriminates access credentials from refresh credentials.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// TokenType is the scheme clients present credentials with.
const TokenType = "Bearer"

// DefaultLeeway is the clock skew tolerated between the minting and the
// verifying host when Config.Leeway is zero.
const DefaultLeeway = 30 * time.Second

// Verification outcomes.
var (
	ErrMalformed = errors.New("token malformed")
	ErrExpired   = errors.New("token expired")
	ErrWrongType = errors.New("token has the wrong type")
)

// Claims is the payload of both credential kinds. Permissions are set on
// access credentials only; the registered ID (jti) on refresh credentials only.
type Claims struct {
	Type        Kind     `json:"type"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

// Principal projects the claims onto the request-time identity.
func (c *Claims) Principal() *authz.Principal {
	roles := append([]string(nil), c.Roles...)
	perms := append([]string(nil), c.Permissions...)
	if perms == nil {
		perms = []string{}
	}
	return &authz.Principal{ID: c.Subject, Email: c.Email, Roles: roles, Permissions: perms}
}

// Subject is the principal snapshot a pair is minted for.
type Subject struct {
	ID          string
	Email       string
	Roles       []string
	Permissions []string
}

// Pair is a freshly minted access and refresh credential.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
	RefreshID        string    `json:"-"`
}

// Config configures a Manager.
type Config struct {
	Issuer      string
	Audience    string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	AccessKeys  *Keyring
	RefreshKeys *Keyring
	// Leeway bounds the skew accepted on iat and exp. Zero means DefaultLeeway.
	Leeway time.Duration
}

// Manager mints and verifies credentials. It performs no I/O.
type Manager struct {
	cfg Config
	now func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLeeway overrides the tolerated clock skew.
func WithLeeway(d time.Duration) Option {
	return func(m *Manager) { m.cfg.Leeway = d }
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if cfg.AccessKeys == nil || cfg.RefreshKeys == nil {
		return nil, errors.New("access and refresh keyrings are required")
	}
	if err := checkDisjoint(cfg.AccessKeys, cfg.RefreshKeys); err != nil {
		return nil, err
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access token lifetime must be shorter than refresh token lifetime")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("token leeway must not be negative")
	}
	m := &Manager{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewVerifier returns a Manager that verifies access credentials only. It
// holds no refresh keys and cannot mint pairs. Edge components that must not
// be able to issue long-lived credentials use it.
func NewVerifier(issuer, audience string, accessKeys *Keyring, opts ...Option) (*Manager, error) {
	if accessKeys == nil {
		return nil, errors.New("access keyring is required")
	}
	m := &Manager{cfg: Config{Issuer: issuer, Audience: audience, AccessKeys: accessKeys}, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.Leeway < 0 {
		return nil, errors.New("token leeway must not be negative")
	}
	return m, nil
}

// AccessTTL returns the access credential lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.cfg.AccessTTL }

// RefreshTTL returns the refresh credential lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.cfg.RefreshTTL }

// IssuePair mints an access and a refresh credential for s.
func (m *Manager) IssuePair(s Subject) (*Pair, error) {
	if s.ID == "" {
		return nil, errors.New("subject id is required")
	}
	if m.cfg.RefreshKeys == nil {
		return nil, errors.New("manager holds no refresh keys")
	}
	now := m.now()

	access, accessExp, err := m.IssueAccess(s)
	if err != nil {
		return nil, err
	}

	refreshExp := now.Add(m.cfg.RefreshTTL)
	jti := uuid.NewString()
	refreshClaims := &Claims{
		Type:             KindRefresh,
		Email:            s.Email,
		Roles:            authz.NormalizeRoles(s.Roles),
		RegisteredClaims: m.registered(s.ID, now, refreshExp),
	}
	refreshClaims.ID = jti

	refresh, err := m.sign(m.cfg.RefreshKeys.Active(), refreshClaims)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        TokenType,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		RefreshID:        jti,
	}, nil
}

// IssueAccess mints a single access credential for s.
func (m *Manager) IssueAccess(s Subject) (string, time.Time, error) {
	if m.cfg.AccessTTL <= 0 {
		return "", time.Time{}, errors.New("manager cannot mint access tokens")
	}
	now := m.now()
	claims := &Claims{
		Type:             KindAccess,
		Email:            s.Email,
		Roles:            authz.NormalizeRoles(s.Roles),
		Permissions:      append([]string{}, s.Permissions...),
		RegisteredClaims: m.registered(s.ID, now, now.Add(m.cfg.AccessTTL)),
	}
	signed, err := m.sign(m.cfg.AccessKeys.Active(), claims)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// VerifyAccess verifies an access credential.
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, KindAccess)
}

// VerifyRefresh verifies a refresh credential.
func (m *Manager) VerifyRefresh(tokenStr string) (*Claims, error) {
	return m.verify(tokenStr, KindRefresh)
}

// Verify verifies an access credential and returns the principal it asserts.
func (m *Manager) Verify(_ context.Context, tokenStr string) (*authz.Principal, error) {
	claims, err := m.VerifyAccess(tokenStr)
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}

// ExpiryOf reads the expiry of a credential without verifying it.
func ExpiryOf(tokenStr string) (time.Time, bool) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (m *Manager) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	if m.cfg.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}
	return rc
}

func (m *Manager) sign(key Key, claims *Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	t.Header["kid"] = key.ID
	return t.SignedString(key.Secret)
}

func (m *Manager) leeway() time.Duration {
	if m.cfg.Leeway == 0 {
		return DefaultLeeway
	}
	return m.cfg.Leeway
}

func (m *Manager) rings(want Kind) (own, other *Keyring) {
	if want == KindAccess {
		return m.cfg.AccessKeys, m.cfg.RefreshKeys
	}
	return m.cfg.RefreshKeys, m.cfg.AccessKeys
}

func (m *Manager) verify(tokenStr string, want Kind) (*Claims, error) {
	own, other := m.rings(want)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway()),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	if m.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience))
	}

	claims := &Claims{}
	_, err := jwt.NewParser(opts...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if secret, ok := own.Lookup(kid); ok {
			return secret, nil
		}
		if other.Has(kid) {
			return nil, ErrWrongType
		}
		return nil, fmt.Errorf("unknown key id %q", kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrWrongType):
			return nil, ErrWrongType
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}

	if claims.Type != want {
		return nil, ErrWrongType
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	if want == KindRefresh && claims.ID == "" {
		return nil, fmt.Errorf("%w: missing token id", ErrMalformed)
	}
	return claims, nil
}
