package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RefreshToken is one row of the refresh ledger. The credential itself is
// never stored; TokenHash is its SHA-256.
type RefreshToken struct {
	ID          string     `json:"id"`
	PrincipalID string     `json:"principalId"`
	TokenHash   string     `json:"-"`
	TokenID     string     `json:"-"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	Revoked     bool       `json:"revoked"`
	RevokedAt   *time.Time `json:"revokedAt,omitempty"`
	ReplacedBy  *string    `json:"replacedBy,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Valid reports whether the entry is neither revoked nor expired at now.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t != nil && !t.Revoked && now.Before(t.ExpiresAt)
}

// HashToken returns the ledger key for a refresh credential.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// SessionInfo is the public view of a live ledger entry.
type SessionInfo struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RefreshGrant describes a refresh credential about to be recorded.
type RefreshGrant struct {
	PrincipalID string
	Token       string
	TokenID     string
	ExpiresAt   time.Time
}
