package domain

import (
	"strings"
	"time"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
)

// Principal is an account that can authenticate. PasswordHash never leaves
// the credential store; read paths return copies with it cleared.
type Principal struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	FirstName     string     `json:"firstName"`
	LastName      string     `json:"lastName"`
	Phone         string     `json:"phone,omitempty"`
	IsActive      bool       `json:"isActive"`
	EmailVerified bool       `json:"emailVerified"`
	Roles         []string   `json:"roles"`
	Permissions   []string   `json:"permissions"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Registration carries the fields needed to create a principal.
type Registration struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Roles     []string
}

// NormalizeEmail lowercases and trims an email address. Both the write and
// the lookup paths go through it, which makes email matching case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Sanitized returns a copy of p without the password hash.
func (p *Principal) Sanitized() *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	cp.PasswordHash = ""
	cp.Roles = append([]string(nil), p.Roles...)
	cp.Permissions = append([]string(nil), p.Permissions...)
	return &cp
}

// Authz returns the request-time view of p.
func (p *Principal) Authz() *authz.Principal {
	return &authz.Principal{
		ID:          p.ID,
		Email:       p.Email,
		Roles:       append([]string(nil), p.Roles...),
		Permissions: append([]string(nil), p.Permissions...),
	}
}
