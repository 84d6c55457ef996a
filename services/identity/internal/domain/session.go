package domain

import "errors"

// ErrSessionMiss is returned by a session cache that holds no entry.
var ErrSessionMiss = errors.New("session cache miss")

// Session is the cached snapshot of an active principal. It is advisory:
// its absence never denies a request and its presence never grants one.
type Session struct {
	PrincipalID string   `json:"principalId"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// SessionOf builds the cache snapshot for p.
func SessionOf(p *Principal) Session {
	return Session{
		PrincipalID: p.ID,
		Email:       p.Email,
		Roles:       append([]string(nil), p.Roles...),
		Permissions: append([]string(nil), p.Permissions...),
	}
}
