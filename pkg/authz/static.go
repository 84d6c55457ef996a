package authz

import (
	"context"
	"sync"
)

// StaticSource is an in-memory RoleSource. It serves evaluators that run
// without a database, such as the gateway and tests.
type StaticSource struct {
	mu          sync.RWMutex
	roles       map[string][]Permission
	assignments map[string][]string
}

// NewStaticSource builds a StaticSource from role bundles.
func NewStaticSource(roles []Role) *StaticSource {
	s := &StaticSource{
		roles:       make(map[string][]Permission, len(roles)),
		assignments: make(map[string][]string),
	}
	for _, r := range roles {
		s.roles[r.Name] = append([]Permission(nil), r.Permissions...)
	}
	return s
}

// Assign replaces the roles held by principalID.
func (s *StaticSource) Assign(principalID string, roles ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[principalID] = NormalizeRoles(roles)
}

// RolesOf implements RoleSource.
func (s *StaticSource) RolesOf(_ context.Context, principalID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.assignments[principalID]...), nil
}

// PermissionsOf implements RoleSource. Unknown roles contribute nothing.
func (s *StaticSource) PermissionsOf(_ context.Context, roles []string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Permission
	for _, r := range roles {
		out = append(out, s.roles[r]...)
	}
	return out, nil
}
