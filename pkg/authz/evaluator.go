package authz

import (
	"context"
	"fmt"
)

// Principal is the request-time view of an authenticated identity.
type Principal struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// HasRole reports whether p holds at least one of roles.
func HasRole(p *Principal, roles ...string) bool {
	if p == nil {
		return false
	}
	for _, want := range roles {
		for _, have := range p.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// HasPermission reports whether p's permission set contains perm.
func HasPermission(p *Principal, perm string) bool {
	if p == nil {
		return false
	}
	for _, have := range p.Permissions {
		if have == perm {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether p holds at least one of perms.
func HasAnyPermission(p *Principal, perms ...string) bool {
	for _, perm := range perms {
		if HasPermission(p, perm) {
			return true
		}
	}
	return false
}

// RoleSource supplies role assignments and role bundles.
type RoleSource interface {
	RolesOf(ctx context.Context, principalID string) ([]string, error)
	PermissionsOf(ctx context.Context, roles []string) ([]Permission, error)
}

// Evaluator resolves principals' roles into permission sets.
type Evaluator struct {
	source RoleSource
}

// NewEvaluator creates an Evaluator backed by source.
func NewEvaluator(source RoleSource) *Evaluator {
	return &Evaluator{source: source}
}

// PermissionsFor returns the union of permissions over every role the
// principal currently holds.
func (e *Evaluator) PermissionsFor(ctx context.Context, principalID string) ([]string, error) {
	roles, err := e.source.RolesOf(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("roles of principal %s: %w", principalID, err)
	}
	return e.PermissionsForRoles(ctx, roles)
}

// PermissionsForRoles returns the union of permissions over roles.
func (e *Evaluator) PermissionsForRoles(ctx context.Context, roles []string) ([]string, error) {
	if len(roles) == 0 {
		return []string{}, nil
	}
	perms, err := e.source.PermissionsOf(ctx, NormalizeRoles(roles))
	if err != nil {
		return nil, fmt.Errorf("permissions of roles: %w", err)
	}
	return Union(perms), nil
}

// Resolve builds a Principal with current roles and permissions.
func (e *Evaluator) Resolve(ctx context.Context, principalID, email string) (*Principal, error) {
	roles, err := e.source.RolesOf(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("roles of principal %s: %w", principalID, err)
	}
	perms, err := e.PermissionsForRoles(ctx, roles)
	if err != nil {
		return nil, err
	}
	return &Principal{ID: principalID, Email: email, Roles: NormalizeRoles(roles), Permissions: perms}, nil
}
