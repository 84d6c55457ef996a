// Package authz resolves roles into permission sets and answers authorization
// queries. Every service evaluates access through this package so that a
// decision is the same regardless of where it is made.
package authz

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is an atomic (resource, action) capability.
type Permission struct {
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// String returns the canonical "resource:action" form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// ParsePermission parses a canonical "resource:action" string.
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" || strings.Contains(action, ":") {
		return Permission{}, fmt.Errorf("invalid permission %q: want resource:action", s)
	}
	return Permission{Resource: resource, Action: action}, nil
}

// Role is a named bundle of permissions.
type Role struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// Union returns the canonical, de-duplicated, sorted permission strings for
// the given permissions.
func Union(perms ...[]Permission) []string {
	set := make(map[string]struct{})
	for _, group := range perms {
		for _, p := range group {
			set[p.String()] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeRoles trims, de-duplicates and sorts role names.
func NormalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
