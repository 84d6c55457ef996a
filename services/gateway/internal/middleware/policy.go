package middleware

import (
	"net/http"
	"strings"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
)

// PublicRoute is a method and path prefix reachable without a credential.
type PublicRoute struct {
	Method string
	Prefix string
}

// DefaultPublicRoutes are the endpoints that issue credentials or report health.
var DefaultPublicRoutes = []PublicRoute{
	{Method: http.MethodPost, Prefix: "/api/v1/auth/register"},
	{Method: http.MethodPost, Prefix: "/api/v1/auth/login"},
	{Method: http.MethodPost, Prefix: "/api/v1/auth/refresh"},
	{Method: http.MethodGet, Prefix: "/health"},
}

// ResourceRule guards every route under Prefix with the permission
// "<Resource>:<action>", where the action follows from the HTTP method.
type ResourceRule struct {
	Prefix   string
	Resource string
}

// DefaultResourceRules maps the business APIs to their resources. Identity
// routes are absent: the identity service enforces its own admin guards.
var DefaultResourceRules = []ResourceRule{
	{Prefix: "/api/v1/inventory", Resource: authz.ResourceInventory},
	{Prefix: "/api/v1/orders", Resource: authz.ResourceOrders},
	{Prefix: "/api/v1/analytics", Resource: authz.ResourceAnalytics},
}

// Policy decides which requests are public and which permission the rest need.
type Policy struct {
	Public []PublicRoute
	Rules  []ResourceRule
}

// DefaultPolicy returns the gateway's built-in routing policy.
func DefaultPolicy() Policy {
	return Policy{Public: DefaultPublicRoutes, Rules: DefaultResourceRules}
}

// IsPublic reports whether method and path may be served without a credential.
// CORS preflight requests are always public.
func (p Policy) IsPublic(method, path string) bool {
	if method == http.MethodOptions {
		return true
	}
	for _, route := range p.Public {
		if method == route.Method && matchPrefix(path, route.Prefix) {
			return true
		}
	}
	return false
}

// Required returns the permission needed for method and path. The boolean is
// false when no rule covers the path and authentication alone suffices.
func (p Policy) Required(method, path string) (string, bool) {
	for _, rule := range p.Rules {
		if matchPrefix(path, rule.Prefix) {
			return rule.Resource + ":" + actionFor(method), true
		}
	}
	return "", false
}

func actionFor(method string) string {
	switch method {
	case http.MethodPost:
		return authz.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return authz.ActionUpdate
	case http.MethodDelete:
		return authz.ActionDelete
	default:
		return authz.ActionRead
	}
}

// matchPrefix matches whole path segments, so "/api/v1/orders" does not cover
// "/api/v1/orderstats".
func matchPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/' || strings.HasSuffix(prefix, "/")
}
