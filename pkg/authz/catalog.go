package authz

// Resources protected by the ERP services.
const (
	ResourceUsers     = "users"
	ResourceRoles     = "roles"
	ResourceInventory = "inventory"
	ResourceOrders    = "orders"
	ResourceAnalytics = "analytics"
)

// Actions available on every resource.
const (
	ActionCreate = "create"
	ActionRead   = "read"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Built-in role names.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleViewer  = "viewer"
)

// DefaultRole is assigned to every newly registered principal.
const DefaultRole = RoleViewer

// Permissions referenced by route guards.
const (
	PermUsersRead       = "users:read"
	PermUsersUpdate     = "users:update"
	PermRolesUpdate     = "roles:update"
	PermInventoryRead   = "inventory:read"
	PermInventoryUpdate = "inventory:update"
	PermOrdersRead      = "orders:read"
	PermOrdersUpdate    = "orders:update"
	PermAnalyticsRead   = "analytics:read"
)

var (
	allResources = []string{ResourceUsers, ResourceRoles, ResourceInventory, ResourceOrders, ResourceAnalytics}
	allActions   = []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
)

// CatalogPermissions returns the full permission catalog. The seed migration inserts the
// same rows; CatalogPermissions and the database must not drift.
func CatalogPermissions() []Permission {
	perms := make([]Permission, 0, len(allResources)*len(allActions))
	for _, res := range allResources {
		for _, act := range allActions {
			perms = append(perms, Permission{
				Resource:    res,
				Action:      act,
				Description: act + " " + res,
			})
		}
	}
	return perms
}

// CatalogRoles returns the built-in roles with their permission bundles.
func CatalogRoles() []Role {
	crud := func(res string) []Permission {
		out := make([]Permission, 0, len(allActions))
		for _, act := range allActions {
			out = append(out, Permission{Resource: res, Action: act})
		}
		return out
	}
	read := func(res string) Permission {
		return Permission{Resource: res, Action: ActionRead}
	}

	manager := append(crud(ResourceInventory), crud(ResourceOrders)...)
	manager = append(manager, read(ResourceAnalytics))

	return []Role{
		{Name: RoleAdmin, Description: "Full access to every resource", Permissions: CatalogPermissions()},
		{Name: RoleManager, Description: "Manages inventory and orders", Permissions: manager},
		{Name: RoleViewer, Description: "Read-only access to business data", Permissions: []Permission{
			read(ResourceInventory), read(ResourceOrders), read(ResourceAnalytics),
		}},
	}
}
