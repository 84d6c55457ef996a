package postgres

import (
	"context"
	"fmt"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/database"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
)

// RoleRepository implements repository.RoleRepository and authz.RoleSource
// using PostgreSQL.
type RoleRepository struct {
	db database.DBTX
}

// NewRoleRepository creates a new PostgreSQL-backed role repository.
func NewRoleRepository(db database.DBTX) *RoleRepository {
	return &RoleRepository{db: db}
}

// RolesOf returns the role names assigned to a principal.
func (r *RoleRepository) RolesOf(ctx context.Context, principalID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT role_name FROM principal_roles WHERE principal_id = $1 ORDER BY role_name`,
		principalID,
	)
	if err != nil {
		return nil, fmt.Errorf("query principal roles: %w", err)
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan principal role: %w", err)
		}
		roles = append(roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate principal roles: %w", err)
	}
	return roles, nil
}

// PermissionsOf returns the permissions granted by any of roles.
func (r *RoleRepository) PermissionsOf(ctx context.Context, roles []string) ([]authz.Permission, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query := `
		SELECT DISTINCT p.resource, p.action, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.resource = rp.resource AND p.action = rp.action
		WHERE rp.role_name = ANY($1)
		ORDER BY p.resource, p.action`

	rows, err := r.db.Query(ctx, query, roles)
	if err != nil {
		return nil, fmt.Errorf("query role permissions: %w", err)
	}
	defer rows.Close()

	var perms []authz.Permission
	for rows.Next() {
		var p authz.Permission
		if err := rows.Scan(&p.Resource, &p.Action, &p.Description); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role permissions: %w", err)
	}
	return perms, nil
}

// ListRoles returns every role with its permission bundle.
func (r *RoleRepository) ListRoles(ctx context.Context) ([]authz.Role, error) {
	query := `
		SELECT r.name, r.description, rp.resource, rp.action
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_name = r.name
		ORDER BY r.name, rp.resource, rp.action`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query roles: %w", err)
	}
	defer rows.Close()

	var roles []authz.Role
	for rows.Next() {
		var (
			name, description string
			resource, action  *string
		)
		if err := rows.Scan(&name, &description, &resource, &action); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if len(roles) == 0 || roles[len(roles)-1].Name != name {
			roles = append(roles, authz.Role{Name: name, Description: description})
		}
		if resource != nil && action != nil {
			last := &roles[len(roles)-1]
			last.Permissions = append(last.Permissions, authz.Permission{Resource: *resource, Action: *action})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return roles, nil
}

// Assign grants a role. Re-assigning a held role is a no-op.
func (r *RoleRepository) Assign(ctx context.Context, principalID, role string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO principal_roles (principal_id, role_name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		principalID, role,
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return apperrors.NotFound("role or principal", role)
		}
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// Remove revokes a role. Removing a role that is not held is NOT_FOUND.
func (r *RoleRepository) Remove(ctx context.Context, principalID, role string) error {
	ct, err := r.db.Exec(ctx,
		`DELETE FROM principal_roles WHERE principal_id = $1 AND role_name = $2`,
		principalID, role,
	)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("role assignment", role)
	}
	return nil
}
