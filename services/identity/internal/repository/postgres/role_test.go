package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/authz"
	apperrors "github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/pkg/errors"
)

func newRoleTestFixture(t *testing.T) (*RoleRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return NewRoleRepository(mock), mock
}

func TestRoleRepository_RolesOf(t *testing.T) {
	repo, mock := newRoleTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT role_name FROM principal_roles").
		WithArgs("p-1").
		WillReturnRows(pgxmock.NewRows([]string{"role_name"}).AddRow("admin").AddRow("viewer"))

	roles, err := repo.RolesOf(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin", "viewer"}, roles)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_PermissionsOf(t *testing.T) {
	repo, mock := newRoleTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("FROM role_permissions").
		WithArgs([]string{"viewer"}).
		WillReturnRows(pgxmock.NewRows([]string{"resource", "action", "description"}).
			AddRow("inventory", "read", "read inventory").
			AddRow("orders", "read", "read orders"))

	perms, err := repo.PermissionsOf(context.Background(), []string{"viewer"})
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory:read", "orders:read"}, authz.Union(perms))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_PermissionsOf_NoRolesSkipsQuery(t *testing.T) {
	repo, mock := newRoleTestFixture(t)
	defer mock.Close()

	perms, err := repo.PermissionsOf(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, perms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_ListRoles_GroupsPermissions(t *testing.T) {
	repo, mock := newRoleTestFixture(t)
	defer mock.Close()

	res, act := "orders", "read"
	mock.ExpectQuery("FROM roles r").
		WillReturnRows(pgxmock.NewRows([]string{"name", "description", "resource", "action"}).
			AddRow("empty", "no permissions", (*string)(nil), (*string)(nil)).
			AddRow("viewer", "read only", &res, &act))

	roles, err := repo.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Empty(t, roles[0].Permissions)
	assert.Equal(t, "viewer", roles[1].Name)
	assert.Equal(t, []authz.Permission{{Resource: "orders", Action: "read"}}, roles[1].Permissions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_Assign_UnknownRole(t *testing.T) {
	repo, mock := newRoleTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO principal_roles").
		WithArgs("p-1", "wizard").
		WillReturnError(&pgconn.PgError{Code: "23503"})

	err := repo.Assign(context.Background(), "p-1", "wizard")
	require.Error(t, err)
	assert.Equal(t, 404, apperrors.HTTPStatus(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRepository_Remove_NotHeld(t *testing.T) {
	repo, mock := newRoleTestFixture(t)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM principal_roles").
		WithArgs("p-1", "admin").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Remove(context.Background(), "p-1", "admin")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
