package sqlite

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/seed"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

type stubHasher struct{}

func (stubHasher) Hash(p string) (string, error) { return "digest:" + p, nil }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "rbac.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedStore(t *testing.T, store *Store) {
	t.Helper()
	cfg := seed.Config{Admin: seed.AdminAccount{Username: "admin", Email: "admin@system.local", Password: "pw"}}
	_, err := seed.New(store, stubHasher{}, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg).Run(context.Background())
	require.NoError(t, err)
}

func permissionNames(perms []rbac.Permission) []string {
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.Name)
	}
	return names
}

func TestSeedOnEmptyStore(t *testing.T) {
	store := openTestStore(t)
	seedStore(t, store)
	ctx := context.Background()

	want := shared.CatalogNames()
	sort.Strings(want)
	perms, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, permissionNames(perms))

	admin, err := store.GetRoleByName(ctx, shared.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, want, permissionNames(admin.Permissions))

	user, err := store.GetUserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{shared.RoleAdmin}, user.RoleNames())
	assert.True(t, user.HasPermission(shared.PermFoodDelete))
}

func TestSeedRepeatedlyIsNoop(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	seedStore(t, store)
	roles, err := store.ListRoles(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		seedStore(t, store)
	}
	again, err := store.ListRoles(ctx)
	require.NoError(t, err)
	assert.Equal(t, roles, again)
	users, total, err := store.ListUsers(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, users, 1)
}

func TestEnsureRoleSnapshotsPermissions(t *testing.T) {
	store := openTestStore(t)
	seedStore(t, store)
	ctx := context.Background()

	_, err := store.CreatePermission(ctx, "meal.export", "Export meals")
	require.NoError(t, err)
	created, err := store.EnsurePermission(ctx, "meal.export", "changed")
	require.NoError(t, err)
	assert.False(t, created)
	p, err := store.GetPermissionByName(ctx, "meal.export")
	require.NoError(t, err)
	assert.Equal(t, "Export meals", p.Description)

	admin, ok, err := store.EnsureRole(ctx, shared.RoleAdmin, "", rbac.AllPermissions)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, admin.HasPermission("meal.export"))

	exporter, ok, err := store.EnsureRole(ctx, "exporter", "", func(p rbac.Permission) bool { return p.Name == "meal.export" })
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"meal.export"}, permissionNames(exporter.Permissions))
}

func TestDeleteUserLeavesSharedRoles(t *testing.T) {
	store := openTestStore(t)
	seedStore(t, store)
	ctx := context.Background()
	role, err := store.GetRoleByName(ctx, shared.RoleUser)
	require.NoError(t, err)

	a, err := store.CreateUser(ctx, rbac.NewUser{Username: "a", Email: "a@x.com", PasswordHash: "h", RoleIDs: []int64{role.ID}})
	require.NoError(t, err)
	b, err := store.CreateUser(ctx, rbac.NewUser{Username: "b", Email: "b@x.com", PasswordHash: "h", RoleIDs: []int64{role.ID}})
	require.NoError(t, err)
	permsBefore, err := store.ListPermissions(ctx)
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(ctx, a.ID))
	_, err = store.GetUser(ctx, a.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	var junctionRows int
	require.NoError(t, store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_roles WHERE user_id = ?`, a.ID).Scan(&junctionRows))
	assert.Zero(t, junctionRows)

	stillThere, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, role.Name, stillThere.Name)
	other, err := store.GetUser(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.RoleUser}, other.RoleNames())
	permsAfter, err := store.ListPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, permsBefore, permsAfter)

	assert.ErrorIs(t, store.DeleteUser(ctx, a.ID), shared.ErrNotFound)
}

func TestUpdateUserIsAtomic(t *testing.T) {
	store := openTestStore(t)
	seedStore(t, store)
	ctx := context.Background()
	role, err := store.GetRoleByName(ctx, shared.RoleUser)
	require.NoError(t, err)
	u, err := store.CreateUser(ctx, rbac.NewUser{Username: "carl", Email: "carl@x.com", PasswordHash: "h", RoleIDs: []int64{role.ID}})
	require.NoError(t, err)

	name := "carlos"
	bad := []int64{role.ID, 9999}
	_, err = store.UpdateUser(ctx, u.ID, rbac.UserChanges{Username: &name, RoleIDs: &bad})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := store.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "carl", got.Username)
	assert.Equal(t, []string{shared.RoleUser}, got.RoleNames())

	admin, err := store.GetRoleByName(ctx, shared.RoleAdmin)
	require.NoError(t, err)
	good := []int64{admin.ID, admin.ID}
	got, err = store.UpdateUser(ctx, u.ID, rbac.UserChanges{Username: &name, RoleIDs: &good})
	require.NoError(t, err)
	assert.Equal(t, "carlos", got.Username)
	assert.Equal(t, "carl@x.com", got.Email)
	assert.Equal(t, []string{shared.RoleAdmin}, got.RoleNames())
}

func TestUniqueIdentity(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	_, err := store.CreateUser(ctx, rbac.NewUser{Username: "dora", Email: "dora@x.com", PasswordHash: "h"})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, rbac.NewUser{Username: "dora", Email: "other@x.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, shared.ErrDuplicateIdentity)
	_, err = store.CreateUser(ctx, rbac.NewUser{Username: "dora2", Email: "dora@x.com", PasswordHash: "h"})
	assert.ErrorIs(t, err, shared.ErrDuplicateIdentity)

	_, created, err := store.EnsureUser(ctx, rbac.NewUser{Username: "dora", Email: "new@x.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = store.CreatePermission(ctx, "food.view", "")
	require.NoError(t, err)
	_, err = store.CreatePermission(ctx, "food.view", "")
	assert.ErrorIs(t, err, shared.ErrNameTaken)
	assert.NotErrorIs(t, err, shared.ErrDuplicateIdentity)
}

func TestReferencedRowsAreRestricted(t *testing.T) {
	store := openTestStore(t)
	seedStore(t, store)
	ctx := context.Background()

	admin, err := store.GetRoleByName(ctx, shared.RoleAdmin)
	require.NoError(t, err)
	assert.ErrorIs(t, store.DeleteRole(ctx, admin.ID), shared.ErrInUse)

	perm, err := store.GetPermissionByName(ctx, shared.PermFoodView)
	require.NoError(t, err)
	assert.ErrorIs(t, store.DeletePermission(ctx, perm.ID), shared.ErrInUse)

	lonely, err := store.CreateRole(ctx, "lonely", "", []int64{perm.ID})
	require.NoError(t, err)
	require.NoError(t, store.DeleteRole(ctx, lonely.ID))
	assert.ErrorIs(t, store.DeleteRole(ctx, lonely.ID), shared.ErrNotFound)

	_, err = store.CreateRole(ctx, "broken", "", []int64{424242})
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = store.GetRoleByName(ctx, "broken")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSetRolePermissionsAndMembership(t *testing.T) {
	store := openTestStore(t)
	seedStore(t, store)
	ctx := context.Background()
	role, err := store.GetRoleByName(ctx, shared.RoleUser)
	require.NoError(t, err)
	u, err := store.CreateUser(ctx, rbac.NewUser{Username: "eve", Email: "eve@x.com", PasswordHash: "h", RoleIDs: []int64{role.ID}})
	require.NoError(t, err)

	ok, err := store.UserHasPermission(ctx, u.ID, shared.PermFoodView)
	require.NoError(t, err)
	assert.False(t, ok)

	view, err := store.GetPermissionByName(ctx, shared.PermFoodView)
	require.NoError(t, err)
	require.NoError(t, store.SetRolePermissions(ctx, role.ID, []int64{view.ID, view.ID}))

	ok, err = store.UserHasPermission(ctx, u.ID, shared.PermFoodView)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.UserHasPermission(ctx, u.ID, shared.PermFoodDelete)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, store.SetRolePermissions(ctx, 9999, nil), shared.ErrNotFound)
	assert.ErrorIs(t, store.SetRolePermissions(ctx, role.ID, []int64{9999}), shared.ErrValidation)
	got, err := store.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{shared.PermFoodView}, permissionNames(got.Permissions))
}

func TestListUsersPaginates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"u1", "u2", "u3"} {
		_, err := store.CreateUser(ctx, rbac.NewUser{Username: name, Email: name + "@x.com", PasswordHash: "h"})
		require.NoError(t, err)
	}
	page, total, err := store.ListUsers(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "u2", page[0].Username)
	assert.Equal(t, "u3", page[1].Username)
}
