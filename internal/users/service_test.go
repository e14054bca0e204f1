package users_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/rbac/rbactest"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }

func newService(t *testing.T) (*users.Service, *rbactest.Store, rbac.Role, rbac.Role) {
	t.Helper()
	ctx := context.Background()
	store := rbactest.NewStore()
	for _, entry := range shared.PermissionCatalog() {
		_, err := store.EnsurePermission(ctx, entry.Name, entry.Description)
		require.NoError(t, err)
	}
	admin, _, err := store.EnsureRole(ctx, shared.RoleAdmin, "", rbac.AllPermissions)
	require.NoError(t, err)
	user, _, err := store.EnsureRole(ctx, shared.RoleUser, "", rbac.NoPermissions)
	require.NoError(t, err)
	return users.NewService(store, plainHasher{}), store, admin, user
}

func TestCreateAssignsDefaultRole(t *testing.T) {
	svc, _, _, userRole := newService(t)
	u, err := svc.Create(context.Background(), users.CreateInput{Username: " Alice ", Email: " Alice@Example.COM ", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "hashed:pw", u.PasswordHash)
	require.Len(t, u.Roles, 1)
	assert.Equal(t, userRole.ID, u.Roles[0].ID)
}

func TestCreateWithoutDefaultRole(t *testing.T) {
	svc := users.NewService(rbactest.NewStore(), plainHasher{})
	_, err := svc.Create(context.Background(), users.CreateInput{Username: "bob", Email: "bob@example.com", Password: "pw"})
	assert.ErrorIs(t, err, shared.ErrSeedingPrecondition)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, users.CreateInput{Username: "carol", Email: "carol@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Create(ctx, users.CreateInput{Username: "CAROL", Email: "other@example.com", Password: "pw"})
	assert.ErrorIs(t, err, shared.ErrDuplicateIdentity)
	_, err = svc.Create(ctx, users.CreateInput{Username: "carol2", Email: "Carol@example.com", Password: "pw"})
	assert.ErrorIs(t, err, shared.ErrDuplicateIdentity)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	cases := []users.CreateInput{
		{Username: "", Email: "a@example.com", Password: "pw"},
		{Username: "dave", Email: "not-an-email", Password: "pw"},
		{Username: "dave", Email: "dave@example.com", Password: ""},
		{Username: "dave", Email: "dave@example.com", Password: "pw", RoleIDs: []int64{999}},
	}
	for _, in := range cases {
		_, err := svc.Create(ctx, in)
		assert.ErrorIs(t, err, shared.ErrValidation, "%+v", in)
	}
}

func TestPatchAppliesOnlyProvidedFields(t *testing.T) {
	svc, _, adminRole, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, users.CreateInput{Username: "erin", Email: "erin@example.com", Password: "pw"})
	require.NoError(t, err)

	email := "erin@nutrition.test"
	patched, err := svc.Patch(ctx, u.ID, users.Patch{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "erin", patched.Username)
	assert.Equal(t, email, patched.Email)
	assert.Equal(t, "hashed:pw", patched.PasswordHash)
	assert.Equal(t, []string{shared.RoleUser}, patched.RoleNames())

	roles := []int64{adminRole.ID}
	patched, err = svc.Patch(ctx, u.ID, users.Patch{RoleIDs: &roles})
	require.NoError(t, err)
	assert.True(t, patched.HasRole(shared.RoleAdmin))
	assert.False(t, patched.HasRole(shared.RoleUser))

	none := []int64{}
	patched, err = svc.Patch(ctx, u.ID, users.Patch{RoleIDs: &none})
	require.NoError(t, err)
	assert.Empty(t, patched.Roles)
}

func TestPatchRoleFailureLeavesUserUnchanged(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, users.CreateInput{Username: "frank", Email: "frank@example.com", Password: "pw"})
	require.NoError(t, err)

	name := "franklin"
	bad := []int64{12345}
	_, err = svc.Patch(ctx, u.ID, users.Patch{Username: &name, RoleIDs: &bad})
	require.ErrorIs(t, err, shared.ErrValidation)

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "frank", got.Username)
	assert.Equal(t, []string{shared.RoleUser}, got.RoleNames())
}

func TestReplaceKeepsRolesWhenOmitted(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, users.CreateInput{Username: "gina", Email: "gina@example.com", Password: "pw"})
	require.NoError(t, err)

	replaced, err := svc.Replace(ctx, u.ID, users.CreateInput{Username: "Gina2", Email: "g2@example.com", Password: "new"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gina2", replaced.Username)
	assert.Equal(t, "hashed:new", replaced.PasswordHash)
	assert.Equal(t, []string{shared.RoleUser}, replaced.RoleNames())
}

func TestDeleteKeepsRoles(t *testing.T) {
	svc, store, _, userRole := newService(t)
	ctx := context.Background()
	u, err := svc.Create(ctx, users.CreateInput{Username: "hank", Email: "hank@example.com", Password: "pw"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, u.ID))
	_, err = svc.Get(ctx, u.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = store.GetRole(ctx, userRole.ID)
	assert.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, u.ID), shared.ErrNotFound)
}

func TestNormalizeUsername(t *testing.T) {
	got, err := users.NormalizeUsername("  MiXeD  ")
	require.NoError(t, err)
	assert.Equal(t, "mixed", got)

	_, err = users.NormalizeUsername("has space")
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = users.NormalizeUsername("   ")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
