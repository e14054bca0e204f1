package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/rbac/rbactest"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

type authFixture struct {
	store   *rbactest.Store
	hasher  *Hasher
	tokens  *TokenService
	service *Service
	admin   rbac.Role
}

func newAuthFixture(t *testing.T, allowSignup bool) *authFixture {
	t.Helper()
	ctx := context.Background()
	store := rbactest.NewStore()
	for _, entry := range shared.PermissionCatalog() {
		_, err := store.EnsurePermission(ctx, entry.Name, entry.Description)
		require.NoError(t, err)
	}
	admin, _, err := store.EnsureRole(ctx, shared.RoleAdmin, "", rbac.AllPermissions)
	require.NoError(t, err)
	_, _, err = store.EnsureRole(ctx, shared.RoleUser, "", rbac.NoPermissions)
	require.NoError(t, err)

	hasher := testHasher()
	tokens, err := NewTokenService(TokenConfig{Secret: []byte(testSecret), Issuer: "nutrition-api", TTL: time.Hour})
	require.NoError(t, err)
	svc := NewService(store, users.NewService(store, hasher), hasher, tokens, allowSignup)
	return &authFixture{store: store, hasher: hasher, tokens: tokens, service: svc, admin: admin}
}

func TestRegisterAndLoginScenario(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()

	alice, err := f.service.Register(ctx, users.CreateInput{Username: "alice", Email: "alice@x.com", Password: "pw123"}, nil)
	require.NoError(t, err)
	assert.True(t, alice.HasRole(shared.RoleUser))
	assert.False(t, alice.HasRole(shared.RoleAdmin))
	assert.NotEqual(t, "pw123", alice.PasswordHash)

	token, user, err := f.service.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	assert.Equal(t, TokenType, token.TokenType)
	assert.Equal(t, int64(3600), token.ExpiresIn)
	subject, err := f.tokens.Verify(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, subject)

	_, _, wrongPassword := f.service.Login(ctx, "alice", "wrong")
	_, _, unknownUser := f.service.Login(ctx, "mallory", "pw123")
	require.ErrorIs(t, wrongPassword, shared.ErrInvalidCredentials)
	require.ErrorIs(t, unknownUser, shared.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
	assert.Equal(t, "incorrect username or password", wrongPassword.Error())
}

func TestLoginNormalizesUsername(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()
	_, err := f.service.Register(ctx, users.CreateInput{Username: "Bob", Email: "bob@x.com", Password: "pw"}, nil)
	require.NoError(t, err)

	_, _, err = f.service.Login(ctx, " BOB ", "pw")
	assert.NoError(t, err)
	_, _, err = f.service.Login(ctx, "b o b", "pw")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()
	_, err := f.service.Register(ctx, users.CreateInput{Username: "carol", Email: "carol@x.com", Password: "pw"}, nil)
	require.NoError(t, err)
	_, err = f.service.Register(ctx, users.CreateInput{Username: "carol", Email: "c2@x.com", Password: "pw"}, nil)
	assert.ErrorIs(t, err, shared.ErrDuplicateIdentity)
}

func TestRegisterRoleAssignmentRequiresAdmin(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()
	in := users.CreateInput{Username: "dave", Email: "dave@x.com", Password: "pw", RoleIDs: []int64{f.admin.ID}}

	_, err := f.service.Register(ctx, in, nil)
	assert.ErrorIs(t, err, shared.ErrForbidden)
	plain := &rbac.User{ID: 99, Roles: []rbac.Role{{Name: shared.RoleUser}}}
	_, err = f.service.Register(ctx, in, plain)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	admin := &rbac.User{ID: 1, Roles: []rbac.Role{{Name: shared.RoleAdmin}}}
	created, err := f.service.Register(ctx, in, admin)
	require.NoError(t, err)
	assert.True(t, created.HasRole(shared.RoleAdmin))
}

func TestRegisterClosedSignup(t *testing.T) {
	f := newAuthFixture(t, false)
	ctx := context.Background()
	in := users.CreateInput{Username: "erin", Email: "erin@x.com", Password: "pw"}

	_, err := f.service.Register(ctx, in, nil)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	admin := &rbac.User{ID: 1, Roles: []rbac.Role{{Name: shared.RoleAdmin}}}
	_, err = f.service.Register(ctx, in, admin)
	assert.NoError(t, err)
}
