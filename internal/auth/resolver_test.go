package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/users"
)

type failingLoader struct{ err error }

func (f failingLoader) GetUser(context.Context, int64) (rbac.User, error) {
	return rbac.User{}, f.err
}

func TestResolverLoadsSubject(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()
	u, err := f.service.Register(ctx, users.CreateInput{Username: "frank", Email: "frank@x.com", Password: "pw"}, nil)
	require.NoError(t, err)
	raw, _, err := f.tokens.Issue(u.ID, f.tokens.TTL())
	require.NoError(t, err)

	resolver := NewResolver(f.tokens, f.store)
	got, err := resolver.Resolve(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.True(t, got.HasRole(shared.RoleUser))
}

func TestResolverRejectsDeletedSubject(t *testing.T) {
	f := newAuthFixture(t, true)
	ctx := context.Background()
	u, err := f.service.Register(ctx, users.CreateInput{Username: "gina", Email: "gina@x.com", Password: "pw"}, nil)
	require.NoError(t, err)
	raw, _, err := f.tokens.Issue(u.ID, f.tokens.TTL())
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteUser(ctx, u.ID))

	_, err = NewResolver(f.tokens, f.store).Resolve(ctx, raw)
	assert.ErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestResolverFoldsTokenFailures(t *testing.T) {
	f := newAuthFixture(t, true)
	resolver := NewResolver(f.tokens, f.store)
	for _, raw := range []string{"", "   ", "garbage", "a.b.c"} {
		_, err := resolver.Resolve(context.Background(), raw)
		assert.ErrorIs(t, err, shared.ErrUnauthenticated, raw)
		assert.NotErrorIs(t, err, ErrInvalidToken, raw)
	}
}

func TestResolverSurfacesStoreFailures(t *testing.T) {
	f := newAuthFixture(t, true)
	raw, _, err := f.tokens.Issue(7, f.tokens.TTL())
	require.NoError(t, err)

	boom := errors.New("connection refused")
	_, err = NewResolver(f.tokens, failingLoader{err: boom}).Resolve(context.Background(), raw)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, shared.ErrUnauthenticated)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		header string
		token  string
		ok     bool
	}{
		"standard":    {"Bearer abc", "abc", true},
		"lowercase":   {"bearer abc", "abc", true},
		"padded":      {"  Bearer   abc  ", "abc", true},
		"basic":       {"Basic abc", "", false},
		"empty token": {"Bearer ", "", false},
		"missing":     {"", "", false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			token, ok := BearerToken(req)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.token, token)
		})
	}
}
