package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// TokenVerifier verifies bearer tokens into a subject user ID.
type TokenVerifier interface {
	Verify(raw string) (int64, error)
}

// UserLoader loads a user with roles and permissions eagerly populated.
type UserLoader interface {
	GetUser(ctx context.Context, id int64) (rbac.User, error)
}

// Resolver turns a bearer credential into the authenticated user.
type Resolver struct {
	tokens TokenVerifier
	users  UserLoader
}

// NewResolver constructs a Resolver.
func NewResolver(tokens TokenVerifier, users UserLoader) *Resolver {
	return &Resolver{tokens: tokens, users: users}
}

// Resolve verifies raw and loads its subject. Any credential problem, including
// a subject that no longer exists, yields shared.ErrUnauthenticated. Store
// failures are returned wrapped so they surface as server errors.
func (r *Resolver) Resolve(ctx context.Context, raw string) (*rbac.User, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, shared.ErrUnauthenticated
	}
	userID, err := r.tokens.Verify(raw)
	if err != nil {
		return nil, shared.ErrUnauthenticated
	}
	user, err := r.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthenticated
		}
		return nil, fmt.Errorf("auth: load user: %w", err)
	}
	return &user, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
