package rbac

import (
	"context"

	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// RequireRole fails with shared.ErrForbidden unless user holds the named role.
// A nil user is unauthenticated.
func RequireRole(user *User, name string) error {
	if user == nil {
		return shared.ErrUnauthenticated
	}
	if !user.HasRole(name) {
		return shared.ErrForbidden
	}
	return nil
}

// RequirePermission fails with shared.ErrForbidden unless some role of user grants the permission.
func RequirePermission(user *User, name string) error {
	if user == nil {
		return shared.ErrUnauthenticated
	}
	if !user.HasPermission(name) {
		return shared.ErrForbidden
	}
	return nil
}

// RequireRoleFrom applies RequireRole to the identity stored in ctx.
func RequireRoleFrom(ctx context.Context, name string) error {
	return RequireRole(IdentityFromContext(ctx), name)
}

// RequirePermissionFrom applies RequirePermission to the identity stored in ctx.
func RequirePermissionFrom(ctx context.Context, name string) error {
	return RequirePermission(IdentityFromContext(ctx), name)
}
