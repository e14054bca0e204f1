package rbac

import "context"

type identityContextKey struct{}

// ContextWithIdentity stores the authenticated user for the lifetime of ctx.
func ContextWithIdentity(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, identityContextKey{}, user)
}

// IdentityFromContext extracts the authenticated user, or nil when the request is anonymous.
func IdentityFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(identityContextKey{}).(*User)
	return user
}
