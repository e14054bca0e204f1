package rbac

import (
	"context"
	"time"
)

// Permission represents an atomic capability. Name is the stable key; ID is a storage detail.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Role represents a named bundle of permissions.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// HasPermission reports whether the role grants the named permission.
func (r Role) HasPermission(name string) bool {
	for _, p := range r.Permissions {
		if p.Name == name {
			return true
		}
	}
	return false
}

// User is an account with its roles eagerly loaded.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Roles        []Role    `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasRole reports whether the user holds a role with the given name.
func (u *User) HasRole(name string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasPermission reports whether any of the user's roles grants the named permission.
func (u *User) HasPermission(name string) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r.HasPermission(name) {
			return true
		}
	}
	return false
}

// RoleNames returns the names of the user's roles.
func (u *User) RoleNames() []string {
	if u == nil {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// EffectivePermissions returns deduplicated permission names granted through all roles.
func (u *User) EffectivePermissions() []string {
	if u == nil {
		return nil
	}
	seen := make(map[string]struct{})
	var perms []string
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			perms = append(perms, p.Name)
		}
	}
	return perms
}

// NewUser carries the fields needed to insert a user. PasswordHash must already be hashed.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	RoleIDs      []int64
}

// UserChanges lists the fields of a user update. Nil fields are left untouched;
// a non-nil RoleIDs replaces the user's roles, including with an empty set.
type UserChanges struct {
	Username     *string
	Email        *string
	PasswordHash *string
	RoleIDs      *[]int64
}

// PermissionFilter selects catalog permissions granted to a role at creation time.
type PermissionFilter func(Permission) bool

// AllPermissions grants every permission in the catalog.
func AllPermissions(Permission) bool { return true }

// NoPermissions grants nothing.
func NoPermissions(Permission) bool { return false }

// Store is the credential store. Writes touching a user or role and its
// relations commit atomically.
type Store interface {
	ListPermissions(ctx context.Context) ([]Permission, error)
	GetPermissionByName(ctx context.Context, name string) (Permission, error)
	CreatePermission(ctx context.Context, name, description string) (Permission, error)
	// EnsurePermission inserts the permission when absent and never overwrites.
	EnsurePermission(ctx context.Context, name, description string) (bool, error)
	DeletePermission(ctx context.Context, id int64) error

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, name, description string, permissionIDs []int64) (Role, error)
	// EnsureRole creates the role when absent and, in the same transaction,
	// attaches the catalog permissions matched by grant. Existing roles are returned untouched.
	EnsureRole(ctx context.Context, name, description string, grant PermissionFilter) (Role, bool, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	DeleteRole(ctx context.Context, id int64) error

	ListUsers(ctx context.Context, limit, offset int) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, user NewUser) (User, error)
	// EnsureUser creates the user with its roles when neither username nor email exists.
	EnsureUser(ctx context.Context, user NewUser) (User, bool, error)
	UpdateUser(ctx context.Context, id int64, changes UserChanges) (User, error)
	DeleteUser(ctx context.Context, id int64) error
	UserHasPermission(ctx context.Context, userID int64, permission string) (bool, error)
}
