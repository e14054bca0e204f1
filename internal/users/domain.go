package users

import (
	"time"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
)

// CreateInput carries the fields for a new account. Password is plaintext and
// is hashed before it reaches the store. Empty RoleIDs means the default role.
type CreateInput struct {
	Username string
	Email    string
	Password string
	RoleIDs  []int64
}

// Patch lists optional user fields; only non-nil fields are applied.
// A non-nil RoleIDs replaces the role set, and an empty slice strips every role.
type Patch struct {
	Username *string
	Email    *string
	Password *string
	RoleIDs  *[]int64
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Username == nil && p.Email == nil && p.Password == nil && p.RoleIDs == nil
}

// Response is the outward representation of a user. It never carries the password digest.
type Response struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ToResponse maps a stored user to its outward representation.
func ToResponse(u rbac.User) Response {
	roles := u.RoleNames()
	if roles == nil {
		roles = []string{}
	}
	perms := u.EffectivePermissions()
	if perms == nil {
		perms = []string{}
	}
	return Response{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Roles:       roles,
		Permissions: perms,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
