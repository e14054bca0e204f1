// Package rbactest provides an in-memory rbac.Store for tests.
package rbactest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

type userRow struct {
	id        int64
	username  string
	email     string
	hash      string
	createdAt time.Time
	updatedAt time.Time
}

type roleRow struct {
	id          int64
	name        string
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

// Store is a mutex guarded rbac.Store mirroring the relational constraints:
// unique names, composite junction keys, cascading user deletes and
// restricted deletes of referenced roles and permissions.
type Store struct {
	mu          sync.Mutex
	nextID      int64
	permissions map[int64]rbac.Permission
	roles       map[int64]*roleRow
	users       map[int64]*userRow
	rolePerms   map[int64]map[int64]struct{}
	userRoles   map[int64]map[int64]struct{}
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		permissions: make(map[int64]rbac.Permission),
		roles:       make(map[int64]*roleRow),
		users:       make(map[int64]*userRow),
		rolePerms:   make(map[int64]map[int64]struct{}),
		userRoles:   make(map[int64]map[int64]struct{}),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// ListPermissions returns permissions ordered by name.
func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedPermissions(nil), nil
}

func (s *Store) sortedPermissions(ids map[int64]struct{}) []rbac.Permission {
	perms := make([]rbac.Permission, 0, len(s.permissions))
	for id, p := range s.permissions {
		if ids != nil {
			if _, ok := ids[id]; !ok {
				continue
			}
		}
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms
}

// GetPermissionByName fetches a permission by its unique name.
func (s *Store) GetPermissionByName(ctx context.Context, name string) (rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == name {
			return p, nil
		}
	}
	return rbac.Permission{}, shared.ErrNotFound
}

// CreatePermission inserts a permission.
func (s *Store) CreatePermission(ctx context.Context, name, description string) (rbac.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == name {
			return rbac.Permission{}, shared.ErrNameTaken
		}
	}
	p := rbac.Permission{ID: s.id(), Name: name, Description: description}
	s.permissions[p.ID] = p
	return p, nil
}

// EnsurePermission inserts the permission when absent.
func (s *Store) EnsurePermission(ctx context.Context, name, description string) (bool, error) {
	_, err := s.CreatePermission(ctx, name, description)
	if err == shared.ErrNameTaken {
		return false, nil
	}
	return err == nil, err
}

// DeletePermission removes an unreferenced permission.
func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[id]; !ok {
		return shared.ErrNotFound
	}
	for _, perms := range s.rolePerms {
		if _, ok := perms[id]; ok {
			return shared.ErrInUse
		}
	}
	delete(s.permissions, id)
	return nil
}

func (s *Store) role(row *roleRow) rbac.Role {
	return rbac.Role{
		ID:          row.id,
		Name:        row.name,
		Description: row.description,
		Permissions: s.sortedPermissions(s.rolePermSet(row.id)),
		CreatedAt:   row.createdAt,
		UpdatedAt:   row.updatedAt,
	}
}

func (s *Store) rolePermSet(roleID int64) map[int64]struct{} {
	set, ok := s.rolePerms[roleID]
	if !ok {
		return map[int64]struct{}{}
	}
	return set
}

// ListRoles returns roles ordered by ID.
func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roles := make([]rbac.Role, 0, len(s.roles))
	for _, row := range s.roles {
		roles = append(roles, s.role(row))
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

// GetRole fetches a role by ID.
func (s *Store) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	return s.role(row), nil
}

// GetRoleByName fetches a role by name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.roles {
		if row.name == name {
			return s.role(row), nil
		}
	}
	return rbac.Role{}, shared.ErrNotFound
}

func (s *Store) insertRole(name, description string, permissionIDs []int64) (*roleRow, error) {
	for _, row := range s.roles {
		if row.name == name {
			return nil, shared.ErrNameTaken
		}
	}
	for _, pid := range permissionIDs {
		if _, ok := s.permissions[pid]; !ok {
			return nil, shared.ErrValidation
		}
	}
	now := time.Now().UTC()
	row := &roleRow{id: s.id(), name: name, description: description, createdAt: now, updatedAt: now}
	s.roles[row.id] = row
	set := make(map[int64]struct{}, len(permissionIDs))
	for _, pid := range permissionIDs {
		set[pid] = struct{}{}
	}
	s.rolePerms[row.id] = set
	return row, nil
}

// CreateRole inserts a role with the given permissions.
func (s *Store) CreateRole(ctx context.Context, name, description string, permissionIDs []int64) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.insertRole(name, description, permissionIDs)
	if err != nil {
		return rbac.Role{}, err
	}
	return s.role(row), nil
}

// EnsureRole creates the role with a snapshot of matching permissions when absent.
func (s *Store) EnsureRole(ctx context.Context, name, description string, grant rbac.PermissionFilter) (rbac.Role, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.roles {
		if row.name == name {
			return s.role(row), false, nil
		}
	}
	var ids []int64
	for _, p := range s.sortedPermissions(nil) {
		if grant(p) {
			ids = append(ids, p.ID)
		}
	}
	row, err := s.insertRole(name, description, ids)
	if err != nil {
		return rbac.Role{}, false, err
	}
	return s.role(row), true, nil
}

// UpdateRole changes name and description.
func (s *Store) UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.roles[id]
	if !ok {
		return rbac.Role{}, shared.ErrNotFound
	}
	for _, other := range s.roles {
		if other.id != id && other.name == name {
			return rbac.Role{}, shared.ErrNameTaken
		}
	}
	row.name = name
	row.description = description
	row.updatedAt = time.Now().UTC()
	return s.role(row), nil
}

// SetRolePermissions replaces the permissions of a role.
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return shared.ErrNotFound
	}
	set := make(map[int64]struct{}, len(permissionIDs))
	for _, pid := range permissionIDs {
		if _, ok := s.permissions[pid]; !ok {
			return shared.ErrValidation
		}
		set[pid] = struct{}{}
	}
	s.rolePerms[roleID] = set
	return nil
}

// DeleteRole removes a role not assigned to any user.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return shared.ErrNotFound
	}
	for _, roles := range s.userRoles {
		if _, ok := roles[id]; ok {
			return shared.ErrInUse
		}
	}
	delete(s.roles, id)
	delete(s.rolePerms, id)
	return nil
}

func (s *Store) user(row *userRow) rbac.User {
	user := rbac.User{
		ID:           row.id,
		Username:     row.username,
		Email:        row.email,
		PasswordHash: row.hash,
		CreatedAt:    row.createdAt,
		UpdatedAt:    row.updatedAt,
	}
	for rid := range s.userRoles[row.id] {
		user.Roles = append(user.Roles, s.role(s.roles[rid]))
	}
	sort.Slice(user.Roles, func(i, j int) bool { return user.Roles[i].ID < user.Roles[j].ID })
	return user
}

// ListUsers returns a page of users ordered by ID and the total count.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]rbac.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	total := len(ids)
	if offset > len(ids) {
		offset = len(ids)
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	users := make([]rbac.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, s.user(s.users[id]))
	}
	return users, total, nil
}

// GetUser fetches a user by ID with roles and permissions.
func (s *Store) GetUser(ctx context.Context, id int64) (rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return rbac.User{}, shared.ErrNotFound
	}
	return s.user(row), nil
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.users {
		if row.username == username {
			return s.user(row), nil
		}
	}
	return rbac.User{}, shared.ErrNotFound
}

func (s *Store) conflicts(id int64, username, email string) bool {
	for _, row := range s.users {
		if row.id == id {
			continue
		}
		if row.username == username || row.email == email {
			return true
		}
	}
	return false
}

func (s *Store) assign(userID int64, roleIDs []int64) error {
	set := make(map[int64]struct{}, len(roleIDs))
	for _, rid := range roleIDs {
		if _, ok := s.roles[rid]; !ok {
			return shared.ErrValidation
		}
		set[rid] = struct{}{}
	}
	s.userRoles[userID] = set
	return nil
}

// CreateUser inserts a user and its role assignments.
func (s *Store) CreateUser(ctx context.Context, user rbac.NewUser) (rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflicts(0, user.Username, user.Email) {
		return rbac.User{}, shared.ErrDuplicateIdentity
	}
	for _, rid := range user.RoleIDs {
		if _, ok := s.roles[rid]; !ok {
			return rbac.User{}, shared.ErrValidation
		}
	}
	now := time.Now().UTC()
	row := &userRow{id: s.id(), username: user.Username, email: user.Email, hash: user.PasswordHash, createdAt: now, updatedAt: now}
	s.users[row.id] = row
	_ = s.assign(row.id, user.RoleIDs)
	return s.user(row), nil
}

// EnsureUser inserts the user unless the username or email exists.
func (s *Store) EnsureUser(ctx context.Context, user rbac.NewUser) (rbac.User, bool, error) {
	created, err := s.CreateUser(ctx, user)
	if err == shared.ErrDuplicateIdentity {
		return rbac.User{}, false, nil
	}
	if err != nil {
		return rbac.User{}, false, err
	}
	return created, true, nil
}

// UpdateUser applies changes atomically.
func (s *Store) UpdateUser(ctx context.Context, id int64, changes rbac.UserChanges) (rbac.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return rbac.User{}, shared.ErrNotFound
	}
	next := *row
	if changes.Username != nil {
		next.username = *changes.Username
	}
	if changes.Email != nil {
		next.email = *changes.Email
	}
	if changes.PasswordHash != nil {
		next.hash = *changes.PasswordHash
	}
	if s.conflicts(id, next.username, next.email) {
		return rbac.User{}, shared.ErrDuplicateIdentity
	}
	if changes.RoleIDs != nil {
		for _, rid := range *changes.RoleIDs {
			if _, ok := s.roles[rid]; !ok {
				return rbac.User{}, shared.ErrValidation
			}
		}
		_ = s.assign(id, *changes.RoleIDs)
	}
	next.updatedAt = time.Now().UTC()
	*row = next
	return s.user(row), nil
}

// DeleteUser removes the user and its role assignments.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.users, id)
	delete(s.userRoles, id)
	return nil
}

// UserHasPermission reports whether any role of the user grants permission.
func (s *Store) UserHasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for rid := range s.userRoles[userID] {
		for pid := range s.rolePerms[rid] {
			if s.permissions[pid].Name == permission {
				return true, nil
			}
		}
	}
	return false, nil
}

var _ rbac.Store = (*Store)(nil)
