package rbac

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nutrition-api/nutrition-api/internal/shared"
)

var permissionNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*(\.[a-z][a-z0-9_]*)+$`)

// Service orchestrates role and permission management.
type Service struct {
	store Store
}

// NewService constructs a Service backed by the provided store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ListRoles returns all roles with their permissions.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// CreateRole inserts a new role granting the named permissions.
func (s *Service) CreateRole(ctx context.Context, name, description string, permissions []string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	ids, err := s.resolvePermissions(ctx, permissions)
	if err != nil {
		return Role{}, err
	}
	return s.store.CreateRole(ctx, name, strings.TrimSpace(description), ids)
}

// UpdateRole renames or redescribes a role. Base roles keep their names.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", shared.ErrValidation)
	}
	current, err := s.store.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if isBaseRole(current.Name) && current.Name != name {
		return Role{}, fmt.Errorf("%w: base role %q cannot be renamed", shared.ErrValidation, current.Name)
	}
	return s.store.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// SetRolePermissions replaces the permissions of a role with the named set.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissions []string) (Role, error) {
	ids, err := s.resolvePermissions(ctx, permissions)
	if err != nil {
		return Role{}, err
	}
	if err := s.store.SetRolePermissions(ctx, roleID, ids); err != nil {
		return Role{}, err
	}
	return s.store.GetRole(ctx, roleID)
}

// DeleteRole removes a role by ID. Base roles cannot be removed and roles still
// assigned to users fail with shared.ErrInUse.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if isBaseRole(role.Name) {
		return fmt.Errorf("%w: base role %q cannot be deleted", shared.ErrValidation, role.Name)
	}
	return s.store.DeleteRole(ctx, id)
}

// ListPermissions returns the permission catalog ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.store.ListPermissions(ctx)
}

// CreatePermission adds a catalog entry. Existing roles, including admin, are not granted it.
func (s *Service) CreatePermission(ctx context.Context, name, description string) (Permission, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if !permissionNamePattern.MatchString(name) {
		return Permission{}, fmt.Errorf("%w: permission name must look like \"resource.action\"", shared.ErrValidation)
	}
	return s.store.CreatePermission(ctx, name, strings.TrimSpace(description))
}

// DeletePermission removes a catalog entry. Permissions still granted by a
// role fail with shared.ErrInUse.
func (s *Service) DeletePermission(ctx context.Context, id int64) error {
	return s.store.DeletePermission(ctx, id)
}

func (s *Service) resolvePermissions(ctx context.Context, names []string) ([]int64, error) {
	normalized := normalizePermissions(names)
	if len(normalized) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(normalized))
	for _, n := range normalized {
		perm, err := s.store.GetPermissionByName(ctx, n)
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown permission %q", shared.ErrValidation, n)
		}
		if err != nil {
			return nil, err
		}
		ids = append(ids, perm.ID)
	}
	return ids, nil
}

func isBaseRole(name string) bool {
	return name == shared.RoleAdmin || name == shared.RoleUser
}
