package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

const roleColumns = `id, name, description, created_at, updated_at`

func scanRole(row pgx.Row) (rbac.Role, error) {
	var r rbac.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func rolePermissions(ctx context.Context, q querier, roleID int64) ([]rbac.Permission, error) {
	rows, err := q.Query(ctx, `
SELECT p.id, p.name, p.description
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: role permissions: %w", err)
	}
	defer rows.Close()
	var perms []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func getRole(ctx context.Context, q querier, where string, arg any) (rbac.Role, error) {
	role, err := scanRole(q.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Role{}, shared.ErrNotFound
	}
	if err != nil {
		return rbac.Role{}, fmt.Errorf("store/postgres: get role: %w", err)
	}
	if role.Permissions, err = rolePermissions(ctx, q, role.ID); err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

// ListRoles returns roles ordered by ID with their permissions.
func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list roles: %w", err)
	}
	roles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.Role, error) {
		return scanRole(row)
	})
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list roles: %w", err)
	}
	for i := range roles {
		if roles[i].Permissions, err = rolePermissions(ctx, s.pool, roles[i].ID); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (s *Store) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return getRole(ctx, s.pool, `id = $1`, id)
}

// GetRoleByName fetches a role by name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	return getRole(ctx, s.pool, `name = $1`, name)
}

func grantPermissions(ctx context.Context, tx pgx.Tx, roleID int64, permissionIDs []int64) error {
	ids := uniqueIDs(permissionIDs)
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) SELECT $1, unnest($2::bigint[])`,
		roleID, ids); err != nil {
		return writeErr("grant permissions", err, shared.ErrNameTaken)
	}
	return nil
}

// CreateRole inserts a role with its permissions in one transaction.
func (s *Store) CreateRole(ctx context.Context, name, description string, permissionIDs []int64) (rbac.Role, error) {
	var role rbac.Role
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		now := s.now().UTC()
		var id int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO roles (name, description, created_at, updated_at) VALUES ($1, $2, $3, $3) RETURNING id`,
			name, description, now).Scan(&id); err != nil {
			return writeErr("create role", err, shared.ErrNameTaken)
		}
		if err := grantPermissions(ctx, tx, id, permissionIDs); err != nil {
			return err
		}
		var err error
		role, err = getRole(ctx, tx, `id = $1`, id)
		return err
	})
	return role, err
}

// EnsureRole creates the role when absent and grants it a snapshot of the
// permissions matched by grant within the same transaction.
func (s *Store) EnsureRole(ctx context.Context, name, description string, grant rbac.PermissionFilter) (rbac.Role, bool, error) {
	var (
		role    rbac.Role
		created bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		now := s.now().UTC()
		var id int64
		err := tx.QueryRow(ctx, `
INSERT INTO roles (name, description, created_at, updated_at) VALUES ($1, $2, $3, $3)
ON CONFLICT (name) DO NOTHING
RETURNING id`, name, description, now).Scan(&id)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return fmt.Errorf("store/postgres: ensure role: %w", err)
		default:
			created = true
			perms, err := listPermissions(ctx, tx)
			if err != nil {
				return err
			}
			var ids []int64
			for _, p := range perms {
				if grant(p) {
					ids = append(ids, p.ID)
				}
			}
			if err := grantPermissions(ctx, tx, id, ids); err != nil {
				return err
			}
		}
		role, err = getRole(ctx, tx, `name = $1`, name)
		return err
	})
	return role, created, err
}

// UpdateRole changes name and description.
func (s *Store) UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE roles SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		name, description, s.now().UTC(), id)
	if err != nil {
		return rbac.Role{}, writeErr("update role", err, shared.ErrNameTaken)
	}
	if err := notFoundIfNone(tag); err != nil {
		return rbac.Role{}, err
	}
	return s.GetRole(ctx, id)
}

// SetRolePermissions replaces the permission set of a role atomically.
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE roles SET updated_at = $1 WHERE id = $2`, s.now().UTC(), roleID)
		if err != nil {
			return fmt.Errorf("store/postgres: touch role: %w", err)
		}
		if err := notFoundIfNone(tag); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("store/postgres: clear role permissions: %w", err)
		}
		return grantPermissions(ctx, tx, roleID, permissionIDs)
	})
}

// DeleteRole removes a role. Roles still assigned to users are ErrInUse.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return deleteErr("delete role", err)
	}
	return notFoundIfNone(tag)
}
