package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	platformsqlite "github.com/nutrition-api/nutrition-api/internal/platform/sqlite"
	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

const roleColumns = `id, name, description, created_at, updated_at`

type roleScanner interface {
	Scan(dest ...any) error
}

func scanRole(row roleScanner) (rbac.Role, error) {
	var (
		r                    rbac.Role
		createdAt, updatedAt int64
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &createdAt, &updatedAt); err != nil {
		return rbac.Role{}, err
	}
	r.CreatedAt = platformsqlite.FromMillis(createdAt)
	r.UpdatedAt = platformsqlite.FromMillis(updatedAt)
	return r, nil
}

func rolePermissions(ctx context.Context, q querier, roleID int64) ([]rbac.Permission, error) {
	rows, err := q.QueryContext(ctx, `
SELECT p.id, p.name, p.description
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = ?
ORDER BY p.name`, roleID)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: role permissions: %w", err)
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

func getRole(ctx context.Context, q querier, query string, arg any) (rbac.Role, error) {
	role, err := scanRole(q.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE `+query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, shared.ErrNotFound
	}
	if err != nil {
		return rbac.Role{}, fmt.Errorf("store/sqlite: get role: %w", err)
	}
	role.Permissions, err = rolePermissions(ctx, q, role.ID)
	if err != nil {
		return rbac.Role{}, err
	}
	return role, nil
}

// ListRoles returns roles ordered by ID with their permissions.
func (s *Store) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: list roles: %w", err)
	}
	var roles []rbac.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range roles {
		if roles[i].Permissions, err = rolePermissions(ctx, s.db, roles[i].ID); err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// GetRole fetches a role by ID.
func (s *Store) GetRole(ctx context.Context, id int64) (rbac.Role, error) {
	return getRole(ctx, s.db, `id = ?`, id)
}

// GetRoleByName fetches a role by name.
func (s *Store) GetRoleByName(ctx context.Context, name string) (rbac.Role, error) {
	return getRole(ctx, s.db, `name = ?`, name)
}

func insertRolePermissions(ctx context.Context, tx *sql.Tx, roleID int64, permissionIDs []int64) error {
	for _, pid := range uniqueIDs(permissionIDs) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES (?, ?)`, roleID, pid); err != nil {
			return writeErr("grant permission", err, shared.ErrNameTaken)
		}
	}
	return nil
}

// CreateRole inserts a role with its permissions in one transaction.
func (s *Store) CreateRole(ctx context.Context, name, description string, permissionIDs []int64) (rbac.Role, error) {
	var role rbac.Role
	err := platformsqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := s.stamp()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO roles (name, description, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			name, description, now, now)
		if err != nil {
			return writeErr("create role", err, shared.ErrNameTaken)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := insertRolePermissions(ctx, tx, id, permissionIDs); err != nil {
			return err
		}
		role, err = getRole(ctx, tx, `id = ?`, id)
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
	err := platformsqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := s.stamp()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO roles (name, description, created_at, updated_at) VALUES (?, ?, ?, ?) ON CONFLICT (name) DO NOTHING`,
			name, description, now, now)
		if err != nil {
			return fmt.Errorf("store/sqlite: ensure role: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 1 {
			created = true
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
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
			if err := insertRolePermissions(ctx, tx, id, ids); err != nil {
				return err
			}
		}
		role, err = getRole(ctx, tx, `name = ?`, name)
		return err
	})
	return role, created, err
}

// UpdateRole changes name and description.
func (s *Store) UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE roles SET name = ?, description = ?, updated_at = ? WHERE id = ?`,
		name, description, s.stamp(), id)
	if err != nil {
		return rbac.Role{}, writeErr("update role", err, shared.ErrNameTaken)
	}
	if err := affectedOrNotFound(res); err != nil {
		return rbac.Role{}, err
	}
	return s.GetRole(ctx, id)
}

// SetRolePermissions replaces the permission set of a role atomically.
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return platformsqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE roles SET updated_at = ? WHERE id = ?`, s.stamp(), roleID)
		if err != nil {
			return fmt.Errorf("store/sqlite: touch role: %w", err)
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = ?`, roleID); err != nil {
			return fmt.Errorf("store/sqlite: clear role permissions: %w", err)
		}
		return insertRolePermissions(ctx, tx, roleID, permissionIDs)
	})
}

// DeleteRole removes a role. Roles still assigned to users are ErrInUse.
func (s *Store) DeleteRole(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = ?`, id)
	if err != nil {
		return deleteErr("delete role", err)
	}
	return affectedOrNotFound(res)
}
