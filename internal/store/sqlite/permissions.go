package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// ListPermissions returns the catalog ordered by name.
func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return listPermissions(ctx, s.db)
}

func listPermissions(ctx context.Context, q querier) ([]rbac.Permission, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: list permissions: %w", err)
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

// GetPermissionByName fetches a permission by its unique name.
func (s *Store) GetPermissionByName(ctx context.Context, name string) (rbac.Permission, error) {
	var p rbac.Permission
	err := s.db.QueryRowContext(ctx, `SELECT id, name, description FROM permissions WHERE name = ?`, name).
		Scan(&p.ID, &p.Name, &p.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Permission{}, shared.ErrNotFound
	}
	if err != nil {
		return rbac.Permission{}, fmt.Errorf("store/sqlite: get permission: %w", err)
	}
	return p, nil
}

// CreatePermission inserts a permission; a taken name is ErrNameTaken.
func (s *Store) CreatePermission(ctx context.Context, name, description string) (rbac.Permission, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO permissions (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return rbac.Permission{}, writeErr("create permission", err, shared.ErrNameTaken)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rbac.Permission{}, fmt.Errorf("store/sqlite: create permission: %w", err)
	}
	return rbac.Permission{ID: id, Name: name, Description: description}, nil
}

// EnsurePermission inserts the permission unless its name exists.
func (s *Store) EnsurePermission(ctx context.Context, name, description string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO permissions (name, description) VALUES (?, ?) ON CONFLICT (name) DO NOTHING`,
		name, description)
	if err != nil {
		return false, fmt.Errorf("store/sqlite: ensure permission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeletePermission removes a permission no role references.
func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = ?`, id)
	if err != nil {
		return deleteErr("delete permission", err)
	}
	return affectedOrNotFound(res)
}
