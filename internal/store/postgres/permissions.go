package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

// ListPermissions returns the catalog ordered by name.
func (s *Store) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	return listPermissions(ctx, s.pool)
}

func listPermissions(ctx context.Context, q querier) ([]rbac.Permission, error) {
	rows, err := q.Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: list permissions: %w", err)
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
	err := s.pool.QueryRow(ctx, `SELECT id, name, description FROM permissions WHERE name = $1`, name).
		Scan(&p.ID, &p.Name, &p.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.Permission{}, shared.ErrNotFound
	}
	if err != nil {
		return rbac.Permission{}, fmt.Errorf("store/postgres: get permission: %w", err)
	}
	return p, nil
}

// CreatePermission inserts a permission; a taken name is ErrNameTaken.
func (s *Store) CreatePermission(ctx context.Context, name, description string) (rbac.Permission, error) {
	p := rbac.Permission{Name: name, Description: description}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2) RETURNING id`,
		name, description).Scan(&p.ID)
	if err != nil {
		return rbac.Permission{}, writeErr("create permission", err, shared.ErrNameTaken)
	}
	return p, nil
}

// EnsurePermission inserts the permission unless its name exists.
func (s *Store) EnsurePermission(ctx context.Context, name, description string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO permissions (name, description) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
		name, description)
	if err != nil {
		return false, fmt.Errorf("store/postgres: ensure permission: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeletePermission removes a permission no role references.
func (s *Store) DeletePermission(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return deleteErr("delete permission", err)
	}
	return notFoundIfNone(tag)
}
