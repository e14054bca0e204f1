package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
)

const userColumns = `id, username, email, password_hash, created_at, updated_at`

func scanUser(row pgx.Row) (rbac.User, error) {
	var u rbac.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// userRoles loads the roles of a user with their permissions in one query.
func userRoles(ctx context.Context, q querier, userID int64) ([]rbac.Role, error) {
	rows, err := q.Query(ctx, `
SELECT r.id, r.name, r.description, r.created_at, r.updated_at, p.id, p.name, p.description
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY r.id, p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("store/postgres: user roles: %w", err)
	}
	defer rows.Close()
	var roles []rbac.Role
	for rows.Next() {
		var (
			r                  rbac.Role
			permID             *int64
			permName, permDesc *string
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt, &r.UpdatedAt, &permID, &permName, &permDesc); err != nil {
			return nil, err
		}
		if len(roles) == 0 || roles[len(roles)-1].ID != r.ID {
			roles = append(roles, r)
		}
		if permID != nil {
			last := &roles[len(roles)-1]
			last.Permissions = append(last.Permissions, rbac.Permission{ID: *permID, Name: *permName, Description: *permDesc})
		}
	}
	return roles, rows.Err()
}

func getUser(ctx context.Context, q querier, where string, arg any) (rbac.User, error) {
	user, err := scanUser(q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return rbac.User{}, shared.ErrNotFound
	}
	if err != nil {
		return rbac.User{}, fmt.Errorf("store/postgres: get user: %w", err)
	}
	if user.Roles, err = userRoles(ctx, q, user.ID); err != nil {
		return rbac.User{}, err
	}
	return user, nil
}

// ListUsers returns a page of users ordered by ID and the total count.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]rbac.User, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store/postgres: count users: %w", err)
	}
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT $1 OFFSET $2`, limitArg, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store/postgres: list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("store/postgres: list users: %w", err)
	}
	for i := range users {
		if users[i].Roles, err = userRoles(ctx, s.pool, users[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

// GetUser fetches a user by ID with roles and permissions.
func (s *Store) GetUser(ctx context.Context, id int64) (rbac.User, error) {
	return getUser(ctx, s.pool, `id = $1`, id)
}

// GetUserByUsername fetches a user by normalized username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (rbac.User, error) {
	return getUser(ctx, s.pool, `username = $1`, username)
}

func assignRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	ids := uniqueIDs(roleIDs)
	if len(ids) == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO user_roles (user_id, role_id) SELECT $1, unnest($2::bigint[])`,
		userID, ids); err != nil {
		return writeErr("assign roles", err, shared.ErrDuplicateIdentity)
	}
	return nil
}

// CreateUser inserts a user and its role assignments atomically.
func (s *Store) CreateUser(ctx context.Context, user rbac.NewUser) (rbac.User, error) {
	var created rbac.User
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var id int64
		if err := tx.QueryRow(ctx, `
INSERT INTO users (username, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
RETURNING id`, user.Username, user.Email, user.PasswordHash, s.now().UTC()).Scan(&id); err != nil {
			return writeErr("create user", err, shared.ErrDuplicateIdentity)
		}
		if err := assignRoles(ctx, tx, id, user.RoleIDs); err != nil {
			return err
		}
		var err error
		created, err = getUser(ctx, tx, `id = $1`, id)
		return err
	})
	return created, err
}

// EnsureUser inserts the user unless the username or email is taken.
func (s *Store) EnsureUser(ctx context.Context, user rbac.NewUser) (rbac.User, bool, error) {
	var (
		result  rbac.User
		created bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var id int64
		err := tx.QueryRow(ctx, `
INSERT INTO users (username, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT DO NOTHING
RETURNING id`, user.Username, user.Email, user.PasswordHash, s.now().UTC()).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("store/postgres: ensure user: %w", err)
		}
		if err := assignRoles(ctx, tx, id, user.RoleIDs); err != nil {
			return err
		}
		created = true
		result, err = getUser(ctx, tx, `id = $1`, id)
		return err
	})
	if err != nil {
		return rbac.User{}, false, err
	}
	return result, created, nil
}

// UpdateUser applies changes and any role reassignment in one transaction.
func (s *Store) UpdateUser(ctx context.Context, id int64, changes rbac.UserChanges) (rbac.User, error) {
	var updated rbac.User
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE users SET
    username = COALESCE($1, username),
    email = COALESCE($2, email),
    password_hash = COALESCE($3, password_hash),
    updated_at = $4
WHERE id = $5`, changes.Username, changes.Email, changes.PasswordHash, s.now().UTC(), id)
		if err != nil {
			return writeErr("update user", err, shared.ErrDuplicateIdentity)
		}
		if err := notFoundIfNone(tag); err != nil {
			return err
		}
		if changes.RoleIDs != nil {
			if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
				return fmt.Errorf("store/postgres: clear user roles: %w", err)
			}
			if err := assignRoles(ctx, tx, id, *changes.RoleIDs); err != nil {
				return err
			}
		}
		updated, err = getUser(ctx, tx, `id = $1`, id)
		return err
	})
	return updated, err
}

// DeleteUser removes the user; its role assignments cascade.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store/postgres: delete user: %w", err)
	}
	return notFoundIfNone(tag)
}

// UserHasPermission reports whether any role of the user grants permission.
func (s *Store) UserHasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS (
    SELECT 1
    FROM user_roles ur
    JOIN role_permissions rp ON rp.role_id = ur.role_id
    JOIN permissions p ON p.id = rp.permission_id
    WHERE ur.user_id = $1 AND p.name = $2
)`, userID, permission).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("store/postgres: user permission: %w", err)
	}
	return ok, nil
}
