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

const userColumns = `id, username, email, password_hash, created_at, updated_at`

func scanUser(row roleScanner) (rbac.User, error) {
	var (
		u                    rbac.User
		createdAt, updatedAt int64
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &createdAt, &updatedAt); err != nil {
		return rbac.User{}, err
	}
	u.CreatedAt = platformsqlite.FromMillis(createdAt)
	u.UpdatedAt = platformsqlite.FromMillis(updatedAt)
	return u, nil
}

// userRoles loads the roles of a user with their permissions in one query.
func userRoles(ctx context.Context, q querier, userID int64) ([]rbac.Role, error) {
	rows, err := q.QueryContext(ctx, `
SELECT r.id, r.name, r.description, r.created_at, r.updated_at, p.id, p.name, p.description
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = ?
ORDER BY r.id, p.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: user roles: %w", err)
	}
	defer rows.Close()
	var roles []rbac.Role
	for rows.Next() {
		var (
			r                    rbac.Role
			createdAt, updatedAt int64
			permID               sql.NullInt64
			permName, permDesc   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &createdAt, &updatedAt, &permID, &permName, &permDesc); err != nil {
			return nil, err
		}
		if len(roles) == 0 || roles[len(roles)-1].ID != r.ID {
			r.CreatedAt = platformsqlite.FromMillis(createdAt)
			r.UpdatedAt = platformsqlite.FromMillis(updatedAt)
			roles = append(roles, r)
		}
		if permID.Valid {
			last := &roles[len(roles)-1]
			last.Permissions = append(last.Permissions, rbac.Permission{ID: permID.Int64, Name: permName.String, Description: permDesc.String})
		}
	}
	return roles, rows.Err()
}

func getUser(ctx context.Context, q querier, where string, arg any) (rbac.User, error) {
	user, err := scanUser(q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, shared.ErrNotFound
	}
	if err != nil {
		return rbac.User{}, fmt.Errorf("store/sqlite: get user: %w", err)
	}
	if user.Roles, err = userRoles(ctx, q, user.ID); err != nil {
		return rbac.User{}, err
	}
	return user, nil
}

// ListUsers returns a page of users ordered by ID and the total count.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]rbac.User, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store/sqlite: count users: %w", err)
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store/sqlite: list users: %w", err)
	}
	var users []rbac.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			_ = rows.Close()
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Close(); err != nil {
		return nil, 0, err
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range users {
		if users[i].Roles, err = userRoles(ctx, s.db, users[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return users, total, nil
}

// GetUser fetches a user by ID with roles and permissions.
func (s *Store) GetUser(ctx context.Context, id int64) (rbac.User, error) {
	return getUser(ctx, s.db, `id = ?`, id)
}

// GetUserByUsername fetches a user by normalized username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (rbac.User, error) {
	return getUser(ctx, s.db, `username = ?`, username)
}

func assignRoles(ctx context.Context, tx *sql.Tx, userID int64, roleIDs []int64) error {
	for _, rid := range uniqueIDs(roleIDs) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)`, userID, rid); err != nil {
			return writeErr("assign role", err, shared.ErrDuplicateIdentity)
		}
	}
	return nil
}

func (s *Store) insertUser(ctx context.Context, tx *sql.Tx, user rbac.NewUser) (int64, error) {
	now := s.stamp()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.PasswordHash, now, now)
	if err != nil {
		return 0, writeErr("create user", err, shared.ErrDuplicateIdentity)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, assignRoles(ctx, tx, id, user.RoleIDs)
}

// CreateUser inserts a user and its role assignments atomically.
func (s *Store) CreateUser(ctx context.Context, user rbac.NewUser) (rbac.User, error) {
	var created rbac.User
	err := platformsqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		id, err := s.insertUser(ctx, tx, user)
		if err != nil {
			return err
		}
		created, err = getUser(ctx, tx, `id = ?`, id)
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
	err := platformsqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE username = ? OR email = ?)`,
			user.Username, user.Email).Scan(&exists); err != nil {
			return fmt.Errorf("store/sqlite: ensure user: %w", err)
		}
		if exists {
			return nil
		}
		id, err := s.insertUser(ctx, tx, user)
		if err != nil {
			return err
		}
		created = true
		result, err = getUser(ctx, tx, `id = ?`, id)
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
	err := platformsqlite.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE users SET
    username = COALESCE(?, username),
    email = COALESCE(?, email),
    password_hash = COALESCE(?, password_hash),
    updated_at = ?
WHERE id = ?`,
			nullable(changes.Username), nullable(changes.Email), nullable(changes.PasswordHash), s.stamp(), id)
		if err != nil {
			return writeErr("update user", err, shared.ErrDuplicateIdentity)
		}
		if err := affectedOrNotFound(res); err != nil {
			return err
		}
		if changes.RoleIDs != nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = ?`, id); err != nil {
				return fmt.Errorf("store/sqlite: clear user roles: %w", err)
			}
			if err := assignRoles(ctx, tx, id, *changes.RoleIDs); err != nil {
				return err
			}
		}
		updated, err = getUser(ctx, tx, `id = ?`, id)
		return err
	})
	return updated, err
}

// DeleteUser removes the user; its role assignments cascade.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store/sqlite: delete user: %w", err)
	}
	return affectedOrNotFound(res)
}

// UserHasPermission reports whether any role of the user grants permission.
func (s *Store) UserHasPermission(ctx context.Context, userID int64, permission string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS (
    SELECT 1
    FROM user_roles ur
    JOIN role_permissions rp ON rp.role_id = ur.role_id
    JOIN permissions p ON p.id = rp.permission_id
    WHERE ur.user_id = ? AND p.name = ?
)`, userID, permission).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("store/sqlite: user permission: %w", err)
	}
	return ok, nil
}
