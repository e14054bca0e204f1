// Package postgres implements the credential store over PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nutrition-api/nutrition-api/internal/platform/db"
	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/store/postgres/migrations"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store implements rbac.Store over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ rbac.Store = (*Store)(nil)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New wraps pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Migrate applies bundled migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return db.Migrate(ctx, s.pool, migrations.FS, ".")
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withTx runs fn at read committed so ON CONFLICT races resolve against the
// latest committed row instead of failing serialization.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	return db.WithTxIso(ctx, s.pool, pgx.ReadCommitted, fn)
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// writeErr maps constraint failures on inserts and updates. A unique
// violation becomes conflict.
func writeErr(op string, err, conflict error) error {
	switch pgCode(err) {
	case codeUniqueViolation:
		return fmt.Errorf("%s: %w", op, conflict)
	case codeForeignKeyViolation:
		return fmt.Errorf("%s: unknown reference: %w", op, shared.ErrValidation)
	}
	return fmt.Errorf("store/postgres: %s: %w", op, err)
}

// deleteErr maps constraint failures on deletes of referenced rows.
func deleteErr(op string, err error) error {
	if pgCode(err) == codeForeignKeyViolation {
		return fmt.Errorf("%s: %w", op, shared.ErrInUse)
	}
	return fmt.Errorf("store/postgres: %s: %w", op, err)
}

func notFoundIfNone(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
