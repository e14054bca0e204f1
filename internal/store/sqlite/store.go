// Package sqlite implements the credential store over a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	platformsqlite "github.com/nutrition-api/nutrition-api/internal/platform/sqlite"
	"github.com/nutrition-api/nutrition-api/internal/rbac"
	"github.com/nutrition-api/nutrition-api/internal/shared"
	"github.com/nutrition-api/nutrition-api/internal/store/sqlite/migrations"
)

// Store implements rbac.Store over SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ rbac.Store = (*Store)(nil)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the store at path and applies bundled migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := platformsqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := platformsqlite.ApplyMigrations(ctx, db, migrations.FS, ""); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store/sqlite: migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) stamp() int64 {
	return platformsqlite.ToMillis(s.now())
}

// writeErr maps constraint failures on inserts and updates. A unique
// violation becomes conflict.
func writeErr(op string, err, conflict error) error {
	switch {
	case platformsqlite.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, conflict)
	case platformsqlite.IsForeignKeyViolation(err):
		return fmt.Errorf("%s: unknown reference: %w", op, shared.ErrValidation)
	}
	return fmt.Errorf("store/sqlite: %s: %w", op, err)
}

// deleteErr maps constraint failures on deletes of referenced rows.
func deleteErr(op string, err error) error {
	if platformsqlite.IsForeignKeyViolation(err) {
		return fmt.Errorf("%s: %w", op, shared.ErrInUse)
	}
	return fmt.Errorf("store/sqlite: %s: %w", op, err)
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
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

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
