package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID keys the advisory lock that serializes concurrent migrators.
const migrationLockID = 727_001

// Migrate applies the .sql files under root in lexical order, each at most once.
// Only the section after "-- +migrate Up" (and before "-- +migrate Down") runs.
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, root string) error {
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(migrations, root)
	if err != nil {
		return fmt.Errorf("platform/db: read migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	return WithTxIso(ctx, pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockID); err != nil {
			return fmt.Errorf("platform/db: migration lock: %w", err)
		}
		if _, err := tx.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
	name TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`); err != nil {
			return fmt.Errorf("platform/db: ensure migration table: %w", err)
		}
		for _, name := range files {
			var applied bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, name).Scan(&applied); err != nil {
				return fmt.Errorf("platform/db: check migration %s: %w", name, err)
			}
			if applied {
				continue
			}
			content, err := fs.ReadFile(migrations, path.Join(root, name))
			if err != nil {
				return fmt.Errorf("platform/db: read migration %s: %w", name, err)
			}
			if up := UpSection(string(content)); strings.TrimSpace(up) != "" {
				if _, err := tx.Exec(ctx, up); err != nil {
					return fmt.Errorf("platform/db: exec migration %s: %w", name, err)
				}
			}
			if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
				return fmt.Errorf("platform/db: record migration %s: %w", name, err)
			}
		}
		return nil
	})
}

// UpSection returns the SQL between "-- +migrate Up" and "-- +migrate Down".
// Files without markers are returned whole.
func UpSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	rest := content[start+len(up):]
	if end := strings.Index(rest, down); end != -1 {
		return rest[:end]
	}
	return rest
}
