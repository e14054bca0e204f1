// Package sqlite opens modernc SQLite databases and applies embedded migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	platformdb "github.com/nutrition-api/nutrition-api/internal/platform/db"
)

const migrationTable = "schema_migrations"

// Open opens the database file at path with foreign keys enforced.
// A single connection is kept so transactions never contend for the write lock.
func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("platform/sqlite: path is required")
	}
	dsn := "file:" + filepath.Clean(dbPath) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("platform/sqlite: ping: %w", err)
	}
	return db, nil
}

// ApplyMigrations executes the .sql files under root in lexical order, each at most once.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrations fs.FS, root string) error {
	if db == nil {
		return fmt.Errorf("platform/sqlite: db is required")
	}
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	entries, err := fs.ReadDir(migrations, root)
	if err != nil {
		return fmt.Errorf("platform/sqlite: read migrations: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
	name TEXT PRIMARY KEY,
	applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("platform/sqlite: ensure migration table: %w", err)
	}

	for _, name := range files {
		var found int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM `+migrationTable+` WHERE name = ?`, name).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("platform/sqlite: check migration %s: %w", name, err)
		}
		content, err := fs.ReadFile(migrations, path.Join(root, name))
		if err != nil {
			return fmt.Errorf("platform/sqlite: read migration %s: %w", name, err)
		}
		up := platformdb.UpSection(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("platform/sqlite: begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("platform/sqlite: exec migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`, name, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("platform/sqlite: record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("platform/sqlite: commit migration %s: %w", name, err)
		}
	}
	return nil
}

// WithTx runs fn in a transaction, committing when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("platform/sqlite: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("platform/sqlite: commit tx: %w", err)
	}
	return nil
}

// IsUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY
}

// IsForeignKeyViolation reports a FOREIGN KEY constraint failure.
func IsForeignKeyViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code() == sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY
}

// ToMillis normalizes timestamps for INTEGER columns.
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis restores a UTC timestamp from an INTEGER column.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
