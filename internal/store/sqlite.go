// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the schema and applies migrations on startup

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed; ":memory:" opens a private
// in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// foreign_keys is per connection, so it goes in the DSN where every pooled
	// connection picks it up.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS principals (
			principal_id  TEXT PRIMARY KEY,
			type          TEXT NOT NULL,
			display_name  TEXT NOT NULL,
			status        TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			last_seen     TEXT,
			metadata_json TEXT,

			CHECK (type IN ('user', 'service')),
			CHECK (status IN ('pending', 'approved', 'revoked'))
		);

		CREATE INDEX IF NOT EXISTS idx_principals_status ON principals(status);
		CREATE INDEX IF NOT EXISTS idx_principals_type ON principals(type);

		CREATE TABLE IF NOT EXISTS roles (
			principal_id TEXT NOT NULL REFERENCES principals(principal_id) ON DELETE CASCADE,
			role         TEXT NOT NULL,
			created_at   TEXT NOT NULL,

			PRIMARY KEY (principal_id, role)
		);

		CREATE TABLE IF NOT EXISTS issued_tokens (
			token_id     TEXT PRIMARY KEY,
			principal_id TEXT NOT NULL REFERENCES principals(principal_id) ON DELETE CASCADE,
			issued_at    TEXT NOT NULL,
			expires_at   TEXT NOT NULL,
			revoked_at   TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_issued_tokens_principal ON issued_tokens(principal_id);
		CREATE INDEX IF NOT EXISTS idx_issued_tokens_expires ON issued_tokens(expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "principals",
			column: "last_seen",
			apply:  `ALTER TABLE principals ADD COLUMN last_seen TEXT`,
		},
		{
			table:  "issued_tokens",
			column: "revoked_at",
			apply:  `ALTER TABLE issued_tokens ADD COLUMN revoked_at TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE or PRIMARY KEY constraint violation
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "PRIMARY KEY")
}

// isForeignKeyViolation checks if the error is a SQLite FOREIGN KEY violation
func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// nullString converts empty strings to NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
