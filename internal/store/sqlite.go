// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Opens the database, creates the ledger schema and applies migrations

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// memoryPath opens a private in-memory database.
const memoryPath = ":memory:"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != memoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if path == memoryPath {
		// Each pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
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
		CREATE TABLE IF NOT EXISTS ledger_events (
			event_id     TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			client_id    TEXT NOT NULL,
			app_name     TEXT NOT NULL DEFAULT '',
			channel      TEXT NOT NULL DEFAULT '',
			context_type TEXT NOT NULL DEFAULT '',
			intent       TEXT NOT NULL DEFAULT '',
			timestamp    TEXT NOT NULL,

			CHECK (kind IN ('connect', 'disconnect', 'join', 'leave', 'broadcast', 'intent', 'open'))
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_timestamp ON ledger_events(timestamp, event_id);
		CREATE INDEX IF NOT EXISTS idx_ledger_client ON ledger_events(client_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_ledger_channel ON ledger_events(channel, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('ledger_events') WHERE name = 'target'`,
			apply:  `ALTER TABLE ledger_events ADD COLUMN target TEXT NOT NULL DEFAULT ''`,
			column: "target",
		},
		{
			check:  `SELECT 1 FROM pragma_table_info('ledger_events') WHERE name = 'detail'`,
			apply:  `ALTER TABLE ledger_events ADD COLUMN detail TEXT`,
			column: "detail",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to ledger_events: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "ledger_events")
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}
