package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteDSNOptions are appended to file paths opened by OpenSQLite.
const SQLiteDSNOptions = "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"

// OpenSQLite opens the bid database at path and initializes its schema.
// PRE: path is a writable file path, or ":memory:"
// POST: returns a ready connection pool with all tables present
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn += SQLiteDSNOptions
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// each pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := InitDB(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// InitDB initializes the database schema.
// PRE: db is a valid database connection
// POST: All tables are created, WAL mode enabled
func InitDB(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// The bid uniqueness constraint is what makes concurrent ingestion from
	// several watchers safe without locking. Amounts are stored as canonical
	// decimal text so "500" and "500.0" collide.
	schema := `
	CREATE TABLE IF NOT EXISTS bid (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL,
		item_number INTEGER NOT NULL,
		amount TEXT NOT NULL,
		bidder_name TEXT NOT NULL,
		raw_text TEXT NOT NULL DEFAULT '',
		relative_time TEXT NOT NULL DEFAULT '',
		images TEXT NOT NULL DEFAULT '[]',
		is_summary INTEGER NOT NULL DEFAULT 0,
		withdrawn INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		UNIQUE (post_id, item_number, amount, bidder_name)
	);

	CREATE INDEX IF NOT EXISTS idx_bid_post ON bid(post_id, item_number);

	CREATE TABLE IF NOT EXISTS watcher (
		id TEXT PRIMARY KEY,
		post_url TEXT NOT NULL,
		my_name TEXT NOT NULL DEFAULT '',
		interval_ms INTEGER NOT NULL,
		state TEXT NOT NULL,
		post_number TEXT NOT NULL DEFAULT '',
		running INTEGER NOT NULL DEFAULT 0,
		last_tick_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_watcher_running ON watcher(running);

	CREATE TABLE IF NOT EXISTS outbox (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		max_attempts INTEGER NOT NULL,
		last_attempted_at TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		external_id TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_outbox_status ON outbox(status, created_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}
