package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const currentVersion = 2

// DB wraps a SQLite database connection holding the harvested graph.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at the given path and runs
// migrations. Use ":memory:" for an in-memory database (useful for testing).
func Open(path string) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	} else {
		dsn = ":memory:?_pragma=foreign_keys(ON)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: the store assumes single-writer access.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &DB{db: sqlDB}
	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Conn returns the underlying *sql.DB for advanced use cases.
func (d *DB) Conn() *sql.DB {
	return d.db
}

func (d *DB) migrate() error {
	var version int
	err := d.db.QueryRow("PRAGMA user_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("reading user_version: %w", err)
	}

	if version >= currentVersion {
		return nil
	}

	if version < 1 {
		if err := d.migrateV1(); err != nil {
			return err
		}
	}
	if version < 2 {
		if err := d.migrateV2(); err != nil {
			return err
		}
	}

	_, err = d.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentVersion))
	if err != nil {
		return fmt.Errorf("setting user_version: %w", err)
	}

	return nil
}

func (d *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS channels (
			id TEXT PRIMARY KEY,
			login TEXT NOT NULL UNIQUE,
			display_name TEXT,
			description TEXT,
			view_count INTEGER NOT NULL DEFAULT 0,
			follower_count INTEGER,
			image_url TEXT,
			first_seen_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			last_refreshed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channels_last_refreshed ON channels(last_refreshed_at, id)`,
		`CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL REFERENCES channels(id),
			title TEXT,
			published_at TEXT,
			duration_seconds INTEGER NOT NULL DEFAULT 0,
			view_count INTEGER NOT NULL DEFAULT 0,
			category_id TEXT,
			fetched_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			mentions_processed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_channel ON videos(channel_id)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_unprocessed ON videos(mentions_processed_at)`,
		`CREATE TABLE IF NOT EXISTS collab_edges (
			channel_a TEXT NOT NULL REFERENCES channels(id),
			channel_b TEXT NOT NULL REFERENCES channels(id),
			count INTEGER NOT NULL DEFAULT 0,
			total_duration_seconds INTEGER NOT NULL DEFAULT 0,
			first_seen_at TEXT,
			last_seen_at TEXT,
			PRIMARY KEY (channel_a, channel_b),
			CHECK (channel_a < channel_b)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edges_b ON collab_edges(channel_b)`,
		`CREATE TABLE IF NOT EXISTS collab_contexts (
			channel_a TEXT NOT NULL,
			channel_b TEXT NOT NULL,
			category_id TEXT NOT NULL DEFAULT '',
			count INTEGER NOT NULL DEFAULT 0,
			total_duration_seconds INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (channel_a, channel_b, category_id),
			FOREIGN KEY (channel_a, channel_b) REFERENCES collab_edges(channel_a, channel_b)
		)`,
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	return tx.Commit()
}

// migrateV2 adds the raw mention ledger. Each row is one mention as
// extracted from one video; the aggregated edges derive from these rows, so
// the ledger doubles as an audit trail behind the graph.
func (d *DB) migrateV2() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS mention_log (
			video_id TEXT NOT NULL REFERENCES videos(id),
			source_channel_id TEXT NOT NULL REFERENCES channels(id),
			target_channel_id TEXT NOT NULL REFERENCES channels(id),
			category_id TEXT NOT NULL DEFAULT '',
			published_at TEXT,
			recorded_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			PRIMARY KEY (video_id, target_channel_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_mention_log_pair ON mention_log(source_channel_id, target_channel_id)`,
	}

	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing migration statement: %w", err)
		}
	}

	return tx.Commit()
}

// fmtTime renders a timestamp in the canonical stored form (UTC RFC3339),
// which compares correctly as text.
func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a stored timestamp, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// parseNullTime converts a nullable stored timestamp into *time.Time.
func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
