package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a SQLite database with the given DSN.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite has a single writer; one connection keeps donation
	// transactions strictly serialized and shares :memory: databases.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content TEXT NOT NULL,
			attachment TEXT DEFAULT NULL,
			created_at DATETIME NOT NULL,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			deleted_for_all BOOLEAN NOT NULL DEFAULT 0
		);`,
		// Per-user deletes ("delete for me")
		`CREATE TABLE IF NOT EXISTS user_hidden_messages (
			user_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			hidden_at DATETIME NOT NULL,
			PRIMARY KEY (user_id, message_id),
			FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS inventory_items (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			remaining_quantity INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS donation_requests (
			id TEXT PRIMARY KEY,
			inventory_id TEXT NOT NULL,
			requester_id TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			quantity INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			accepted_by TEXT DEFAULT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (inventory_id) REFERENCES inventory_items(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, is_read);`,
		`CREATE INDEX IF NOT EXISTS idx_donation_requests_inventory ON donation_requests(inventory_id, status);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	return nil
}
