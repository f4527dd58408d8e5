package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the DoughNation schema on
// PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT        PRIMARY KEY,
			name       TEXT        NOT NULL DEFAULT '',
			role       TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id              TEXT        PRIMARY KEY,
			sender_id       TEXT        NOT NULL,
			receiver_id     TEXT        NOT NULL,
			content         TEXT        NOT NULL,
			attachment      TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			is_read         BOOLEAN     NOT NULL DEFAULT FALSE,
			deleted_for_all BOOLEAN     NOT NULL DEFAULT FALSE
		)`,

		// Per-user deletes ("delete for me")
		`CREATE TABLE IF NOT EXISTS user_hidden_messages (
			user_id    TEXT        NOT NULL,
			message_id TEXT        NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			hidden_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (user_id, message_id)
		)`,

		`CREATE TABLE IF NOT EXISTS inventory_items (
			id                 TEXT        PRIMARY KEY,
			owner_id           TEXT        NOT NULL,
			product_name       TEXT        NOT NULL,
			remaining_quantity INTEGER     NOT NULL,
			created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS donation_requests (
			id           TEXT        PRIMARY KEY,
			inventory_id TEXT        NOT NULL REFERENCES inventory_items(id),
			requester_id TEXT        NOT NULL,
			message_id   TEXT        NOT NULL DEFAULT '',
			quantity     INTEGER     NOT NULL,
			status       TEXT        NOT NULL DEFAULT 'pending',
			accepted_by  TEXT,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id, is_read)`,
		`CREATE INDEX IF NOT EXISTS idx_donation_requests_inventory ON donation_requests(inventory_id, status)`,

		// At most one accepted request per inventory item, enforced by the
		// database as well as by Accept.
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_donation_requests_accepted
			ON donation_requests(inventory_id) WHERE status = 'accepted'`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
