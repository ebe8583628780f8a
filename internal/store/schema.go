// Package store provides SQLite-backed persistence for tags, their association
// graph, revision history, and log links.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS tags (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_by  TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tags_updated_at ON tags(updated_at);

CREATE TABLE IF NOT EXISTS tag_associations (
	tag_id            TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	associated_tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	association_order INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	PRIMARY KEY (tag_id, associated_tag_id),
	CHECK (tag_id <> associated_tag_id)
);

CREATE INDEX IF NOT EXISTS idx_tag_associations_target ON tag_associations(associated_tag_id);

-- No foreign key: the revision ledger outlives deleted tags.
CREATE TABLE IF NOT EXISTS tag_revisions (
	id              TEXT PRIMARY KEY,
	tag_id          TEXT NOT NULL,
	revision_number INTEGER NOT NULL,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	metadata        TEXT NOT NULL DEFAULT '{}',
	created_by      TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL,
	UNIQUE (tag_id, revision_number)
);

CREATE TABLE IF NOT EXISTS logs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_logs_user ON logs(user_id);

CREATE TABLE IF NOT EXISTS log_tag_associations (
	log_id     TEXT NOT NULL REFERENCES logs(id) ON DELETE CASCADE,
	tag_id     TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	PRIMARY KEY (log_id, tag_id)
);

CREATE INDEX IF NOT EXISTS idx_log_tag_associations_tag ON log_tag_associations(tag_id);

CREATE TABLE IF NOT EXISTS tag_sources (
	path     TEXT PRIMARY KEY,
	checksum TEXT NOT NULL,
	tag_id   TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE
);
`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against the connection pool or an open transaction.
type Queries struct {
	q querier
}

// DB wraps a sql.DB with tag-specific operations.
type DB struct {
	*Queries
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Write transactions take the RESERVED lock up front (_txlock=immediate) so
// concurrent writers queue on the busy timeout instead of failing to upgrade.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	return &DB{Queries: &Queries{q: conn}, conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// InTx runs fn inside a single transaction. The transaction commits only when
// fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
