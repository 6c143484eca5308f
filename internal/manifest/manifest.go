// Package manifest is the ledger of what the index currently holds: per
// document, the fingerprint, chunk count, and embedding model of the last
// successful indexing. The ingestor diffs the corpus against it to decide
// what to re-index, and uses chunk counts to enumerate stale chunk ids.
package manifest

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS manifest (
	document        TEXT PRIMARY KEY,
	fingerprint     TEXT NOT NULL,
	chunk_count     INTEGER NOT NULL,
	embedding_model TEXT NOT NULL,
	last_indexed    DATETIME NOT NULL
);
`

// Entry records one indexed document.
type Entry struct {
	Document       string
	Fingerprint    string
	ChunkCount     int
	EmbeddingModel string
	LastIndexed    time.Time
}

// Store is the manifest persistence port.
type Store interface {
	All() (map[string]Entry, error)
	Put(e Entry) error
	Delete(document string) error
	Close() error
}

// DB wraps a sql.DB with manifest operations.
type DB struct {
	conn *sql.DB
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Open opens (or creates) the SQLite manifest and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("manifest: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("manifest: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// All returns every manifest entry keyed by document name.
func (db *DB) All() (map[string]Entry, error) {
	rows, err := db.conn.Query(`SELECT document, fingerprint, chunk_count, embedding_model, last_indexed FROM manifest`)
	if err != nil {
		return nil, fmt.Errorf("manifest: all: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Entry)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Document, &e.Fingerprint, &e.ChunkCount, &e.EmbeddingModel, &e.LastIndexed); err != nil {
			return nil, err
		}
		out[e.Document] = e
	}
	return out, rows.Err()
}

// Put inserts or replaces a document's entry.
func (db *DB) Put(e Entry) error {
	_, err := db.conn.Exec(`
		INSERT INTO manifest (document, fingerprint, chunk_count, embedding_model, last_indexed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document) DO UPDATE SET
			fingerprint     = excluded.fingerprint,
			chunk_count     = excluded.chunk_count,
			embedding_model = excluded.embedding_model,
			last_indexed    = excluded.last_indexed
	`, e.Document, e.Fingerprint, e.ChunkCount, e.EmbeddingModel, e.LastIndexed)
	if err != nil {
		return fmt.Errorf("manifest: put %s: %w", e.Document, err)
	}
	return nil
}

// Delete removes a document's entry. Missing entries are not an error.
func (db *DB) Delete(document string) error {
	if _, err := db.conn.Exec(`DELETE FROM manifest WHERE document = ?`, document); err != nil {
		return fmt.Errorf("manifest: delete %s: %w", document, err)
	}
	return nil
}
