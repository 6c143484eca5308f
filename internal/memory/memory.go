// Package memory persists session-scoped conversation history. Sessions
// and their exchanges survive restarts; history reads are bounded so the
// prompt stays finite regardless of session length.
package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/muninn/internal/apperr"
	"github.com/starford/muninn/internal/retrieval"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	last_activity DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exchanges (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	question   TEXT NOT NULL,
	answer     TEXT NOT NULL,
	sources    TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_exchanges_session ON exchanges(session_id, id);
`

// Session describes one conversation session.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	// ExchangeCount is populated by ListSessions.
	ExchangeCount int `json:"exchange_count"`
}

// Exchange is one question/answer pair with the sources the answer was
// drawn from.
type Exchange struct {
	Question  string             `json:"question"`
	Answer    string             `json:"answer"`
	Sources   []retrieval.Source `json:"sources"`
	CreatedAt time.Time          `json:"created_at"`
}

// Store is the conversation memory port.
type Store interface {
	CreateSession(id, title string) (*Session, error)
	GetSession(id string) (*Session, error)
	ListSessions() ([]Session, error)
	DeleteSession(id string) error
	AppendExchange(sessionID, question, answer string, sources []retrieval.Source) error
	History(sessionID string, limit int) ([]Exchange, error)
	Close() error
}

// DB wraps a sql.DB with conversation memory operations.
type DB struct {
	conn *sql.DB
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// Open opens (or creates) the SQLite memory store and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("memory: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("memory: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("memory: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CreateSession creates a session with the given id. An existing id is
// never silently reused: the caller gets apperr.ErrAlreadyExists.
func (db *DB) CreateSession(id, title string) (*Session, error) {
	now := time.Now().UTC()
	_, err := db.conn.Exec(`INSERT INTO sessions (id, title, created_at, last_activity) VALUES (?, ?, ?, ?)`,
		id, title, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("memory: session %s: %w", id, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("memory: create session: %w", err)
	}
	return &Session{ID: id, Title: title, CreatedAt: now, LastActivity: now}, nil
}

// GetSession returns a session by id.
func (db *DB) GetSession(id string) (*Session, error) {
	var s Session
	err := db.conn.QueryRow(`SELECT id, title, created_at, last_activity FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.Title, &s.CreatedAt, &s.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory: session %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get session: %w", err)
	}
	return &s, nil
}

// ListSessions returns all sessions, most recently active first, with
// exchange counts.
func (db *DB) ListSessions() ([]Session, error) {
	rows, err := db.conn.Query(`
		SELECT s.id, s.title, s.created_at, s.last_activity,
		       (SELECT COUNT(*) FROM exchanges e WHERE e.session_id = s.id)
		FROM sessions s
		ORDER BY s.last_activity DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("memory: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.Title, &s.CreatedAt, &s.LastActivity, &s.ExchangeCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and, via cascade, its exchanges.
func (db *DB) DeleteSession(id string) error {
	res, err := db.conn.Exec(`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("memory: delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory: session %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// AppendExchange records a question/answer pair with its source
// attributions and bumps the session's last activity in one transaction.
func (db *DB) AppendExchange(sessionID, question, answer string, sources []retrieval.Source) error {
	if sources == nil {
		sources = []retrieval.Source{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("memory: encode sources: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("memory: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	now := time.Now().UTC()
	res, err := tx.Exec(`UPDATE sessions SET last_activity = ? WHERE id = ?`, now, sessionID)
	if err != nil {
		return fmt.Errorf("memory: touch session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("memory: session %s: %w", sessionID, apperr.ErrNotFound)
	}
	_, err = tx.Exec(`INSERT INTO exchanges (session_id, question, answer, sources, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, question, answer, string(encoded), now)
	if err != nil {
		return fmt.Errorf("memory: insert exchange: %w", err)
	}
	return tx.Commit()
}

// History returns up to limit most recent exchanges in chronological
// order, oldest first.
func (db *DB) History(sessionID string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT question, answer, sources, created_at FROM exchanges
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: history: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var encoded string
		if err := rows.Scan(&e.Question, &e.Answer, &encoded, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(encoded), &e.Sources); err != nil {
			return nil, fmt.Errorf("memory: decode sources: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// The query walks newest-first for the LIMIT; flip to chronological.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	// mattn/go-sqlite3 reports constraint violations by message.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
