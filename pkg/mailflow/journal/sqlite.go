package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists entries to SQLite.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a journal database.
// The path is a file path or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS mail_journal (
			run_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			mail_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			category TEXT NOT NULL,
			request_source TEXT NOT NULL,
			payload_type TEXT NOT NULL,
			dropped INTEGER NOT NULL,
			reason TEXT NOT NULL,
			at TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(e Entry) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}

	dropped := 0
	if e.Dropped {
		dropped = 1
	}
	err := s.db.QueryRow(`
		INSERT INTO mail_journal
			(run_id, seq, mail_id, sender, recipient, category, request_source, payload_type, dropped, reason, at)
		VALUES (
			?,
			COALESCE((SELECT MAX(seq) FROM mail_journal WHERE run_id = ?), 0) + 1,
			?, ?, ?, ?, ?, ?, ?, ?, ?
		)
		RETURNING seq
	`, e.RunID, e.RunID, e.MailID, e.Sender, e.Recipient, e.Category, e.RequestSource,
		e.PayloadType, dropped, e.Reason, e.At.UTC().Format(time.RFC3339Nano)).Scan(&e.Seq)
	if err != nil {
		return Entry{}, fmt.Errorf("append entry: %w", err)
	}
	return e, nil
}

// List implements Store.
func (s *SQLiteStore) List(runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT seq, mail_id, sender, recipient, category, request_source, payload_type, dropped, reason, at
		FROM mail_journal
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e := Entry{RunID: runID}
		var at string
		if err := rows.Scan(&e.Seq, &e.MailID, &e.Sender, &e.Recipient, &e.Category,
			&e.RequestSource, &e.PayloadType, &e.Dropped, &e.Reason, &at); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

// DeleteRun implements Store.
func (s *SQLiteStore) DeleteRun(runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.Exec(`DELETE FROM mail_journal WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run entries: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
