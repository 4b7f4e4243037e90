// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrEntryNotFound is returned when an entry ID does not exist.
// Use errors.Is(err, ErrEntryNotFound) to check for it.
var ErrEntryNotFound = errors.New("audit entry not found")

// =============================================================================
// SQLITE STORE
// =============================================================================

// Store is the local commit log for audit entries, one SQLite database
// per state directory. SQLite gives the outbox its durability contract:
// when Insert returns, the entry survives a crash or restart.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the audit database at path.
// The path ":memory:" opens a process-local database with no durability,
// used only when no state directory is available.
func OpenStore(path string) (*Store, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if memory {
		// Each pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id          TEXT PRIMARY KEY,
		actor_id    TEXT NOT NULL,
		actor_name  TEXT NOT NULL,
		action      TEXT NOT NULL,
		entity      TEXT NOT NULL,
		entity_id   TEXT NOT NULL DEFAULT '',
		entity_name TEXT NOT NULL DEFAULT '',
		detail      TEXT NOT NULL DEFAULT '',
		ts          INTEGER NOT NULL,
		status      TEXT NOT NULL DEFAULT 'pending',
		retries     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_audit_status ON audit_entries(status);
	CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_entries(ts);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init audit schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert commits an entry locally.
func (s *Store) Insert(e Entry) error {
	_, err := s.db.Exec(`
		INSERT INTO audit_entries
			(id, actor_id, actor_name, action, entity, entity_id, entity_name, detail, ts, status, retries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ActorID, e.ActorName, e.Action, e.Entity,
		e.EntityID, e.EntityName, e.Detail, e.Timestamp, string(e.Status), e.Retries,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Get returns the entry with the given ID.
func (s *Store) Get(id string) (Entry, error) {
	row := s.db.QueryRow(`
		SELECT id, actor_id, actor_name, action, entity, entity_id, entity_name, detail, ts, status, retries
		FROM audit_entries WHERE id = ?`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get audit entry: %w", err)
	}
	return e, nil
}

// ListByStatus returns entries with the given status in append order.
// The remote reconciler consumes pending and failed entries through
// this query.
func (s *Store) ListByStatus(status Status) ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, actor_id, actor_name, action, entity, entity_id, entity_name, detail, ts, status, retries
		FROM audit_entries WHERE status = ? ORDER BY ts, id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkSynced flips an entry to synced.
func (s *Store) MarkSynced(id string) error {
	return s.setStatus(id, `UPDATE audit_entries SET status = 'synced' WHERE id = ?`)
}

// MarkFailed flips an entry to failed and bumps its retry counter.
func (s *Store) MarkFailed(id string) error {
	return s.setStatus(id, `UPDATE audit_entries SET status = 'failed', retries = retries + 1 WHERE id = ?`)
}

// RequeueFailed flips failed entries with fewer than maxRetries attempts
// back to pending so the syncer picks them up again.
func (s *Store) RequeueFailed(maxRetries int) (int, error) {
	res, err := s.db.Exec(
		`UPDATE audit_entries SET status = 'pending' WHERE status = 'failed' AND retries < ?`,
		maxRetries,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue failed entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountByStatus returns the number of entries per status.
func (s *Store) CountByStatus() (map[Status]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM audit_entries GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count audit entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// Prune deletes synced entries older than beforeMillis. The runtime
// never calls this; it exists for operator tooling. Pending and failed
// entries are never pruned.
func (s *Store) Prune(beforeMillis int64) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM audit_entries WHERE status = 'synced' AND ts < ?`, beforeMillis)
	if err != nil {
		return 0, fmt.Errorf("prune audit entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) setStatus(id, query string) error {
	res, err := s.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("update audit entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var e Entry
	var status string
	err := sc.Scan(&e.ID, &e.ActorID, &e.ActorName, &e.Action, &e.Entity,
		&e.EntityID, &e.EntityName, &e.Detail, &e.Timestamp, &status, &e.Retries)
	if err != nil {
		return Entry{}, err
	}
	e.Status = Status(status)
	return e, nil
}
