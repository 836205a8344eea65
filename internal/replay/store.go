// Package replay tracks AuthnRequest IDs that have already produced a
// response, so a captured request cannot be replayed for a fresh assertion.
// IDs are persisted in SQLite and pruned once older than the retention
// window.
package replay

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Retention is how long a request ID stays on record. It comfortably exceeds
// the assertion validity window, after which a replayed request is harmless.
const Retention = 10 * time.Minute

// Store is a persistent set of seen AuthnRequest IDs.
type Store struct {
	db *sql.DB
}

// Open creates or opens the replay database at path. Use ":memory:" for an
// ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open replay store: %w", err)
	}
	// SQLite handles one writer at a time.
	db.SetMaxOpenConns(1)

	const schema = `CREATE TABLE IF NOT EXISTS seen_requests (
		request_id TEXT PRIMARY KEY,
		seen_at    INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init replay store: %w", err)
	}
	return &Store{db: db}, nil
}

// Seen records the request ID and reports whether it had been recorded
// before. The first caller for a given ID gets false; every later caller
// gets true.
func (s *Store) Seen(ctx context.Context, requestID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_requests (request_id, seen_at) VALUES (?, ?)`,
		requestID, time.Now().Unix())
	if err != nil {
		return false, fmt.Errorf("record request id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// Prune removes IDs older than the retention window.
func (s *Store) Prune(ctx context.Context) error {
	cutoff := time.Now().Add(-Retention).Unix()
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_requests WHERE seen_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("prune replay store: %w", err)
	}
	return nil
}

// PruneLoop prunes on an interval until ctx is done.
func (s *Store) PruneLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Prune(ctx)
		}
	}
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
