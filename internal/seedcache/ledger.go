package seedcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// ledgerSchema tracks every cached seed data directory: when it was built
// and when it was last used. PurgeStale consults last_used_at to expire
// caches whose seed files have not been seen for a while (each edit of the
// seed files produces a new hash, so old entries accumulate otherwise).
const ledgerSchema = `
CREATE TABLE IF NOT EXISTS seed_caches (
	hash         TEXT PRIMARY KEY,
	path         TEXT NOT NULL,
	created_at   INTEGER NOT NULL,
	last_used_at INTEGER NOT NULL
);`

// Ledger is a small SQLite database living next to the cached data
// directories. It is shared between processes; SQLite's own locking
// serializes concurrent writers, and the busy timeout below makes writers
// wait rather than fail when the ledger is briefly locked.
type Ledger struct {
	db *sql.DB
}

// OpenLedger opens (creating if necessary) the ledger database at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	if err := l.db.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}

// Record inserts or refreshes the entry for a cached data directory.
func (l *Ledger) Record(ctx context.Context, hash, path string) error {
	now := time.Now().Unix()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO seed_caches (hash, path, created_at, last_used_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET path = excluded.path, last_used_at = excluded.last_used_at`,
		hash, path, now, now)
	if err != nil {
		return fmt.Errorf("record cache entry %s: %w", hash, err)
	}
	return nil
}

// Touch updates the last-used timestamp of an entry. Touching an unknown
// hash is a no-op; the entry will be recorded when the cache is rebuilt.
func (l *Ledger) Touch(ctx context.Context, hash string) error {
	_, err := l.db.ExecContext(ctx,
		`UPDATE seed_caches SET last_used_at = ? WHERE hash = ?`,
		time.Now().Unix(), hash)
	if err != nil {
		return fmt.Errorf("touch cache entry %s: %w", hash, err)
	}
	return nil
}

// Entry describes one ledger row.
type Entry struct {
	Hash       string
	Path       string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// Stale returns the entries whose last use is older than cutoff.
func (l *Ledger) Stale(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT hash, path, created_at, last_used_at
		FROM seed_caches
		WHERE last_used_at < ?
		ORDER BY last_used_at`,
		cutoff.Unix())
	if err != nil {
		return nil, fmt.Errorf("query stale cache entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e                    Entry
			createdAt, lastUsed int64
		)
		if err := rows.Scan(&e.Hash, &e.Path, &createdAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		e.LastUsedAt = time.Unix(lastUsed, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return entries, nil
}

// Delete removes the entries for the given hashes. Unknown hashes are
// ignored.
func (l *Ledger) Delete(ctx context.Context, hashes ...string) error {
	var errs []error
	for _, hash := range hashes {
		if _, err := l.db.ExecContext(ctx,
			`DELETE FROM seed_caches WHERE hash = ?`, hash); err != nil {
			errs = append(errs, fmt.Errorf("delete cache entry %s: %w", hash, err))
		}
	}
	return errors.Join(errs...)
}
