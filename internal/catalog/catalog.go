// Package catalog records every term dictionary the indexer stores, so
// operators can see what was built, from which input, and how large it is.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/log-ingest-engine/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS term_dictionaries (
	key        TEXT PRIMARY KEY,
	term_count BIGINT NOT NULL,
	byte_size  BIGINT NOT NULL,
	source     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Entry describes one stored dictionary.
type Entry struct {
	Key       string    `json:"key"`
	TermCount uint64    `json:"term_count"`
	ByteSize  int64     `json:"byte_size"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog persists entries in Postgres.
type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
}

func New(db *sql.DB) *Catalog {
	return &Catalog{
		db:     db,
		logger: slog.Default().With("component", "catalog"),
	}
}

// EnsureSchema creates the catalog table if it does not exist.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating catalog schema: %w", err)
	}
	return nil
}

// Record inserts e, replacing any entry with the same key. A zero CreatedAt
// is stamped with the current time.
func (c *Catalog) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO term_dictionaries (key, term_count, byte_size, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			term_count = EXCLUDED.term_count,
			byte_size  = EXCLUDED.byte_size,
			source     = EXCLUDED.source,
			created_at = EXCLUDED.created_at`,
		e.Key, int64(e.TermCount), e.ByteSize, e.Source, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("recording dictionary %s: %w", e.Key, err)
	}
	c.logger.Info("dictionary recorded", "key", e.Key, "terms", e.TermCount, "bytes", e.ByteSize)
	return nil
}

// Get returns the entry for key, or an error matching ErrNotFound.
func (c *Catalog) Get(ctx context.Context, key string) (Entry, error) {
	var e Entry
	var terms int64
	err := c.db.QueryRowContext(ctx, `
		SELECT key, term_count, byte_size, source, created_at
		FROM term_dictionaries WHERE key = $1`, key,
	).Scan(&e.Key, &terms, &e.ByteSize, &e.Source, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, apperrors.Newf(apperrors.ErrNotFound, "dictionary %q", key)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("querying dictionary %s: %w", key, err)
	}
	e.TermCount = uint64(terms)
	return e, nil
}

// List returns up to limit entries, newest first.
func (c *Catalog) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT key, term_count, byte_size, source, created_at
		FROM term_dictionaries ORDER BY created_at DESC, key LIMIT $1`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing dictionaries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var terms int64
		if err := rows.Scan(&e.Key, &terms, &e.ByteSize, &e.Source, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning dictionary row: %w", err)
		}
		e.TermCount = uint64(terms)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating dictionary rows: %w", err)
	}
	return out, nil
}

// Delete removes the entry for key. Deleting a missing key is not an error.
func (c *Catalog) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM term_dictionaries WHERE key = $1`, key); err != nil {
		return fmt.Errorf("deleting dictionary %s: %w", key, err)
	}
	return nil
}
