// Package storage implements the content-addressed blob store the
// Extraction Pipeline (C6) persists attachment bytes to, keyed by
// content_hash (spec.md §4.6). Grounded on
// pkg/ingest/storage/attachments.go's pattern of storing attachment
// content directly in Postgres rather than introducing an object-store
// dependency the example pack does not carry.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// ErrNotFound is returned by Get when no blob exists for a content hash.
var ErrNotFound = errors.New("blob not found")

// BlobStore is the content-addressed store C6 writes fetched attachment
// bytes to and later re-reads on reschedule/resume.
type BlobStore interface {
	Put(ctx context.Context, userID, contentHash, mimeType string, data []byte) error
	Get(ctx context.Context, contentHash string) ([]byte, error)
}

// Repository is the Postgres-backed BlobStore.
type Repository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewRepository builds a Repository.
func NewRepository(pool *pgxpool.Pool, logger logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{pool: pool, logger: logger.With(logging.F("component", "storage.blobstore"))}
}

// Put stores data under contentHash, idempotently — re-persisting an
// already-stored hash (e.g. after a crash-and-retry) is a no-op rather than
// an error, honoring §4.6's "side effects already persisted are reused".
func (r *Repository) Put(ctx context.Context, userID, contentHash, mimeType string, data []byte) error {
	const q = `
INSERT INTO document_blobs (content_hash, user_id, mime_type, size_bytes, data)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (content_hash) DO NOTHING`
	_, err := r.pool.Exec(ctx, q, contentHash, userID, mimeType, len(data), data)
	if err != nil {
		return fmt.Errorf("storing blob %s: %w", contentHash, err)
	}
	return nil
}

// Get loads previously-stored bytes by content hash.
func (r *Repository) Get(ctx context.Context, contentHash string) ([]byte, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM document_blobs WHERE content_hash = $1`, contentHash).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading blob %s: %w", contentHash, err)
	}
	return data, nil
}

var _ BlobStore = (*Repository)(nil)
