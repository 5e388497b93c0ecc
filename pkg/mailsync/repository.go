package mailsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/otherjamesbrown/mailgraph/pkg/mailsync/provider"
)

// RunStatus is the lifecycle state of one sync run.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// ErrSyncInProgress is returned by BeginRun when a run for (userID,
// provider) is already in_progress, mapped by the caller to kSyncInProgress.
var ErrSyncInProgress = errors.New("sync already in progress for this account")

// Run tracks one sync attempt for a (user, provider) pair.
type Run struct {
	ID             string
	UserID         string
	Provider       provider.Name
	Status         RunStatus
	MessagesSeen   int
	MessagesFetched int
	StartedAt      time.Time
	CompletedAt    *time.Time
	Error          string
}

// Repository persists sync cursors, run bookkeeping, and the
// already-ingested provider_message_id set used for dedup.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wraps a pgx pool for sync bookkeeping.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LoadCursor returns the persisted cursor for (userID, providerName), or a
// zero Cursor with Since set to windowStart if this is the account's first
// sync.
func (r *Repository) LoadCursor(ctx context.Context, userID string, providerName provider.Name, windowStart time.Time) (provider.Cursor, error) {
	const q = `SELECT cursor_token, window_since FROM sync_cursors WHERE user_id = $1 AND provider = $2`

	var token string
	var since time.Time
	err := r.pool.QueryRow(ctx, q, userID, string(providerName)).Scan(&token, &since)
	if errors.Is(err, pgx.ErrNoRows) {
		return provider.Cursor{Since: windowStart}, nil
	}
	if err != nil {
		return provider.Cursor{}, fmt.Errorf("loading sync cursor: %w", err)
	}
	return provider.Cursor{Token: token, Since: since}, nil
}

// SaveCursor persists the cursor to resume from on the next run.
func (r *Repository) SaveCursor(ctx context.Context, userID string, providerName provider.Name, cursor provider.Cursor) error {
	const q = `
INSERT INTO sync_cursors (user_id, provider, cursor_token, window_since, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (user_id, provider) DO UPDATE SET
	cursor_token = EXCLUDED.cursor_token,
	window_since = EXCLUDED.window_since,
	updated_at = now()`

	_, err := r.pool.Exec(ctx, q, userID, string(providerName), cursor.Token, cursor.Since)
	if err != nil {
		return fmt.Errorf("saving sync cursor: %w", err)
	}
	return nil
}

// BeginRun creates an in_progress run row, failing with ErrSyncInProgress if
// one is already running for this (userID, providerName) — this is the
// source of kSyncInProgress (spec.md §7).
func (r *Repository) BeginRun(ctx context.Context, runID, userID string, providerName provider.Name) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing string
	err = tx.QueryRow(ctx, `
SELECT id FROM sync_runs
WHERE user_id = $1 AND provider = $2 AND status = $3
FOR UPDATE`, userID, string(providerName), RunStatusInProgress).Scan(&existing)
	if err == nil {
		return ErrSyncInProgress
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("checking in-progress runs: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO sync_runs (id, user_id, provider, status, started_at)
VALUES ($1, $2, $3, $4, now())`, runID, userID, string(providerName), RunStatusInProgress)
	if err != nil {
		return fmt.Errorf("creating sync run: %w", err)
	}

	return tx.Commit(ctx)
}

// CompleteRun finalizes a run with its outcome counters.
func (r *Repository) CompleteRun(ctx context.Context, runID string, status RunStatus, messagesSeen, messagesFetched int, runErr error) error {
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	const q = `
UPDATE sync_runs
SET status = $2, messages_seen = $3, messages_fetched = $4, error = $5, completed_at = now()
WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, runID, string(status), messagesSeen, messagesFetched, errMsg)
	if err != nil {
		return fmt.Errorf("completing sync run: %w", err)
	}
	return nil
}

// IsIngested reports whether a provider message ID has already been
// ingested for this user, short-circuiting FetchMessage for messages the
// coordinator has already seen in a prior run (or earlier in this run's
// overlap window).
func (r *Repository) IsIngested(ctx context.Context, userID, providerMessageID string) (bool, error) {
	const q = `SELECT 1 FROM messages WHERE user_id = $1 AND provider_message_id = $2 LIMIT 1`
	var one int
	err := r.pool.QueryRow(ctx, q, userID, providerMessageID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking message dedup: %w", err)
	}
	return true, nil
}
