package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// documentLease holds a Postgres advisory lock for the duration of one
// Document's extracting->populating->resolving critical section (spec.md
// §4.6: "driven by one worker at a time via a per-Document lease"). Distinct
// from C5's job-queue visibility-timeout lease: this one protects concurrent
// workers racing to extract the *same content_hash* delivered via two
// different Messages, which the job queue's per-job lease does not prevent.
//
// pg_advisory_lock is keyed by a 64-bit int and is server-wide regardless of
// which connection performs the protected writes, so the lock is acquired on
// a dedicated connection held for the critical section's lifetime and
// released explicitly rather than relying on transaction/session end.
type documentLease struct {
	conn *pgxpool.Conn
	key  int64
}

// acquireLease blocks until the advisory lock for lockKey is held. lockKey
// should be stable for identical content (content_hash once known; falls
// back to the (user_id, attachment_id) pair before the hash is computed, see
// Pipeline.Process).
func acquireLease(ctx context.Context, pool *pgxpool.Pool, lockKey string) (*documentLease, error) {
	if pool == nil {
		// A nil pool means the caller (tests, or a pipeline run with lease
		// enforcement deliberately disabled) accepts single-worker semantics
		// without cross-process serialization.
		return &documentLease{key: lockHashKey(lockKey)}, nil
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring lease connection: %w", err)
	}

	key := lockHashKey(lockKey)
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, key); err != nil {
		conn.Release()
		return nil, fmt.Errorf("taking document lease: %w", err)
	}
	return &documentLease{conn: conn, key: key}, nil
}

// release unlocks and returns the connection to the pool. Safe to call on a
// nil lease (no-op), so callers can defer it unconditionally after a
// possibly-failed acquireLease.
func (l *documentLease) release(ctx context.Context) {
	if l == nil || l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, l.key)
	l.conn.Release()
}

func lockHashKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}
