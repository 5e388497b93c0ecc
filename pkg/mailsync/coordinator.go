// Package mailsync implements the Sync Coordinator (C3): it drives one
// provider.Adapter through a rolling sync window, deduping against
// already-ingested messages and enqueuing qualified candidates for
// attachment extraction.
package mailsync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
	"github.com/otherjamesbrown/mailgraph/pkg/mailsync/provider"
)

// WindowMonths is the rolling sync window width (spec.md §4.2): messages
// older than this, relative to now, are never fetched on a first sync.
const WindowMonths = 3

// OverlapWindow re-scans a trailing slice of the previous window on every
// incremental sync to tolerate clock skew and late-arriving messages
// without re-walking the whole window (spec.md §4.3 step 1).
const OverlapWindow = 24 * time.Hour

// rateLimitTimeout bounds how long Sync blocks waiting for a rate-limit
// token before surfacing kRateLimited to the caller with a suggested
// retry-after (spec.md §4.2).
const rateLimitTimeout = 30 * time.Second

// MessageHandler is invoked once per newly-fetched, not-yet-ingested
// message. The coordinator does not itself persist messages or route
// attachments — that is the caller's job (qualification + job enqueue),
// kept out of C3 so the sync loop stays provider/storage agnostic.
type MessageHandler func(ctx context.Context, msg *provider.Message) error

// Coordinator runs sync passes for one user across however many provider
// adapters that user has linked. A Coordinator holds no adapter state of
// its own; adapters are supplied per call.
type Coordinator struct {
	repo          *Repository
	maxEmails     int
	logger        logging.Logger
}

// NewCoordinator builds a Coordinator. maxEmails bounds how many messages
// are fetched (not qualified) in a single run (spec.md's
// max_emails_per_sync, resolved in DESIGN.md to count fetches).
func NewCoordinator(repo *Repository, maxEmails int, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if maxEmails <= 0 {
		maxEmails = 500
	}
	return &Coordinator{repo: repo, maxEmails: maxEmails, logger: logger}
}

// Result summarizes one sync run.
type Result struct {
	RunID           string
	MessagesSeen    int
	MessagesFetched int
}

// Sync runs one pass for (userID, adapter), calling handle for every
// message not already ingested, honoring the adapter's RateLimitPolicy and
// the rolling window/overlap rules, and persisting the resulting cursor.
func (c *Coordinator) Sync(ctx context.Context, userID string, adapter provider.Adapter, handle MessageHandler) (Result, error) {
	runID := uuid.NewString()
	if err := c.repo.BeginRun(ctx, runID, userID, adapter.Name()); err != nil {
		return Result{}, err
	}

	log := c.logger.With(logging.F("run_id", runID), logging.F("user_id", userID), logging.F("provider", string(adapter.Name())))
	log.Info("sync run starting")

	windowStart := time.Now().Add(-WindowMonths * 30 * 24 * time.Hour)
	cursor, err := c.repo.LoadCursor(ctx, userID, adapter.Name(), windowStart)
	if err != nil {
		_ = c.repo.CompleteRun(ctx, runID, RunStatusFailed, 0, 0, err)
		return Result{}, err
	}
	if !cursor.Since.Before(windowStart) {
		cursor.Since = cursor.Since.Add(-OverlapWindow)
	}

	policy := adapter.RateLimit()
	rl := newLimiter(policy.RequestsPerSecond, policy.Burst)

	result := Result{RunID: runID}
	final := cursor

	for {
		if result.MessagesFetched >= c.maxEmails {
			log.Info("max_emails_per_sync reached, stopping run", logging.F("fetched", result.MessagesFetched))
			break
		}

		if err := rl.WaitTimeout(ctx, rateLimitTimeout); err != nil {
			classified := classifyRateLimitErr(err)
			c.fail(ctx, runID, result, classified)
			return result, classified
		}

		page, err := adapter.ListMessages(ctx, final, remaining(c.maxEmails, result.MessagesFetched))
		if err != nil {
			c.fail(ctx, runID, result, err)
			return result, mgerrors.ClassifyError(err, "mailsync.sync")
		}

		for _, ref := range page.Messages {
			result.MessagesSeen++

			seen, err := c.repo.IsIngested(ctx, userID, ref.ProviderMessageID)
			if err != nil {
				c.fail(ctx, runID, result, err)
				return result, err
			}
			if seen {
				continue
			}

			if err := rl.WaitTimeout(ctx, rateLimitTimeout); err != nil {
				classified := classifyRateLimitErr(err)
				c.fail(ctx, runID, result, classified)
				return result, classified
			}

			msg, err := adapter.FetchMessage(ctx, ref.ProviderMessageID)
			if err != nil {
				classified := mgerrors.ClassifyError(err, "mailsync.fetch_message")
				if classified.Code == mgerrors.ErrCredentialRevoked {
					c.fail(ctx, runID, result, classified)
					return result, classified
				}
				log.Warn("skipping message after fetch error", logging.F("provider_message_id", ref.ProviderMessageID), logging.Err(classified))
				continue
			}
			result.MessagesFetched++

			if err := handle(ctx, msg); err != nil {
				log.Warn("handler failed for message", logging.F("provider_message_id", ref.ProviderMessageID), logging.Err(err))
			}

			if result.MessagesFetched >= c.maxEmails {
				break
			}
		}

		final = page.NextCursor
		if !page.HasMore {
			break
		}
	}

	if err := c.repo.SaveCursor(ctx, userID, adapter.Name(), final); err != nil {
		log.Error("failed to persist sync cursor", logging.Err(err))
	}

	if err := c.repo.CompleteRun(ctx, runID, RunStatusCompleted, result.MessagesSeen, result.MessagesFetched, nil); err != nil {
		log.Error("failed to mark sync run completed", logging.Err(err))
	}

	log.Info("sync run completed", logging.F("seen", result.MessagesSeen), logging.F("fetched", result.MessagesFetched))
	return result, nil
}

func (c *Coordinator) fail(ctx context.Context, runID string, result Result, err error) {
	if cerr := c.repo.CompleteRun(ctx, runID, RunStatusFailed, result.MessagesSeen, result.MessagesFetched, err); cerr != nil {
		c.logger.Error("failed to mark sync run failed", logging.F("run_id", runID), logging.Err(cerr))
	}
}

// classifyRateLimitErr maps a limiter timeout onto kRateLimited and leaves
// genuine context cancellation/deadline errors to the generic classifier.
func classifyRateLimitErr(err error) *mgerrors.PipelineError {
	if err == errRateLimitTimeout {
		return mgerrors.ClassifyError(fmt.Errorf("rate limit: %w", err), "mailsync.ratelimit")
	}
	return mgerrors.ClassifyError(err, "mailsync.ratelimit")
}

func remaining(max, fetched int) int {
	r := max - fetched
	if r <= 0 {
		return 1
	}
	if r > 100 {
		return 100
	}
	return r
}
