package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
)

// Redis key prefixes, one set of keys per lane (adapted from
// pkg/enrichment/queues/redis.go's keyPrefixQueue/Processing/Message/DLQ).
const (
	keyPrefixLane       = "jobqueue:lane:"
	keyPrefixProcessing = "jobqueue:processing:"
	keyPrefixJob        = "jobqueue:job:"
	keyPrefixFailed     = "jobqueue:failed:"
)

// RedisQueue is a single lane's Redis-backed store: a sorted set ordered
// by (lane priority, enqueue time) for ready jobs, a sorted set of
// in-flight jobs ordered by lease expiry, and a sorted set for jobs that
// exhausted MaxAttempts.
type RedisQueue struct {
	client *redis.Client
	lane   Lane
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedisQueue builds a lane-scoped queue over client.
func NewRedisQueue(client *redis.Client, lane Lane) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{client: client, lane: lane, ctx: ctx, cancel: cancel}
}

func (q *RedisQueue) Lane() Lane { return q.lane }

func (q *RedisQueue) laneKey() string       { return keyPrefixLane + string(q.lane) }
func (q *RedisQueue) processingKey() string { return keyPrefixProcessing + string(q.lane) }
func (q *RedisQueue) failedKey() string     { return keyPrefixFailed + string(q.lane) }
func (q *RedisQueue) jobKey(id string) string { return keyPrefixJob + string(q.lane) + ":" + id }

func (q *RedisQueue) Enqueue(job Job) error {
	if job.NotBefore.IsZero() {
		job.NotBefore = time.Now()
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(q.ctx, q.jobKey(job.ID), data, 7*24*time.Hour)
	score := float64(q.lane.priority())*1e15 + float64(job.NotBefore.UnixNano())
	pipe.ZAdd(q.ctx, q.laneKey(), redis.Z{Score: score, Member: job.ID})
	if _, err := pipe.Exec(q.ctx); err != nil {
		return fmt.Errorf("enqueuing job: %w", err)
	}
	return nil
}

// Dequeue claims up to maxJobs jobs whose NotBefore has passed, leasing
// each for leaseDuration. It polls within timeout rather than blocking
// indefinitely, mirroring the teacher's Dequeue loop.
func (q *RedisQueue) Dequeue(maxJobs int, leaseDuration, timeout time.Duration) ([]Job, error) {
	if maxJobs <= 0 {
		maxJobs = 1
	}
	deadline := time.Now().Add(timeout)
	var claimed []Job

	for time.Now().Before(deadline) && len(claimed) < maxJobs {
		now := float64(time.Now().UnixNano())
		ready, err := q.client.ZRangeByScoreWithScores(q.ctx, q.laneKey(), &redis.ZRangeBy{
			Min: "-inf", Max: fmt.Sprintf("%f", (float64(q.lane.priority())+1)*1e15), Count: int64(maxJobs - len(claimed)),
		}).Result()
		if err != nil {
			return claimed, fmt.Errorf("scanning lane: %w", err)
		}

		progressed := false
		for _, z := range ready {
			jobID := z.Member.(string)
			notBeforeNanos := z.Score - float64(q.lane.priority())*1e15
			if notBeforeNanos > now {
				continue
			}

			removed, err := q.client.ZRem(q.ctx, q.laneKey(), jobID).Result()
			if err != nil || removed == 0 {
				continue // another worker claimed it first
			}
			progressed = true

			raw, err := q.client.Get(q.ctx, q.jobKey(jobID)).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return claimed, fmt.Errorf("loading job: %w", err)
			}
			var job Job
			if err := json.Unmarshal(raw, &job); err != nil {
				continue
			}

			job.LeaseExpiresAt = time.Now().Add(leaseDuration)
			if err := q.persist(job); err != nil {
				return claimed, err
			}
			if err := q.client.ZAdd(q.ctx, q.processingKey(), redis.Z{
				Score: float64(job.LeaseExpiresAt.UnixNano()), Member: job.ID,
			}).Err(); err != nil {
				return claimed, fmt.Errorf("leasing job: %w", err)
			}

			claimed = append(claimed, job)
			if len(claimed) >= maxJobs {
				break
			}
		}

		if !progressed {
			select {
			case <-time.After(100 * time.Millisecond):
			case <-q.ctx.Done():
				return claimed, q.ctx.Err()
			}
		}
	}

	return claimed, nil
}

func (q *RedisQueue) persist(job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	return q.client.Set(q.ctx, q.jobKey(job.ID), data, 7*24*time.Hour).Err()
}

func (q *RedisQueue) RenewLease(jobID string, leaseDuration time.Duration) error {
	raw, err := q.client.Get(q.ctx, q.jobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("loading job for lease renewal: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("decoding job: %w", err)
	}
	job.LeaseExpiresAt = time.Now().Add(leaseDuration)
	if err := q.persist(job); err != nil {
		return err
	}
	return q.client.ZAdd(q.ctx, q.processingKey(), redis.Z{Score: float64(job.LeaseExpiresAt.UnixNano()), Member: jobID}).Err()
}

func (q *RedisQueue) Ack(jobID string) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, q.processingKey(), jobID)
	pipe.Del(q.ctx, q.jobKey(jobID))
	_, err := pipe.Exec(q.ctx)
	if err != nil {
		return fmt.Errorf("acking job: %w", err)
	}
	return nil
}

// Nack implements spec.md §4.5's retry policy: a job whose failure is
// transient and still under MaxAttempts is rescheduled with Backoff;
// otherwise it moves to the failed terminal state. failureErr is expected
// to already be classified (a *mgerrors.PipelineError) by the caller at
// its component boundary, per §7 — jobqueue itself does not reclassify.
func (q *RedisQueue) Nack(job Job, failureErr error) error {
	if !mgerrors.IsErrorRetryable(failureErr) {
		return q.MoveToFailed(job, failureErr)
	}
	return q.requeue(job, failureErr)
}

// requeue always reschedules with backoff regardless of classification,
// up to MaxAttempts; used both by Nack's transient path and by
// RecoverExpiredLeases, where a lease expiry (the worker likely crashed)
// is retried unconditionally rather than reclassified from scratch.
func (q *RedisQueue) requeue(job Job, failureErr error) error {
	job.Attempt++
	job.LastError = failureErr.Error()

	if job.Attempt >= MaxAttempts {
		return q.MoveToFailed(job, failureErr)
	}

	job.NotBefore = time.Now().Add(Backoff(job.Attempt))
	if err := q.persist(job); err != nil {
		return err
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, q.processingKey(), job.ID)
	score := float64(q.lane.priority())*1e15 + float64(job.NotBefore.UnixNano())
	pipe.ZAdd(q.ctx, q.laneKey(), redis.Z{Score: score, Member: job.ID})
	_, err := pipe.Exec(q.ctx)
	if err != nil {
		return fmt.Errorf("rescheduling job: %w", err)
	}
	return nil
}

func (q *RedisQueue) MoveToFailed(job Job, failureErr error) error {
	job.LastError = failureErr.Error()
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling failed job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(q.ctx, q.processingKey(), job.ID)
	pipe.Del(q.ctx, q.jobKey(job.ID))
	pipe.ZAdd(q.ctx, q.failedKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: string(data)})
	_, err = pipe.Exec(q.ctx)
	if err != nil {
		return fmt.Errorf("moving job to failed: %w", err)
	}
	return nil
}

// RecoverExpiredLeases requeues jobs whose lease has expired without an
// Ack/Nack, mirroring the teacher's RecoverStaleMessages sweep. Intended
// to run periodically.
func (q *RedisQueue) RecoverExpiredLeases() (int, error) {
	now := float64(time.Now().UnixNano())
	expired, err := q.client.ZRangeByScore(q.ctx, q.processingKey(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now), Count: 100}).Result()
	if err != nil {
		return 0, fmt.Errorf("scanning expired leases: %w", err)
	}

	recovered := 0
	for _, jobID := range expired {
		raw, err := q.client.Get(q.ctx, q.jobKey(jobID)).Bytes()
		if errors.Is(err, redis.Nil) {
			q.client.ZRem(q.ctx, q.processingKey(), jobID)
			continue
		}
		if err != nil {
			continue
		}
		var job Job
		if err := json.Unmarshal(raw, &job); err != nil {
			continue
		}
		if err := q.requeue(job, errors.New("lease expired, worker likely crashed")); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}

func (q *RedisQueue) Depth() (int64, error) {
	return q.client.ZCard(q.ctx, q.laneKey()).Result()
}

func (q *RedisQueue) Close() error {
	q.cancel()
	return nil
}

var _ Queue = (*RedisQueue)(nil)
