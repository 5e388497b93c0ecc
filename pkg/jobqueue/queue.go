package jobqueue

import (
	"errors"
	"time"
)

// Queue is a single lane's durable store.
type Queue interface {
	Lane() Lane
	Enqueue(job Job) error
	// Dequeue claims up to maxJobs ready jobs (NotBefore <= now), leasing
	// each for leaseDuration. Blocks up to timeout if the lane is empty.
	Dequeue(maxJobs int, leaseDuration, timeout time.Duration) ([]Job, error)
	// RenewLease extends an in-flight job's visibility lease.
	RenewLease(jobID string, leaseDuration time.Duration) error
	// Ack marks a job permanently complete.
	Ack(jobID string) error
	// Nack reschedules job with backoff, or moves it to the dead letter
	// lane if it has exhausted MaxAttempts.
	Nack(job Job, failureErr error) error
	// MoveToFailed moves a job straight to the terminal failed state
	// (permanent errors are not retried per spec.md §4.6).
	MoveToFailed(job Job, failureErr error) error
	Depth() (int64, error)
	Close() error
}

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrQueueClosed  = errors.New("queue is closed")
)
