// Package worker implements C5's worker pool: fixed-concurrency polling
// over the Attachment Job Queue's lanes, lease renewal while a job is
// active, and soft/hard per-job time limits. Adapted from
// pkg/enrichment/workers/pool.go's Worker/Pool/PoolManager shape —
// generalized from a per-queue-type pool keyed by WorkerType to a single
// pool that drains jobqueue.Dispatcher's lanes in priority order, and with
// a lease-renewal ticker added (the teacher's workers never renewed a
// lease mid-job).
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	mgerrors "github.com/otherjamesbrown/mailgraph/pkg/errors"
	"github.com/otherjamesbrown/mailgraph/pkg/jobqueue"
	"github.com/otherjamesbrown/mailgraph/pkg/logging"
)

// Handler processes one claimed Job.
type Handler func(ctx context.Context, job jobqueue.Job) error

// Config matches spec.md §4.5's concurrency knobs.
type Config struct {
	Concurrency     int           // default worker pool concurrency = 4
	BatchSize       int           // jobs claimed per Dequeue call
	PollInterval    time.Duration // how long Dequeue may block when empty
	LeaseDuration   time.Duration // default 10 min
	LeaseRenewEvery time.Duration // how often to renew an active job's lease
	SoftTimeLimit   time.Duration // 9 min
	HardTimeLimit   time.Duration // 10 min, matches the lease
	ShutdownTimeout time.Duration
}

// DefaultConfig returns spec.md §4.5's stated defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		BatchSize:       1,
		PollInterval:    1 * time.Second,
		LeaseDuration:   10 * time.Minute,
		LeaseRenewEvery: 3 * time.Minute,
		SoftTimeLimit:   9 * time.Minute,
		HardTimeLimit:   10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Pool runs Config.Concurrency workers draining dispatcher's lanes.
type Pool struct {
	config     Config
	dispatcher *jobqueue.Dispatcher
	handler    Handler
	logger     logging.Logger

	processed atomic.Int64
	failed    atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool builds a worker Pool.
func NewPool(config Config, dispatcher *jobqueue.Dispatcher, handler Handler, logger logging.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{config: config, dispatcher: dispatcher, handler: handler, logger: logger.With(logging.F("component", "jobqueue.worker")), ctx: ctx, cancel: cancel}
}

// Start launches Config.Concurrency worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.config.Concurrency; i++ {
		id := uuid.NewString()
		p.wg.Add(1)
		go p.run(id)
	}
}

// Stop signals every worker to drain and waits up to ShutdownTimeout.
func (p *Pool) Stop() {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out, workers may still be finishing in-flight jobs")
	}
}

// Stats reports counters since Start.
type Stats struct {
	Processed int64
	Failed    int64
}

func (p *Pool) Stats() Stats {
	return Stats{Processed: p.processed.Load(), Failed: p.failed.Load()}
}

func (p *Pool) run(workerID string) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		jobs, err := p.dispatcher.Dequeue(p.config.BatchSize, p.config.LeaseDuration, p.config.PollInterval)
		if err != nil {
			if p.ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue failed", logging.Err(err), logging.F("worker_id", workerID))
			time.Sleep(p.config.PollInterval)
			continue
		}

		for _, job := range jobs {
			if p.ctx.Err() != nil {
				return
			}
			p.process(workerID, job)
		}
	}
}

func (p *Pool) process(workerID string, job jobqueue.Job) {
	ctx, cancel := context.WithTimeout(p.ctx, p.config.HardTimeLimit)
	defer cancel()

	renewStop := make(chan struct{})
	defer close(renewStop)
	go p.renewLeaseLoop(job, renewStop)

	softCtx, softCancel := context.WithTimeout(ctx, p.config.SoftTimeLimit)
	defer softCancel()

	err := p.handler(softCtx, job)
	queue := p.dispatcher.Queue(job.Lane)

	if err != nil {
		p.failed.Add(1)
		pe := mgerrors.ClassifyError(err, "jobqueue.worker")
		if nackErr := queue.Nack(job, pe); nackErr != nil {
			p.logger.Error("failed to nack job", logging.Err(nackErr), logging.F("job_id", job.ID))
		}
		return
	}

	p.processed.Add(1)
	if ackErr := queue.Ack(job.ID); ackErr != nil {
		p.logger.Error("failed to ack job", logging.Err(ackErr), logging.F("job_id", job.ID))
	}
}

func (p *Pool) renewLeaseLoop(job jobqueue.Job, stop <-chan struct{}) {
	ticker := time.NewTicker(p.config.LeaseRenewEvery)
	defer ticker.Stop()
	queue := p.dispatcher.Queue(job.Lane)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := queue.RenewLease(job.ID, p.config.LeaseDuration); err != nil {
				p.logger.Warn("lease renewal failed", logging.Err(err), logging.F("job_id", job.ID))
			}
		}
	}
}
