package service

import (
	"context"
	"sync"
	"time"

	"einvoice-dispatch/internal/core/domain"
	"einvoice-dispatch/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobProcessor executes one job and reports the outcome.
type JobProcessor interface {
	Process(ctx context.Context, job domain.Job) domain.Outcome
}

// Runner polls named queues and hands claimed jobs to their processors. One
// goroutine pool per queue; retryable outcomes go back on the queue with the
// processor's delay and an advanced attempt counter.
type Runner struct {
	queue    ports.Queue
	pollIdle time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	queues []runnerQueue
	wg     sync.WaitGroup
}

type runnerQueue struct {
	name      string
	processor JobProcessor
	workers   int
}

// NewRunner creates a runner over the shared queue backend.
func NewRunner(queue ports.Queue, log zerolog.Logger) *Runner {
	return &Runner{
		queue:    queue,
		pollIdle: time.Second,
		log:      log,
	}
}

// Register adds a queue with its processor and worker count. Must be called
// before Start.
func (r *Runner) Register(name string, processor JobProcessor, workers int) {
	if workers <= 0 {
		workers = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues = append(r.queues, runnerQueue{name: name, processor: processor, workers: workers})
}

// Start launches the worker goroutines. They run until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.queues {
		for i := 0; i < q.workers; i++ {
			r.wg.Add(1)
			go r.loop(ctx, q, i)
		}
		r.log.Info().Str("queue", q.name).Int("workers", q.workers).Msg("queue workers started")
	}
}

// Wait blocks until all worker goroutines have exited.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, q runnerQueue, worker int) {
	defer r.wg.Done()
	log := r.log.With().Str("queue", q.name).Int("worker", worker).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := r.queue.Dequeue(ctx, q.name)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("dequeue failed")
			r.idle(ctx)
			continue
		}
		if job == nil {
			r.idle(ctx)
			continue
		}

		r.execute(ctx, q, *job, log)
	}
}

func (r *Runner) execute(ctx context.Context, q runnerQueue, job domain.Job, log zerolog.Logger) {
	outcome := q.processor.Process(ctx, job)
	switch {
	case outcome.IsRetryable():
		retry := job.Retry()
		if err := r.queue.EnqueueIn(ctx, retry, outcome.Delay); err != nil {
			// The job is lost from the queue; the underlying row keeps its
			// retrying status and can be requeued by an operator.
			log.Error().Err(err).Str("job_id", job.ID.String()).Msg("re-enqueue failed")
			return
		}
		log.Info().
			Str("reference_id", job.ReferenceID.String()).
			Int("next_attempt", retry.Attempt).
			Dur("delay", outcome.Delay).
			Msg("job scheduled for retry")
	case outcome.IsFatal():
		log.Warn().Err(outcome.Err).Str("reference_id", job.ReferenceID.String()).Msg("job failed permanently")
	}
}

func (r *Runner) idle(ctx context.Context) {
	t := time.NewTimer(r.pollIdle)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// DispatchEnqueuerImpl enqueues first-attempt dispatch jobs for accepted
// documents. The API handler depends on this, not on the queue directly.
type DispatchEnqueuerImpl struct {
	queue ports.Queue
}

func NewDispatchEnqueuer(queue ports.Queue) *DispatchEnqueuerImpl {
	return &DispatchEnqueuerImpl{queue: queue}
}

func (e *DispatchEnqueuerImpl) EnqueueDispatch(ctx context.Context, docID uuid.UUID) error {
	return e.queue.Enqueue(ctx, domain.NewJob(domain.QueueDispatch, docID))
}
