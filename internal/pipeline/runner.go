package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/reelsplace/internal/queue"
)

// ErrQueueFull is returned by Submit when every slot of the job queue is
// taken.
var ErrQueueFull = errors.New("pipeline queue full")

// ErrRunnerStopped is returned by Submit after Stop.
var ErrRunnerStopped = errors.New("pipeline runner stopped")

// Trigger starts a pipeline run for a reel without waiting for it.
type Trigger interface {
	Trigger(ctx context.Context, reelID, userID uint64) error
}

// RunFunc runs one reel. Service.Run satisfies it.
type RunFunc func(ctx context.Context, reelID uint64) (RunResult, error)

// Runner is a fixed pool of goroutines fed by a bounded queue. It is the
// in-process Trigger used when no broker is configured.
type Runner struct {
	run     RunFunc
	jobs    chan queue.ReelProcessRequested
	workers int
	log     logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewRunner returns a Runner with workers goroutines and room for
// queueSize waiting jobs. Call Start before submitting.
func NewRunner(run RunFunc, workers, queueSize int, log logrus.FieldLogger) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		run:     run,
		jobs:    make(chan queue.ReelProcessRequested, queueSize),
		workers: workers,
		log:     log.WithField("component", "pipeline_runner"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers.
func (r *Runner) Start() {
	r.log.WithField("workers", r.workers).Info("runner starting")
	for i := 1; i <= r.workers; i++ {
		r.wg.Add(1)
		go r.work(i)
	}
}

func (r *Runner) work(id int) {
	defer r.wg.Done()
	log := r.log.WithField("worker", id)
	for job := range r.jobs {
		Handle(r.ctx, r.run, job, log)
	}
}

// Handle runs one request and logs its outcome. A reel already in flight
// is not an error for the caller.
func Handle(ctx context.Context, run RunFunc, job queue.ReelProcessRequested, log logrus.FieldLogger) error {
	log = log.WithFields(logrus.Fields{"reel_id": job.ReelID, "request_id": job.RunID})
	res, err := run(ctx, job.ReelID)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		log.Info("reel already in flight; request dropped")
		return nil
	case err != nil:
		log.WithError(err).Warn("pipeline run failed")
		return err
	}
	log.WithField("status", res.Status).Debug("pipeline run done")
	return nil
}

// Submit queues a run without blocking.
func (r *Runner) Submit(job queue.ReelProcessRequested) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		return ErrRunnerStopped
	}
	select {
	case r.jobs <- job:
		return nil
	default:
		r.log.WithField("reel_id", job.ReelID).Warn("queue full; run not submitted")
		return ErrQueueFull
	}
}

// Trigger implements Trigger.
func (r *Runner) Trigger(_ context.Context, reelID, userID uint64) error {
	return r.Submit(queue.ReelProcessRequested{
		ReelID:      reelID,
		UserID:      userID,
		RunID:       uuid.NewString(),
		RequestedAt: time.Now().UTC(),
	})
}

// Stop refuses new jobs, lets queued ones drain and waits for the workers.
// When ctx expires first the running jobs are cancelled.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.jobs)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		r.log.Info("runner stopped")
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// ProcessPublisher queues reel runs on the broker.
type ProcessPublisher interface {
	PublishReelProcess(ctx context.Context, ev queue.ReelProcessRequested) error
}

// BrokerTrigger hands runs to the worker processes through the broker.
type BrokerTrigger struct {
	pub ProcessPublisher
}

// NewBrokerTrigger returns a BrokerTrigger publishing with pub.
func NewBrokerTrigger(pub ProcessPublisher) *BrokerTrigger {
	return &BrokerTrigger{pub: pub}
}

// Trigger implements Trigger.
func (b *BrokerTrigger) Trigger(ctx context.Context, reelID, userID uint64) error {
	return b.pub.PublishReelProcess(ctx, queue.ReelProcessRequested{
		ReelID:      reelID,
		UserID:      userID,
		RunID:       uuid.NewString(),
		RequestedAt: time.Now().UTC(),
	})
}
