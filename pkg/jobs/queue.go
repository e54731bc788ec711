package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotRunning is returned by Enqueue before Start or after Stop.
	ErrNotRunning = errors.New("queue not running")
	// ErrQueueFull is returned by Enqueue when every buffer slot is taken.
	ErrQueueFull = errors.New("queue full")
)

// Job identifies one unit of background work. The payload lives in the
// database row named by ID.
type Job struct {
	ID         string
	Kind       string
	Attempt    int
	EnqueuedAt time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig tunes the worker pool.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	// RetryDelay is multiplied by the attempt number.
	RetryDelay time.Duration
	Logger     *zap.Logger
	OnGiveUp   func(Job, error)
}

// Queue runs jobs on a fixed pool of goroutines. A job ID is held only once
// between Enqueue and its final outcome, so replaying pending rows after a
// restart cannot double-process a report.
type Queue struct {
	name    string
	handler Handler
	cfg     QueueConfig
	logger  *zap.Logger

	jobs chan Job
	wg   sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	held    map[string]struct{}
}

// NewQueue applies defaults: one worker, four slots per worker, three
// retries, one second base delay.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		name:    name,
		handler: handler,
		cfg:     cfg,
		logger:  logger.With(zap.String("queue", name)),
		jobs:    make(chan Job, cfg.BufferSize),
		held:    make(map[string]struct{}),
	}
}

// Start launches the workers. Later calls are no-ops.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	q.running = true
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.logger.Info("queue started", zap.Int("workers", q.cfg.Workers))
}

// Stop cancels in-flight work and waits for the workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// Enqueue schedules a job without blocking. A job whose ID is already held
// is ignored; a full buffer releases the ID and returns ErrQueueFull.
func (q *Queue) Enqueue(job Job) error {
	return q.enqueue(context.Background(), job, false)
}

// EnqueueWait is Enqueue for callers that can afford to wait for a free
// slot, such as startup replay. It gives up when ctx or the queue ends.
func (q *Queue) EnqueueWait(ctx context.Context, job Job) error {
	return q.enqueue(ctx, job, true)
}

func (q *Queue) enqueue(caller context.Context, job Job, wait bool) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	}
	if _, dup := q.held[job.ID]; dup {
		q.mu.Unlock()
		q.logger.Debug("job already queued", zap.String("job_id", job.ID))
		return nil
	}
	q.held[job.ID] = struct{}{}
	ctx := q.ctx
	q.mu.Unlock()

	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	if wait {
		if err := q.push(ctx, caller, job); err != nil {
			q.release(job.ID)
			return err
		}
		return nil
	}

	select {
	case <-ctx.Done():
		q.release(job.ID)
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	case q.jobs <- job:
		return nil
	default:
		q.release(job.ID)
		q.logger.Warn("queue full", zap.String("job_id", job.ID), zap.Int("buffer", cap(q.jobs)))
		return fmt.Errorf("%s: %w", q.name, ErrQueueFull)
	}
}

// Held is the number of jobs queued, running or waiting to retry.
func (q *Queue) Held() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.held)
}

// push blocks until the job is buffered, the queue stops or caller ends.
func (q *Queue) push(ctx, caller context.Context, job Job) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", q.name, ErrNotRunning)
	case <-caller.Done():
		return caller.Err()
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) release(id string) {
	q.mu.Lock()
	delete(q.held, id)
	q.mu.Unlock()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := q.run(job); err != nil {
				q.retry(job, err)
				continue
			}
			q.release(job.ID)
		}
	}
}

func (q *Queue) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	started := time.Now()
	err = q.handler(q.ctx, job)
	q.logger.Debug("job ran", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Duration("took", time.Since(started)), zap.Error(err))
	return err
}

func (q *Queue) retry(job Job, cause error) {
	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		q.release(job.ID)
		q.logger.Error("job gave up", zap.String("job_id", job.ID), zap.String("kind", job.Kind), zap.Error(cause))
		if q.cfg.OnGiveUp != nil {
			q.cfg.OnGiveUp(job, cause)
		}
		return
	}
	delay := q.cfg.RetryDelay * time.Duration(job.Attempt)
	q.logger.Warn("job failed, retrying", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Duration("delay", delay), zap.Error(cause))

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			q.release(job.ID)
		case <-timer.C:
			if err := q.push(q.ctx, q.ctx, job); err != nil {
				q.release(job.ID)
			}
		}
	}()
}
