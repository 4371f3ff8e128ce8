// Package jobs is the in-process dispatch backbone for asynchronous side
// work, currently notification delivery. Tasks carry a typed payload so
// handlers never need to re-assert what they dequeued.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of queued work.
type Task[T any] struct {
	ID         string
	Kind       string
	Payload    T
	Attempt    int
	EnqueuedAt time.Time
}

// Handler consumes a task. A returned error schedules a delayed retry.
type Handler[T any] func(context.Context, Task[T]) error

// Config tunes the worker pool behind a queue.
type Config struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = c.Workers * 4
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Queue dispatches typed tasks onto a bounded channel consumed by a worker
// pool. Failed tasks are re-enqueued after a delay until the retry cap.
type Queue[T any] struct {
	name    string
	handler Handler[T]
	cfg     Config

	tasks   chan Task[T]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a queue that feeds tasks to handler.
func NewQueue[T any](name string, handler Handler[T], cfg Config) *Queue[T] {
	cfg = cfg.withDefaults()
	return &Queue[T]{
		name:    name,
		handler: handler,
		cfg:     cfg,
		tasks:   make(chan Task[T], cfg.BufferSize),
	}
}

// Start launches the workers. Calling Start on a running queue is a no-op.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	q.started = true
	q.cfg.Logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.cfg.Workers)
}

// Stop cancels the workers and waits for them to drain.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.mu.Unlock()
	q.wg.Wait()
	q.cfg.Logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Enqueue submits a task. It blocks while the buffer is full and fails once
// the queue is stopped or was never started.
func (q *Queue[T]) Enqueue(task Task[T]) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.tasks <- task:
		return nil
	}
}

func (q *Queue[T]) work() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task := <-q.tasks:
			if err := q.handler(q.ctx, task); err != nil {
				q.retry(task, err)
			}
		}
	}
}

func (q *Queue[T]) retry(task Task[T], cause error) {
	task.Attempt++
	log := q.cfg.Logger.Sugar()
	if task.Attempt > q.cfg.MaxRetries {
		log.Errorw("task exceeded retries", "queue", q.name, "task_id", task.ID, "kind", task.Kind, "error", cause)
		return
	}
	log.Warnw("task failed, retrying", "queue", q.name, "task_id", task.ID, "kind", task.Kind, "attempt", task.Attempt, "error", cause)

	go func() {
		timer := time.NewTimer(q.cfg.RetryDelay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
		case <-timer.C:
			if err := q.Enqueue(task); err != nil {
				log.Errorw("failed to requeue task", "queue", q.name, "task_id", task.ID, "error", err)
			}
		}
	}()
}
