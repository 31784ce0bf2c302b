package dispatch

import (
	"context"
	"sync"

	"pulse/internal/logger"
	"pulse/pkg/errors"
	"pulse/pkg/metrics"
)

// Task runs on the queue's worker goroutine.
type Task func(ctx context.Context)

// Queue runs tasks one at a time in enqueue order on a single worker. The backlog is
// unbounded so Enqueue never blocks the caller.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	tasks    []Task
	closed   bool
	done     chan struct{}
	instance string
	log      logger.Logger
}

func NewQueue(instance string, log logger.Logger) *Queue {
	q := &Queue{
		done:     make(chan struct{}),
		instance: instance,
		log:      log,
	}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Enqueue appends task to the backlog.
func (q *Queue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.IllegalState(errors.MsgShutdown)
	}
	q.tasks = append(q.tasks, task)
	metrics.SetDispatchQueueSize(q.instance, len(q.tasks))
	q.cond.Signal()
	return nil
}

// Len reports the number of tasks not yet started.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops accepting tasks and waits until every queued task has run or ctx ends.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.tasks) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		metrics.SetDispatchQueueSize(q.instance, len(q.tasks))
		q.mu.Unlock()

		q.execute(task)
	}
}

func (q *Queue) execute(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Errorw("Dispatch task panicked", "instance", q.instance, "error", errors.RecoverPanic(r))
		}
	}()
	task(context.Background())
}
