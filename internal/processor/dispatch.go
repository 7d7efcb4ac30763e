package processor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// task is one unit of background persistence work.
type task struct {
	name string
	fn   func(ctx context.Context) error
}

// Dispatcher runs persistence work on a bounded queue decoupled from the
// relay-delivery goroutines, so a slow write never blocks intake.
//
// The queue is bounded: when it is full, Dispatch drops the task and
// returns false. Nothing is retried - a dropped write relies on possible
// re-delivery from the network, same as any other processing failure.
//
// Thread-safety: Dispatch may be called from any goroutine. Start must be
// called once before dispatching; Close waits for in-flight work.
type Dispatcher struct {
	tasks   chan task
	pending sync.WaitGroup
	group   *errgroup.Group
	ctx     context.Context

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher with the given worker count and
// queue capacity and starts its workers.
func NewDispatcher(ctx context.Context, workers, queueSize int) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{
		tasks: make(chan task, queueSize),
	}
	d.group, d.ctx = errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		d.group.Go(d.run)
	}
	return d
}

// Dispatch enqueues a task. Returns false when the queue is full or the
// dispatcher is closed; the caller treats that as a silent drop.
func (d *Dispatcher) Dispatch(name string, fn func(ctx context.Context) error) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	// Pending is bumped before the enqueue: a worker may receive the task
	// and call Done the instant it lands on the channel.
	d.pending.Add(1)
	select {
	case d.tasks <- task{name: name, fn: fn}:
		d.mu.Unlock()
		return true
	default:
		d.pending.Done()
		d.mu.Unlock()
		slog.Warn("persistence queue full, dropping task", "task", name)
		return false
	}
}

// Wait blocks until every task dispatched so far has completed. Used by
// tests to make the asynchronous pipeline deterministic.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close stops accepting work, drains the queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.group.Wait()
}

func (d *Dispatcher) run() error {
	for t := range d.tasks {
		// Failures are logged and swallowed: the pipeline never surfaces
		// persistence errors to the delivery path.
		if err := t.fn(d.ctx); err != nil {
			slog.Error("persistence task failed", "task", t.name, "error", err)
		}
		d.pending.Done()
	}
	return nil
}
