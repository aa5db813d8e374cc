package email

import (
	"context"
	"log/slog"
	"sync"
)

// Dispatcher decouples notification delivery from the request path: sends are
// queued after the response-relevant state is durable, run on a worker
// goroutine, and failures are logged rather than surfaced. A full queue drops
// the message instead of blocking the caller.
type Dispatcher struct {
	queue chan func()
	wg    sync.WaitGroup
}

const defaultQueueSize = 256

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		queue: make(chan func(), defaultQueueSize),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for task := range d.queue {
		task()
	}
}

// Enqueue schedules task on the worker. It never blocks.
func (d *Dispatcher) Enqueue(kind, to string, task func() error) {
	wrapped := func() {
		if err := task(); err != nil {
			slog.Error("email delivery failed", "component", "email", "kind", kind, "to", to, "error", err)
		}
	}

	select {
	case d.queue <- wrapped:
	default:
		slog.Warn("email queue full, dropping message", "component", "email", "kind", kind, "to", to)
	}
}

// Close stops accepting work and drains the queue.
func (d *Dispatcher) Close(ctx context.Context) {
	close(d.queue)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("email dispatcher shutdown timed out", "component", "email")
	}
}
