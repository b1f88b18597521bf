package outbox

import (
	"context"
	"log/slog"
	"sync"
)

// Runner executes one intent. *Executor satisfies it.
type Runner interface {
	Execute(ctx context.Context, it Intent) error
}

// Dispatcher runs intents in-process on a pool of workers. Each intent is
// retried on its own; a failing intent never holds up the rest of its batch.
type Dispatcher struct {
	run     Runner
	retry   Retry
	log     *slog.Logger
	workers int

	inbox chan Intent
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(run Runner, workers, buf int, retry Retry, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if buf <= 0 {
		buf = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		run:     run,
		retry:   retry,
		log:     log,
		workers: workers,
		inbox:   make(chan Intent, buf),
	}
}

// Start launches the workers. ctx bounds retries and backoff sleeps; queued
// intents are still drained after Close.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for it := range d.inbox {
				d.execute(ctx, it)
			}
		}()
	}
}

func (d *Dispatcher) execute(ctx context.Context, it Intent) {
	attempts, err := d.retry.Do(ctx, func(ctx context.Context) error {
		return d.run.Execute(ctx, it)
	})
	if err != nil {
		d.log.Error("outbox intent dead-lettered",
			"id", it.ID, "kind", it.Kind, "key", it.Key, "attempts", attempts, "err", err)
		return
	}
	if attempts > 1 {
		d.log.Info("outbox intent delivered after retry", "id", it.ID, "kind", it.Kind, "attempts", attempts)
	}
}

// Dispatch enqueues b. It does not observe the request context so that a
// client disconnect cannot drop side effects of a committed mutation.
func (d *Dispatcher) Dispatch(_ context.Context, b Batch) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		for _, it := range b {
			d.log.Warn("outbox closed, intent dropped", "id", it.ID, "kind", it.Kind, "key", it.Key)
		}
		return
	}
	for _, it := range b {
		d.inbox <- it
	}
}

// Close stops accepting intents; workers finish what is queued.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.inbox)
}

func (d *Dispatcher) Wait() { d.wg.Wait() }
