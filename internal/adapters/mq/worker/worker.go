// Package worker applies collection change events: it clears the affected
// cache group and reloads the affected feed.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/pitch/internal/adapters/mq/queue"
	"github.com/okian/pitch/internal/domain/dedupe"
	"github.com/okian/pitch/pkg/logger"
	"github.com/okian/pitch/pkg/metrics"
)

const (
	defaultWorkerCount  = 2
	poolShutdownTimeout = 30 * time.Second
)

// Applier reacts to one change event.
type Applier interface {
	ApplyChange(ctx context.Context, e queue.Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Event
}

// InMemoryWorker consumes events from a Queue until it is closed.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	deduper dedupe.Deduper
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		applier:  applier,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes events until ctx is done, Shutdown is called or the queue closes.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := w.process(ctx, e); err != nil {
				w.logger.Error(ctx, "change event failed", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for the current event to finish.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, e queue.Event) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if w.deduper != nil && e.EventID != "" && w.deduper.SeenAndRecord(ctx, e.EventID) {
		metrics.RecordChangeEventDuplicate()
		w.logger.Debug(ctx, "duplicate change event skipped", logger.String("event_id", e.EventID))
		return nil
	}

	if err := w.applier.ApplyChange(ctx, e); err != nil {
		if w.deduper != nil && e.EventID != "" {
			w.deduper.Unrecord(ctx, e.EventID)
		}
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "apply_change")
		return fmt.Errorf("apply change %s on %s: %w", e.EventID, e.Collection, err)
	}

	metrics.RecordChangeEventProcessed(e.Collection)
	return nil
}

// Pool runs several workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers sharing deduper.
func NewPool(workerCount int, q Queue, applier Applier, deduper dedupe.Deduper) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, applier,
			WithName("worker-"+strconv.Itoa(i)),
			WithDeduper(deduper),
		)
	}
	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue so pending events drain, then waits for the workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-waitCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker %d: %w", i, waitCtx.Err())
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return nil
}
