// Package events - Dispatcher Component
//
// The dispatcher drains the local queue to a Publisher in batches. Events are
// removed only after the publisher accepts the whole batch; a failed batch is
// retried on the next cycle, so consumers must tolerate duplicates (the event
// ID is stable for that purpose).
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/doughall/recurd/internal/metrics"
)

// DefaultBatchSize is the number of events handed to a publisher at once.
const DefaultBatchSize = 50

// Publisher delivers a batch of due events to a consumer.
type Publisher interface {
	PublishDueEvents(ctx context.Context, evs []*DueEvent) error
}

// Dispatcher periodically publishes queued events.
type Dispatcher struct {
	queue     *Queue
	publisher Publisher
	metrics   *metrics.Registry
	logger    *slog.Logger
	interval  time.Duration
	batchSize int

	// Synchronization for graceful shutdown
	wg     sync.WaitGroup
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewDispatcher creates a dispatcher that runs every interval.
func NewDispatcher(queue *Queue, publisher Publisher, reg *metrics.Registry, interval time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:     queue,
		publisher: publisher,
		metrics:   reg,
		logger:    logger.With(slog.String("component", "dispatcher")),
		interval:  interval,
		batchSize: DefaultBatchSize,
	}
}

// Run starts the dispatch loop and blocks until ctx is cancelled. The queue
// is drained once immediately so events left from a previous run go out
// without waiting for the first tick.
func (d *Dispatcher) Run(ctx context.Context) {
	internalCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.logger.Info("dispatcher started",
		slog.Duration("interval", d.interval),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.Drain(internalCtx)

	for {
		select {
		case <-internalCtx.Done():
			d.logger.Info("dispatcher stopping")
			return

		case <-ticker.C:
			d.Drain(internalCtx)
		}
	}
}

// Drain publishes full batches until the queue is empty or a batch fails.
// It returns the number of events delivered.
func (d *Dispatcher) Drain(ctx context.Context) int {
	d.wg.Add(1)
	defer d.wg.Done()

	delivered := 0
	for ctx.Err() == nil {
		n, ok := d.dispatchBatch(ctx)
		delivered += n
		if !ok || n < d.batchSize {
			break
		}
	}

	if depth, err := d.queue.Count(); err == nil {
		d.metrics.QueueDepth.Set(float64(depth))
	}
	return delivered
}

// dispatchBatch sends one batch. ok is false when nothing should follow.
func (d *Dispatcher) dispatchBatch(ctx context.Context) (n int, ok bool) {
	evs, err := d.queue.Dequeue(d.batchSize)
	if err != nil {
		d.logger.Warn("failed to dequeue due events",
			slog.String("error", err.Error()),
		)
		return 0, false
	}

	if len(evs) == 0 {
		d.logger.Debug("no pending due events")
		return 0, false
	}

	if err := d.publisher.PublishDueEvents(ctx, evs); err != nil {
		d.metrics.DispatchEvents.WithLabelValues(metrics.ResultFailed).Add(float64(len(evs)))
		d.logger.Warn("failed to publish due events, will retry next cycle",
			slog.String("error", err.Error()),
			slog.Int("count", len(evs)),
		)
		return 0, false
	}
	d.metrics.DispatchEvents.WithLabelValues(metrics.ResultDelivered).Add(float64(len(evs)))

	seqs := make([]uint64, len(evs))
	for i, e := range evs {
		seqs[i] = e.Seq
	}

	if err := d.queue.Remove(seqs); err != nil {
		// Delivered already; the batch may go out again next cycle.
		d.logger.Warn("failed to remove published events from queue",
			slog.String("error", err.Error()),
			slog.Int("count", len(seqs)),
		)
		return len(evs), false
	}

	d.logger.Info("due events published",
		slog.Int("count", len(evs)),
	)
	return len(evs), true
}

// Shutdown stops the dispatcher and waits for any in-flight batch.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.logger.Info("dispatcher shutdown initiated")

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher shutdown complete")
		return nil
	case <-ctx.Done():
		d.logger.Warn("dispatcher shutdown timed out")
		return ctx.Err()
	}
}
