// Package scheduler turns stored schedules into due events. Each tick it
// reads the records whose next occurrence has arrived, queues a due event
// per occurrence and advances the record with the recurrence engine.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/doughall/recurd/internal/events"
	"github.com/doughall/recurd/internal/metrics"
	"github.com/doughall/recurd/internal/recurrence"
	"github.com/doughall/recurd/internal/store"
)

// MaxCatchUpEvents caps the events emitted for one record in a single tick.
// Older missed occurrences beyond the cap are skipped.
const MaxCatchUpEvents = 100

// ErrNoOccurrence is returned by Assign when the schedule never fires after
// the assignment time.
var ErrNoOccurrence = errors.New("schedule has no future occurrence")

// Scheduler runs the due-event loop.
type Scheduler struct {
	store    store.Store
	queue    *events.Queue
	metrics  *metrics.Registry
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewScheduler creates a scheduler that ticks every interval.
func NewScheduler(st store.Store, queue *events.Queue, reg *metrics.Registry, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		queue:    queue,
		metrics:  reg,
		logger:   logger.With(slog.String("component", "scheduler")),
		interval: interval,
		now:      time.Now,
	}
}

// Run starts the scheduler loop (blocking). Overdue records are processed
// immediately on startup.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		slog.Duration("interval", s.interval),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick processes every due record once and returns the number of events
// queued.
func (s *Scheduler) Tick(ctx context.Context) int {
	now := s.now()
	due, err := s.store.Due(ctx, now)
	if err != nil {
		s.logger.Error("failed to get due schedules",
			slog.String("error", err.Error()),
		)
		return 0
	}

	if n, err := s.store.Count(ctx); err == nil {
		s.metrics.TrackedSchedules.Set(float64(n))
	}

	if len(due) == 0 {
		s.logger.Debug("no due schedules")
		return 0
	}

	s.logger.Info("found due schedules",
		slog.Int("count", len(due)),
	)

	emitted := 0
	for _, rec := range due {
		emitted += s.advance(ctx, rec, now)
	}
	return emitted
}

// advance queues the record's missed occurrences and moves it to the first
// occurrence after now.
func (s *Scheduler) advance(ctx context.Context, rec *store.Record, now time.Time) int {
	logger := s.logger.With(slog.String("task_id", rec.TaskID))

	var evs []*events.DueEvent
	next := rec.NextDueAt
	finished := false
	for !next.After(now) {
		if len(evs) == MaxCatchUpEvents {
			logger.Warn("catch-up limit reached, skipping older occurrences",
				slog.Int("limit", MaxCatchUpEvents),
				slog.Time("skipped_from", next),
			)
			// Skip straight past now.
			after, ok, err := s.resolve(rec.Schedule, now)
			if err != nil {
				logger.Error("failed to resolve next occurrence",
					slog.String("error", err.Error()),
				)
				return 0
			}
			next, finished = after, !ok
			break
		}

		evs = append(evs, events.NewDueEvent(rec.TaskID, next, now))
		after, ok, err := s.resolve(rec.Schedule, next)
		if err != nil {
			logger.Error("failed to resolve next occurrence",
				slog.String("error", err.Error()),
			)
			return 0
		}
		if !ok {
			finished = true
			break
		}
		next = after
	}
	if len(evs) == 0 {
		return 0
	}

	if err := s.queue.Enqueue(evs...); err != nil {
		logger.Error("failed to queue due events",
			slog.String("error", err.Error()),
		)
		return 0
	}
	s.metrics.DueEvents.Add(float64(len(evs)))

	rec.LastDueAt = evs[len(evs)-1].DueAt
	rec.Finished = finished
	if !finished {
		rec.NextDueAt = next
	}
	rec.UpdatedAt = now

	if err := s.store.Save(ctx, rec); err != nil {
		// The events are queued; the record will be re-emitted next tick.
		logger.Error("failed to update next due time",
			slog.String("error", err.Error()),
		)
		return len(evs)
	}

	if finished {
		logger.Info("schedule finished",
			slog.Time("last_due_at", rec.LastDueAt),
		)
	} else {
		logger.Debug("updated next due time",
			slog.Time("next_due_at", rec.NextDueAt),
			slog.Int("emitted", len(evs)),
		)
	}
	return len(evs)
}

// resolve wraps recurrence.Resolve with metrics. ok is false when the
// schedule has no further occurrence.
func (s *Scheduler) resolve(sched recurrence.Schedule, after time.Time) (time.Time, bool, error) {
	start := time.Now()
	next, err := recurrence.Resolve(sched, after)
	s.metrics.ResolveDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.Resolutions.WithLabelValues(metrics.OutcomeError).Inc()
		return time.Time{}, false, err
	}
	t, ok := next.Get()
	if !ok {
		s.metrics.Resolutions.WithLabelValues(metrics.OutcomeFinished).Inc()
		return time.Time{}, false, nil
	}
	s.metrics.Resolutions.WithLabelValues(metrics.OutcomeScheduled).Inc()
	return t, true, nil
}

// Assign stores sched for taskID, replacing any earlier assignment, with its
// first occurrence after the current time.
func (s *Scheduler) Assign(ctx context.Context, taskID string, sched recurrence.Schedule) (*store.Record, error) {
	if err := sched.Validate(); err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	now := s.now()
	next, ok, err := s.resolve(sched, now)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", taskID, err)
	}
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNoOccurrence)
	}

	rec := &store.Record{
		TaskID:    taskID,
		Schedule:  sched,
		NextDueAt: next,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save task %s: %w", taskID, err)
	}

	s.logger.Info("schedule assigned",
		slog.String("task_id", taskID),
		slog.Time("next_due_at", next),
	)
	return rec, nil
}

// Remove drops the assignment for taskID.
func (s *Scheduler) Remove(ctx context.Context, taskID string) error {
	if err := s.store.Delete(ctx, taskID); err != nil {
		return fmt.Errorf("delete task %s: %w", taskID, err)
	}
	s.logger.Info("schedule removed",
		slog.String("task_id", taskID),
	)
	return nil
}

// Tracked returns the number of stored schedules, finished ones included.
func (s *Scheduler) Tracked(ctx context.Context) (int, error) {
	return s.store.Count(ctx)
}

// Shutdown gracefully stops the scheduler.
// This is a no-op as context cancellation handles shutdown.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.logger.Info("scheduler shutdown initiated")
	return nil
}
