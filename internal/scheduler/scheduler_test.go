// Package scheduler tests drive Tick with a fixed clock against a bbolt store
// and queue in a temporary directory.
package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/doughall/recurd/internal/events"
	"github.com/doughall/recurd/internal/metrics"
	"github.com/doughall/recurd/internal/recurrence"
	"github.com/doughall/recurd/internal/store"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type harness struct {
	sched *Scheduler
	store store.Store
	queue *events.Queue
	reg   *metrics.Registry
	clock time.Time
}

func newHarness(t *testing.T, start time.Time) *harness {
	t.Helper()
	dir := t.TempDir()
	st, err := store.OpenBolt(filepath.Join(dir, "schedules.db"))
	if err != nil {
		t.Fatalf("OpenBolt failed: %v", err)
	}
	q, err := events.OpenQueue(filepath.Join(dir, "events.db"))
	if err != nil {
		t.Fatalf("OpenQueue failed: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
		q.Close()
	})

	h := &harness{store: st, queue: q, reg: metrics.NewRegistry(prometheus.NewRegistry()), clock: start}
	h.sched = NewScheduler(st, q, h.reg, time.Minute, nopLogger())
	h.sched.now = func() time.Time { return h.clock }
	return h
}

func mustSchedule(t *testing.T, at time.Time, f recurrence.Frequency) recurrence.Schedule {
	t.Helper()
	anchor, err := recurrence.NewAnchor(at, "UTC")
	if err != nil {
		t.Fatalf("NewAnchor failed: %v", err)
	}
	return recurrence.Schedule{Anchor: anchor, Frequency: f}
}

func TestAssign(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, start)
	ctx := context.Background()

	daily := mustSchedule(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), recurrence.RegularFrequency{Every: 1, Expr: recurrence.Daily{}})
	rec, err := h.sched.Assign(ctx, "task-1", daily)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	want := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	if !rec.NextDueAt.Equal(want) {
		t.Errorf("expected next due %s, got %s", want, rec.NextDueAt)
	}

	stored, err := h.store.Get(ctx, "task-1")
	if err != nil || stored == nil {
		t.Fatalf("expected stored record, got %v (err=%v)", stored, err)
	}

	t.Run("rejects expired one-shot", func(t *testing.T) {
		past := mustSchedule(t, start.Add(-time.Hour), recurrence.Never{})
		if _, err := h.sched.Assign(ctx, "task-2", past); !errors.Is(err, ErrNoOccurrence) {
			t.Errorf("expected ErrNoOccurrence, got %v", err)
		}
	})

	t.Run("rejects invalid rule", func(t *testing.T) {
		bad := mustSchedule(t, start, recurrence.RegularFrequency{Every: 0, Expr: recurrence.Daily{}})
		if _, err := h.sched.Assign(ctx, "task-3", bad); !errors.Is(err, recurrence.ErrInvalidFrequency) {
			t.Errorf("expected ErrInvalidFrequency, got %v", err)
		}
	})
}

func TestTick_EmitsAndAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, start)
	ctx := context.Background()

	hourly := mustSchedule(t, start.Add(30*time.Minute), recurrence.RegularFrequency{Every: 1, Expr: recurrence.Hourly{}})
	if _, err := h.sched.Assign(ctx, "hourly", hourly); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if n := h.sched.Tick(ctx); n != 0 {
		t.Fatalf("expected nothing due yet, got %d", n)
	}

	// 00:30, 01:30 and 02:30 have passed.
	h.clock = start.Add(2*time.Hour + 45*time.Minute)
	if n := h.sched.Tick(ctx); n != 3 {
		t.Fatalf("expected 3 events, got %d", n)
	}

	evs, err := h.queue.Dequeue(10)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(evs) != 3 {
		t.Fatalf("expected 3 queued events, got %d", len(evs))
	}
	for i, e := range evs {
		want := start.Add(30*time.Minute + time.Duration(i)*time.Hour)
		if !e.DueAt.Equal(want) || e.TaskID != "hourly" {
			t.Errorf("event %d: expected hourly at %s, got %s at %s", i, want, e.TaskID, e.DueAt)
		}
	}

	rec, _ := h.store.Get(ctx, "hourly")
	if want := start.Add(3*time.Hour + 30*time.Minute); !rec.NextDueAt.Equal(want) {
		t.Errorf("expected next due %s, got %s", want, rec.NextDueAt)
	}
	if got := testutil.ToFloat64(h.reg.DueEvents); got != 3 {
		t.Errorf("expected due events counter 3, got %v", got)
	}
	if got := testutil.ToFloat64(h.reg.TrackedSchedules); got != 1 {
		t.Errorf("expected 1 tracked schedule, got %v", got)
	}
	if n, err := h.sched.Tracked(ctx); err != nil || n != 1 {
		t.Errorf("expected Tracked 1, got %d (%v)", n, err)
	}
}

func TestTick_FinishesOneShot(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, start)
	ctx := context.Background()

	once := mustSchedule(t, start.Add(time.Hour), recurrence.Never{})
	if _, err := h.sched.Assign(ctx, "once", once); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	h.clock = start.Add(2 * time.Hour)
	if n := h.sched.Tick(ctx); n != 1 {
		t.Fatalf("expected 1 event, got %d", n)
	}
	rec, _ := h.store.Get(ctx, "once")
	if !rec.Finished {
		t.Error("expected one-shot record to be finished")
	}

	h.clock = start.Add(3 * time.Hour)
	if n := h.sched.Tick(ctx); n != 0 {
		t.Errorf("expected finished record to stay quiet, got %d events", n)
	}
}

func TestTick_CatchUpLimit(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, start)
	ctx := context.Background()

	hourly := mustSchedule(t, start.Add(time.Minute), recurrence.RegularFrequency{Every: 1, Expr: recurrence.Hourly{}})
	if _, err := h.sched.Assign(ctx, "hourly", hourly); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	h.clock = start.Add(30 * 24 * time.Hour)
	if n := h.sched.Tick(ctx); n != MaxCatchUpEvents {
		t.Fatalf("expected %d events, got %d", MaxCatchUpEvents, n)
	}
	rec, _ := h.store.Get(ctx, "hourly")
	if !rec.NextDueAt.After(h.clock) {
		t.Errorf("expected next due after now, got %s", rec.NextDueAt)
	}
}

func TestRemove(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, start)
	ctx := context.Background()

	daily := mustSchedule(t, start, recurrence.RegularFrequency{Every: 1, Expr: recurrence.Daily{}})
	if _, err := h.sched.Assign(ctx, "task", daily); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if err := h.sched.Remove(ctx, "task"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if rec, _ := h.store.Get(ctx, "task"); rec != nil {
		t.Error("expected record to be removed")
	}
}
