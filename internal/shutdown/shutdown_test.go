// shutdown_test.go tests ordering and error collection.
package shutdown

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

// nopLogger returns a logger that discards all output, suitable for tests.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestShutdown_ReverseOrder(t *testing.T) {
	var order []string
	c := NewCoordinator(nopLogger())
	for _, name := range []string{"store", "queue", "scheduler"} {
		c.Register(name, Func(func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	want := []string{"scheduler", "queue", "store"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestShutdown_CollectsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	closed := false

	c := NewCoordinator(nopLogger())
	c.Register("c", CloseFunc(func() error { closed = true; return nil }))
	c.Register("b", CloseFunc(func() error { return errB }))
	c.Register("a", CloseFunc(func() error { return errA }))

	err := c.Shutdown(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors, got %v", err)
	}
	if !closed {
		t.Error("expected remaining component to be shut down after failures")
	}
	if c.ComponentCount() != 3 {
		t.Errorf("expected 3 components, got %d", c.ComponentCount())
	}
}

func TestShutdown_ExpiredContext(t *testing.T) {
	called := false
	c := NewCoordinator(nopLogger())
	c.Register("late", CloseFunc(func() error { called = true; return nil }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Shutdown(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("expected component to be skipped after deadline")
	}
}
