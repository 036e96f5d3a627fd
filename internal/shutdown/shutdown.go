// Package shutdown stops the daemon's components in reverse start order, so
// producers stop before the stores and queues they write to are closed.
//
// Usage:
//
//	coord := shutdown.NewCoordinator(logger)
//	coord.Register("store", shutdown.Func(func(context.Context) error { return st.Close() }))
//	coord.Register("scheduler", sched)
//	// On shutdown:
//	coord.Shutdown(ctx) // stops the scheduler, then closes the store
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Shutdowner is implemented by components that take part in coordinated
// shutdown. Shutdown should return ctx.Err() if it cannot finish in time.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Func adapts a plain function, such as a Close method, to Shutdowner.
type Func func(ctx context.Context) error

// Shutdown calls f.
func (f Func) Shutdown(ctx context.Context) error {
	return f(ctx)
}

// CloseFunc adapts a Close method that ignores the context.
func CloseFunc(closeFn func() error) Shutdowner {
	return Func(func(context.Context) error { return closeFn() })
}

type component struct {
	name       string
	shutdowner Shutdowner
}

// Coordinator manages ordered shutdown of registered components.
type Coordinator struct {
	components []component
	logger     *slog.Logger
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger: logger.With(slog.String("component", "shutdown")),
	}
}

// Register adds a component. Components are stopped last in, first out.
func (c *Coordinator) Register(name string, s Shutdowner) {
	c.components = append(c.components, component{
		name:       name,
		shutdowner: s,
	})
	c.logger.Debug("registered shutdown handler",
		slog.String("handler", name),
	)
}

// Shutdown stops all registered components in reverse order. A failing
// component does not stop the rest; all failures are joined into the
// returned error. Once ctx expires the remaining components are skipped.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.logger.Info("starting coordinated shutdown",
		slog.Int("components", len(c.components)),
	)

	var errs []error
	for i := len(c.components) - 1; i >= 0; i-- {
		comp := c.components[i]

		if err := ctx.Err(); err != nil {
			c.logger.Error("shutdown deadline exceeded",
				slog.String("remaining_component", comp.name),
			)
			errs = append(errs, fmt.Errorf("shutdown deadline exceeded at component %s: %w", comp.name, err))
			break
		}

		start := time.Now()
		err := comp.shutdowner.Shutdown(ctx)
		duration := time.Since(start)

		if err != nil {
			c.logger.Error("component shutdown failed",
				slog.String("handler", comp.name),
				slog.Duration("duration", duration),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("failed to shutdown %s: %w", comp.name, err))
			continue
		}
		c.logger.Info("component shutdown complete",
			slog.String("handler", comp.name),
			slog.Duration("duration", duration),
		)
	}

	if len(errs) > 0 {
		c.logger.Warn("coordinated shutdown completed with errors")
		return errors.Join(errs...)
	}
	c.logger.Info("coordinated shutdown complete")
	return nil
}

// ComponentCount returns the number of registered components.
func (c *Coordinator) ComponentCount() int {
	return len(c.components)
}
