// Package poller implements the node's control-plane polling loop with
// jitter. Each cycle sends a heartbeat and, when schedule assignments are
// not pushed over NATS, pulls pending assignments over HTTP.
//
// The polling loop uses time.Timer instead of time.Ticker to support
// variable intervals with jitter, so a fleet of nodes restarted together
// does not poll the server in lockstep.
//
// Usage:
//
//	p := poller.NewPoller(httpClient, 60*time.Second, 30*time.Second, logger)
//	p.SetScheduleCounter(sched)
//	go p.Run(ctx)
//	// ... on shutdown:
//	p.Shutdown(shutdownCtx)
package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/doughall/recurd/internal/client"
	"github.com/doughall/recurd/internal/version"
)

// Poller manages the periodic polling loop for server communication.
type Poller struct {
	client             *client.Client
	baseInterval       time.Duration
	jitter             time.Duration
	logger             *slog.Logger
	counter            ScheduleCounter
	applier            AssignmentApplier
	heartbeatPublisher HeartbeatPublisher

	// Synchronization for graceful shutdown
	wg      sync.WaitGroup
	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// ScheduleCounter reports how many schedules the node tracks.
type ScheduleCounter interface {
	Tracked(ctx context.Context) (int, error)
}

// AssignmentApplier applies one schedule assignment. A returned error leaves
// the assignment unacknowledged so it is fetched again.
type AssignmentApplier interface {
	Apply(ctx context.Context, taskID, action string, doc json.RawMessage) error
}

// HeartbeatPublisher defines the interface for publishing heartbeats via NATS.
type HeartbeatPublisher interface {
	PublishHeartbeat(version string, schedules int) error
	IsConnected() bool
}

// NewPoller creates a new Poller. The actual poll interval is
// interval + random(0, jitter).
func NewPoller(c *client.Client, interval, jitter time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		client:       c,
		baseInterval: interval,
		jitter:       jitter,
		logger:       logger.With(slog.String("component", "poller")),
	}
}

// SetScheduleCounter sets the source of the schedule count in heartbeats.
func (p *Poller) SetScheduleCounter(counter ScheduleCounter) {
	p.counter = counter
}

// SetAssignmentApplier enables pulling assignments over HTTP.
func (p *Poller) SetAssignmentApplier(applier AssignmentApplier) {
	p.applier = applier
}

// SetHeartbeatPublisher sets the NATS publisher for sending heartbeats.
// When set and connected, heartbeats will be sent via NATS instead of HTTP.
func (p *Poller) SetHeartbeatPublisher(publisher HeartbeatPublisher) {
	p.heartbeatPublisher = publisher
}

// Run starts the polling loop and blocks until ctx is cancelled. The first
// poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	internalCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.Info("poller starting",
		slog.Duration("interval", p.baseInterval),
		slog.Duration("jitter", p.jitter),
	)

	p.doPoll(internalCtx)

	for {
		interval := p.nextInterval()
		p.logger.Debug("waiting for next poll",
			slog.Duration("interval", interval),
		)

		timer := time.NewTimer(interval)
		select {
		case <-internalCtx.Done():
			timer.Stop()
			p.logger.Info("poller stopped")
			return
		case <-timer.C:
			p.doPoll(internalCtx)
		}
	}
}

func (p *Poller) nextInterval() time.Duration {
	if p.jitter <= 0 {
		return p.baseInterval
	}
	return p.baseInterval + rand.N(p.jitter)
}

// doPoll performs a single poll cycle.
func (p *Poller) doPoll(ctx context.Context) {
	p.wg.Add(1)
	defer p.wg.Done()

	if ctx.Err() != nil {
		return
	}

	p.sendHeartbeat(ctx)

	if p.applier != nil {
		if n := p.ProcessPendingAssignments(ctx); n > 0 {
			p.logger.Info("assignments applied", slog.Int("count", n))
		}
	}
}

func (p *Poller) sendHeartbeat(ctx context.Context) {
	schedules := 0
	if p.counter != nil {
		n, err := p.counter.Tracked(ctx)
		if err != nil {
			p.logger.Warn("failed to count schedules", slog.String("error", err.Error()))
		}
		schedules = n
	}

	var err error
	transport := "http"
	if p.heartbeatPublisher != nil && p.heartbeatPublisher.IsConnected() {
		transport = "nats"
		err = p.heartbeatPublisher.PublishHeartbeat(version.Version, schedules)
	} else {
		err = p.client.SendHeartbeat(ctx, schedules)
	}

	if err != nil {
		// Transient errors are expected; keep polling.
		p.logger.Error("heartbeat failed",
			slog.String("transport", transport),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("heartbeat sent successfully",
		slog.String("transport", transport),
	)
}

// ProcessPendingAssignments fetches, applies and acknowledges pending
// assignments in server order. It stops at the first assignment that fails
// to apply so later changes for the same task are not applied out of order.
func (p *Poller) ProcessPendingAssignments(ctx context.Context) int {
	pending, err := p.client.FetchAssignments(ctx)
	if err != nil {
		p.logger.Warn("failed to fetch assignments", slog.String("error", err.Error()))
		return 0
	}

	applied := 0
	for _, a := range pending {
		if err := p.applier.Apply(ctx, a.TaskID, a.Action, a.Schedule); err != nil {
			p.logger.Error("failed to apply assignment",
				slog.String("assignment_id", a.ID),
				slog.String("task_id", a.TaskID),
				slog.String("error", err.Error()),
			)
			break
		}
		if err := p.client.AckAssignment(ctx, a.ID); err != nil {
			p.logger.Warn("failed to acknowledge assignment",
				slog.String("assignment_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
		applied++
	}
	return applied
}

// Shutdown stops the poller and waits for in-flight work to complete.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.logger.Info("poller shutting down")

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("poller shutdown complete")
		return nil
	case <-ctx.Done():
		p.logger.Warn("poller shutdown timed out, some work may be incomplete")
		return ctx.Err()
	}
}

// IsHealthy returns true while the polling loop is running.
func (p *Poller) IsHealthy() bool {
	return p.running.Load()
}
