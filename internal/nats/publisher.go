package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/doughall/recurd/internal/events"
)

var (
	errNotConnected         = errors.New("not connected")
	errJetStreamUnavailable = errors.New("jetstream not available")
)

// Publisher sends due events and heartbeats for a node. It implements
// events.Publisher.
type Publisher struct {
	client *Client
	logger *slog.Logger
}

// NewPublisher creates a Publisher on top of a connected Client.
func NewPublisher(client *Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger.With(slog.String("component", "nats_publisher")),
	}
}

// PublishDueEvents publishes one occurrence_due message per event. The event
// ID is the JetStream message ID, so a batch retried after a partial failure
// is deduplicated by the server within its duplicate window.
func (p *Publisher) PublishDueEvents(ctx context.Context, evs []*events.DueEvent) error {
	js := p.client.JetStream()
	if js == nil {
		return errJetStreamUnavailable
	}
	subject := DueSubject(p.client.TenantID(), p.client.NodeID())

	duplicates := 0
	for _, e := range evs {
		data, err := encode(TypeOccurrenceDue, OccurrenceDueFromEvent(e, p.client.NodeID()))
		if err != nil {
			return err
		}
		ack, err := js.Publish(ctx, subject, data, jetstream.WithMsgID(e.ID.String()))
		if err != nil {
			return fmt.Errorf("publish event %s: %w", e.ID, err)
		}
		if ack.Duplicate {
			duplicates++
		}
	}

	p.logger.Debug("published due events",
		slog.String("subject", subject),
		slog.Int("count", len(evs)),
		slog.Int("duplicates", duplicates),
	)
	return nil
}

// OccurrenceDueFromEvent converts a queued event to its wire form.
func OccurrenceDueFromEvent(e *events.DueEvent, nodeID string) OccurrenceDueMessage {
	return OccurrenceDueMessage{
		EventID:   e.ID.String(),
		TaskID:    e.TaskID,
		DueAt:     e.DueAt.UTC().Format(time.RFC3339Nano),
		EmittedAt: e.EmittedAt.UTC().Format(time.RFC3339Nano),
		NodeID:    nodeID,
	}
}

// PublishHeartbeat announces presence over core NATS. Heartbeats are
// ephemeral, so a lost one is simply replaced by the next.
func (p *Publisher) PublishHeartbeat(version string, schedules int) error {
	nc := p.client.Connection()
	if nc == nil {
		return errNotConnected
	}
	data, err := encode(TypeHeartbeat, HeartbeatMessage{
		Online:    true,
		Version:   version,
		Schedules: schedules,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := nc.Publish(StatusSubject(p.client.TenantID(), p.client.NodeID()), data); err != nil {
		return fmt.Errorf("publish heartbeat: %w", err)
	}
	return nil
}

func encode(msgType string, payload any) ([]byte, error) {
	env, err := NewEnvelope(msgType, payload)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return data, nil
}

// Flush waits until the server has processed all buffered messages.
func (p *Publisher) Flush() error {
	nc := p.client.Connection()
	if nc == nil {
		return errNotConnected
	}
	return nc.Flush()
}

// IsConnected returns whether the publisher can send messages.
func (p *Publisher) IsConnected() bool {
	return p.client.IsConnected()
}
