// Package nats connects a recurd node to the control plane over NATS.
//
// Schedule assignments arrive through a durable JetStream consumer so none
// are lost while the node is offline. Due occurrences go back out through
// JetStream with per-event message IDs, letting the server deduplicate
// redeliveries. Heartbeats use core NATS.
//
// Usage:
//
//	client := nats.NewClient(cfg, logger)
//	if err := client.Connect(ctx); err != nil { ... }
//	client.SetHandler(nats.NewHandler(sched, logger))
//	go client.Run(ctx)
//	defer client.Close()
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/nats-io/nkeys"
)

// ScheduleStream is the JetStream stream holding assignment messages.
const ScheduleStream = "SCHEDULES"

// Redelivery settings for assignment messages.
const (
	ackWait      = 30 * time.Second
	maxDeliver   = 5
	retryDelay   = 5 * time.Second
	pullBatch    = 10
	reconnectBuf = 5 * 1024 * 1024
)

// ErrNoHandler is returned when a message arrives before SetHandler.
var ErrNoHandler = errors.New("no message handler set")

// Config holds NATS connection configuration.
type Config struct {
	Servers  string // Comma-separated list of NATS server URLs
	NKeySeed string // NKey seed for authentication (starts with SU)
	TenantID string
	NodeID   string
}

// MessageHandler processes incoming messages from the server.
type MessageHandler interface {
	HandleSchedule(ctx context.Context, msg *ScheduleMessage) error
}

// Client manages the NATS connection for a recurd node.
type Client struct {
	config  Config
	logger  *slog.Logger
	mu      sync.RWMutex
	nc      *nats.Conn
	js      jetstream.JetStream
	handler MessageHandler
	cancel  context.CancelFunc
}

// NewClient creates a new NATS client with the given configuration.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger.With(slog.String("component", "nats")),
	}
}

// SetHandler sets the message handler for incoming messages.
func (c *Client) SetHandler(handler MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Connect authenticates with the node's NKey and opens JetStream.
func (c *Client) Connect(ctx context.Context) error {
	kp, err := nkeys.FromSeed([]byte(c.config.NKeySeed))
	if err != nil {
		return fmt.Errorf("invalid nkey seed: %w", err)
	}
	pubKey, err := kp.PublicKey()
	if err != nil {
		return fmt.Errorf("derive public key: %w", err)
	}

	nc, err := nats.Connect(c.config.Servers, c.options(pubKey, kp)...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("jetstream init: %w", err)
	}

	c.mu.Lock()
	c.nc, c.js = nc, js
	c.mu.Unlock()

	c.logger.Info("connected",
		slog.String("server", nc.ConnectedUrl()),
		slog.String("node_id", c.config.NodeID),
	)
	return nil
}

func (c *Client) options(pubKey string, kp nkeys.KeyPair) []nats.Option {
	return []nats.Option{
		nats.Name("recurd-" + c.config.NodeID),
		nats.Nkey(pubKey, kp.Sign),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.ReconnectBufSize(reconnectBuf),
		nats.PingInterval(30 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("disconnected", slog.String("error", err.Error()))
				return
			}
			c.logger.Info("disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("reconnected", slog.String("server", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{slog.String("error", err.Error())}
			if sub != nil {
				attrs = append(attrs, slog.String("subject", sub.Subject))
			}
			c.logger.Error("async error", attrs...)
		}),
	}
}

// Run consumes assignment messages until ctx is cancelled or Stop is
// called.
func (c *Client) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	consumer, err := c.ensureConsumer(runCtx)
	if err != nil {
		c.logger.Error("failed to set up assignment consumer", slog.String("error", err.Error()))
		return
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.deliver(runCtx, msg)
	}, jetstream.PullMaxMessages(pullBatch))
	if err != nil {
		c.logger.Error("failed to start consuming", slog.String("error", err.Error()))
		return
	}
	c.logger.Info("consuming schedule assignments")

	<-runCtx.Done()
	cc.Stop()
	c.logger.Info("assignment consumer stopped")
}

// ensureConsumer creates or updates the node's durable consumer on the
// schedules stream, filtered to its own and the broadcast subject.
func (c *Client) ensureConsumer(ctx context.Context) (jetstream.Consumer, error) {
	js := c.JetStream()
	if js == nil {
		return nil, errJetStreamUnavailable
	}
	stream, err := js.Stream(ctx, ScheduleStream)
	if err != nil {
		return nil, fmt.Errorf("get stream %s: %w", ScheduleStream, err)
	}

	name := "node-" + c.config.NodeID
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable: name,
		FilterSubjects: []string{
			ScheduleSubject(c.config.TenantID, c.config.NodeID),
			BroadcastScheduleSubject(c.config.TenantID),
		},
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", name, err)
	}
	return consumer, nil
}

// deliver acks handled messages and asks for a delayed redelivery
// otherwise. MaxAckPending of 1 keeps assignments for a task in order.
func (c *Client) deliver(ctx context.Context, msg jetstream.Msg) {
	if err := c.processMessage(ctx, msg.Data()); err != nil {
		c.logger.Error("assignment failed, will retry",
			slog.String("subject", msg.Subject()),
			slog.String("error", err.Error()),
		)
		if nakErr := msg.NakWithDelay(retryDelay); nakErr != nil {
			c.logger.Warn("nak failed", slog.String("error", nakErr.Error()))
		}
		return
	}
	if err := msg.Ack(); err != nil {
		c.logger.Warn("ack failed", slog.String("error", err.Error()))
	}
}

// processMessage decodes an envelope and routes it to the handler. A
// returned error causes redelivery; unknown types are dropped.
func (c *Client) processMessage(ctx context.Context, data []byte) error {
	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()
	if handler == nil {
		return ErrNoHandler
	}

	var env MessageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case TypeScheduleAssignment:
		var msg ScheduleMessage
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return fmt.Errorf("unmarshal schedule: %w", err)
		}
		return handler.HandleSchedule(ctx, &msg)
	default:
		c.logger.Warn("ignoring unknown message type", slog.String("type", env.Type))
		return nil
	}
}

// IsConnected returns whether the connection is currently up.
func (c *Client) IsConnected() bool {
	nc := c.Connection()
	return nc != nil && nc.IsConnected()
}

// Stop ends Run without closing the connection.
func (c *Client) Stop() {
	c.mu.RLock()
	cancel := c.cancel
	c.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Close stops consuming and drains the connection so pending publishes are
// flushed.
func (c *Client) Close() error {
	c.Stop()

	c.mu.Lock()
	nc := c.nc
	c.nc, c.js = nil, nil
	c.mu.Unlock()

	if nc == nil {
		return nil
	}
	return nc.Drain()
}

// Shutdown implements shutdown.Shutdowner.
func (c *Client) Shutdown(context.Context) error {
	return c.Close()
}

// Connection returns the underlying NATS connection.
func (c *Client) Connection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nc
}

// JetStream returns the JetStream handle.
func (c *Client) JetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// TenantID returns the configured tenant ID.
func (c *Client) TenantID() string { return c.config.TenantID }

// NodeID returns the configured node ID.
func (c *Client) NodeID() string { return c.config.NodeID }
