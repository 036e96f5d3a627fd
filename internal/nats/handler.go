// Package nats handler applies schedule assignments received from the server.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/doughall/recurd/internal/recurrence"
	"github.com/doughall/recurd/internal/scheduler"
	"github.com/doughall/recurd/internal/store"
)

// Assigner stores and withdraws schedules. *scheduler.Scheduler implements
// it.
type Assigner interface {
	Assign(ctx context.Context, taskID string, sched recurrence.Schedule) (*store.Record, error)
	Remove(ctx context.Context, taskID string) error
}

// Handler processes incoming NATS messages.
type Handler struct {
	assigner Assigner
	logger   *slog.Logger
}

// NewHandler creates a new NATS message handler.
func NewHandler(assigner Assigner, logger *slog.Logger) *Handler {
	return &Handler{
		assigner: assigner,
		logger:   logger,
	}
}

// HandleSchedule applies an upsert or delete. Malformed or invalid rules are
// logged and acknowledged, since redelivery cannot fix them; storage
// failures are returned so the message is retried.
func (h *Handler) HandleSchedule(ctx context.Context, msg *ScheduleMessage) error {
	return h.Apply(ctx, msg.TaskID, msg.Action, msg.Schedule)
}

// Apply is HandleSchedule without the NATS message type. The HTTP
// assignment poller uses it for the same payloads.
func (h *Handler) Apply(ctx context.Context, taskID, action string, doc json.RawMessage) error {
	logger := h.logger.With(
		slog.String("task_id", taskID),
		slog.String("action", action),
	)

	if taskID == "" {
		logger.Warn("schedule_assignment without task id")
		return nil
	}

	switch action {
	case ActionUpsert:
		return h.handleUpsert(ctx, taskID, doc, logger)
	case ActionDelete:
		return h.assigner.Remove(ctx, taskID)
	default:
		logger.Warn("unknown schedule_assignment action")
		return nil
	}
}

func (h *Handler) handleUpsert(ctx context.Context, taskID string, doc json.RawMessage, logger *slog.Logger) error {
	var sched recurrence.Schedule
	if err := json.Unmarshal(doc, &sched); err != nil {
		logger.Warn("failed to parse schedule", slog.String("error", err.Error()))
		return nil
	}

	rec, err := h.assigner.Assign(ctx, taskID, sched)
	switch {
	case err == nil:
		logger.Info("schedule applied", slog.Time("next_due_at", rec.NextDueAt))
		return nil
	case errors.Is(err, scheduler.ErrNoOccurrence):
		// A rule that can no longer fire replaces any earlier one.
		logger.Info("schedule has no future occurrence, removing")
		return h.assigner.Remove(ctx, taskID)
	case isRuleError(err):
		logger.Warn("rejected invalid schedule", slog.String("error", err.Error()))
		return nil
	default:
		return err
	}
}

func isRuleError(err error) bool {
	return errors.Is(err, recurrence.ErrInvalidFrequency) ||
		errors.Is(err, recurrence.ErrInvalidAnchor) ||
		errors.Is(err, recurrence.ErrInvalidOrdinalWeekday) ||
		errors.Is(err, recurrence.ErrOutOfRange) ||
		errors.Is(err, recurrence.ErrCronEvaluation)
}
