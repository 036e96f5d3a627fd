// Package nats message types for NATS communication.
//
// Defines the message envelope and payload structures exchanged between the
// control plane and recurd nodes.
package nats

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope types.
const (
	TypeScheduleAssignment = "schedule_assignment"
	TypeOccurrenceDue      = "occurrence_due"
	TypeHeartbeat          = "heartbeat"
)

// Schedule assignment actions.
const (
	ActionUpsert = "upsert"
	ActionDelete = "delete"
)

// MessageEnvelope wraps all NATS messages with type information.
type MessageEnvelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// ScheduleMessage assigns a schedule to a task or withdraws it. Schedule
// holds a recurrence document and is omitted for deletes.
type ScheduleMessage struct {
	TaskID   string          `json:"taskId"`
	Action   string          `json:"action"`
	Schedule json.RawMessage `json:"schedule,omitempty"`
}

// OccurrenceDueMessage is published once per due occurrence.
type OccurrenceDueMessage struct {
	EventID   string `json:"eventId"`
	TaskID    string `json:"taskId"`
	DueAt     string `json:"dueAt"`
	EmittedAt string `json:"emittedAt"`
	NodeID    string `json:"nodeId"`
}

// HeartbeatMessage is published for presence detection.
type HeartbeatMessage struct {
	Online    bool   `json:"online"`
	Version   string `json:"version,omitempty"`
	Schedules int    `json:"schedules"`
	Timestamp string `json:"timestamp"`
}

// NewEnvelope marshals payload into an envelope stamped with the current
// time.
func NewEnvelope(msgType string, payload any) (MessageEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return MessageEnvelope{}, fmt.Errorf("marshal payload: %w", err)
	}
	return MessageEnvelope{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Subject layout. Tenants and nodes are single subject tokens.

// ScheduleSubject addresses assignments for one node.
func ScheduleSubject(tenantID, nodeID string) string {
	return fmt.Sprintf("recurd.%s.schedules.%s", tenantID, nodeID)
}

// BroadcastScheduleSubject addresses assignments for every node of a tenant.
func BroadcastScheduleSubject(tenantID string) string {
	return fmt.Sprintf("recurd.%s.schedules.all", tenantID)
}

// DueSubject carries occurrence_due events from one node.
func DueSubject(tenantID, nodeID string) string {
	return fmt.Sprintf("recurd.%s.due.%s", tenantID, nodeID)
}

// StatusSubject carries heartbeats from one node.
func StatusSubject(tenantID, nodeID string) string {
	return fmt.Sprintf("recurd.%s.status.%s", tenantID, nodeID)
}
