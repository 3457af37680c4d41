// Package events defines the messages stride exchanges over the event bus.
package events

import (
	"time"

	"github.com/dukex/stride/pkg/models"
)

type EventType string

const Topic = "stride.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle, published by the engine once a run reaches a terminal status.
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"
	WorkflowExecutionCancelledEvent EventType = "workflow.execution.cancelled"

	// Outbox, consumed by the delivery side of email and notification actions.
	EmailRequestedEvent        EventType = "outbox.email.requested"
	NotificationRequestedEvent EventType = "outbox.notification.requested"

	// Inbound, lets other services trigger event workflows through the bus.
	EventTriggeredEvent EventType = "trigger.event"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowExecutionFinished carries a terminal execution snapshot. Its type is one of
// the three lifecycle types depending on the status.
type WorkflowExecutionFinished struct {
	BaseEvent

	Execution *models.WorkflowExecution `json:"execution"`
}

func (w WorkflowExecutionFinished) GetType() EventType {
	return w.Type
}

// ExecutionEventType maps a terminal status to its lifecycle event type.
func ExecutionEventType(status models.ExecutionStatus) EventType {
	switch status {
	case models.ExecutionStatusFailed:
		return WorkflowExecutionFailedEvent
	case models.ExecutionStatusCancelled:
		return WorkflowExecutionCancelledEvent
	default:
		return WorkflowExecutionCompletedEvent
	}
}

type EmailRequested struct {
	BaseEvent

	ReceiptID string         `json:"receipt_id"`
	Recipient string         `json:"recipient"`
	Template  string         `json:"template"`
	Subject   string         `json:"subject,omitempty"`
	Body      string         `json:"body,omitempty"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (e EmailRequested) GetType() EventType {
	return EmailRequestedEvent
}

type NotificationRequested struct {
	BaseEvent

	ReceiptID string `json:"receipt_id"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	Title     string `json:"title"`
	Message   string `json:"message"`
}

func (n NotificationRequested) GetType() EventType {
	return NotificationRequestedEvent
}

type EventTriggered struct {
	BaseEvent

	EventType string              `json:"event_type"`
	EventData map[string]any      `json:"event_data,omitempty"`
	User      *models.UserContext `json:"user,omitempty"`
	Source    string              `json:"source,omitempty"`
}

func (e EventTriggered) GetType() EventType {
	return EventTriggeredEvent
}

// New returns an empty event of the given type for decoding, or nil if the type is unknown.
func New(eventType EventType) any {
	switch eventType {
	case WorkflowExecutionCompletedEvent, WorkflowExecutionFailedEvent, WorkflowExecutionCancelledEvent:
		return &WorkflowExecutionFinished{}
	case EmailRequestedEvent:
		return &EmailRequested{}
	case NotificationRequestedEvent:
		return &NotificationRequested{}
	case EventTriggeredEvent:
		return &EventTriggered{}
	default:
		return nil
	}
}
