package events

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketAssigned      EventType = "ticket_assigned"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketCommentAdded  EventType = "ticket_comment_added"
	EventTicketEscalated     EventType = "ticket_escalated"
	EventTicketSLAApplied    EventType = "ticket_sla_applied"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   domain.ActorType `json:"type"`
	UserID *string          `json:"user_id,omitempty"`
}

// Event represents a domain event emitted after a lifecycle operation commits.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	TicketID     string    `json:"ticket_id"`
	TicketNumber string    `json:"ticket_number,omitempty"`
	Actor        Actor     `json:"actor"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title       string                `json:"title"`
	CustomerID  string                `json:"customer_id"`
	QueueID     *string               `json:"queue_id,omitempty"`
	Priority    domain.TicketPriority `json:"priority"`
	Source      domain.TicketSource   `json:"source"`
	SLAPolicyID *string               `json:"sla_policy_id,omitempty"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	OldAssigneeID *string             `json:"old_assignee_id,omitempty"`
	AssigneeID    *string             `json:"assignee_id,omitempty"`
	QueueID       *string             `json:"queue_id,omitempty"`
	Status        domain.TicketStatus `json:"status"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketCommentAddedPayload payload.
type TicketCommentAddedPayload struct {
	CommentID   string `json:"comment_id"`
	AuthorID    string `json:"author_id"`
	IsInternal  bool   `json:"is_internal"`
	BodyPreview string `json:"body_preview"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	OldPriority   domain.TicketPriority `json:"old_priority"`
	NewPriority   domain.TicketPriority `json:"new_priority"`
	OldStatus     domain.TicketStatus   `json:"old_status"`
	ResolutionDue time.Time             `json:"resolution_due"`
}

// TicketSLAAppliedPayload payload.
type TicketSLAAppliedPayload struct {
	SLAPolicyID   string    `json:"sla_policy_id"`
	ResponseDue   time.Time `json:"response_due"`
	ResolutionDue time.Time `json:"resolution_due"`
}
