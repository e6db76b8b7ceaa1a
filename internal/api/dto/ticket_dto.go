package dto

import (
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title" validate:"required,max=255"`
	Description string                `json:"description"`
	CustomerID  string                `json:"customer_id" validate:"required,uuid"`
	CreatedByID string                `json:"created_by_id" validate:"required,uuid"`
	QueueID     *string               `json:"queue_id" validate:"omitempty,uuid"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=Low Medium High Critical"`
	Source      domain.TicketSource   `json:"source" validate:"omitempty,oneof=Email Phone Web Portal Chat API"`
	SLAPolicyID *string               `json:"sla_policy_id" validate:"omitempty,uuid"`
}

// AssignTicketRequest payload. Both targets may be null to clear the assignment.
type AssignTicketRequest struct {
	AssigneeID   *string `json:"assignee_id" validate:"omitempty,uuid"`
	QueueID      *string `json:"queue_id" validate:"omitempty,uuid"`
	ActingUserID string  `json:"acting_user_id" validate:"required"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status       domain.TicketStatus `json:"status" validate:"required"`
	ActingUserID string              `json:"acting_user_id" validate:"required"`
}

// AddCommentRequest payload.
type AddCommentRequest struct {
	Body       string `json:"body" validate:"required"`
	AuthorID   string `json:"author_id" validate:"required,uuid"`
	IsInternal bool   `json:"is_internal"`
}

// AttachSLAPolicyRequest payload.
type AttachSLAPolicyRequest struct {
	SLAPolicyID  string `json:"sla_policy_id" validate:"required,uuid"`
	ActingUserID string `json:"acting_user_id" validate:"required"`
}

// CreatedResponse carries the id of a new resource.
type CreatedResponse struct {
	ID string `json:"id"`
}

// TicketResponse is the full ticket state with display names.
type TicketResponse struct {
	ID            string                `json:"id"`
	TicketNumber  string                `json:"ticket_number"`
	Title         string                `json:"title"`
	Description   string                `json:"description"`
	CustomerID    string                `json:"customer_id"`
	CustomerName  string                `json:"customer_name"`
	CreatedByID   string                `json:"created_by_id"`
	CreatorName   string                `json:"creator_name"`
	AssigneeID    *string               `json:"assignee_id"`
	AssigneeName  *string               `json:"assignee_name"`
	QueueID       *string               `json:"queue_id"`
	QueueName     *string               `json:"queue_name"`
	Priority      domain.TicketPriority `json:"priority"`
	Status        domain.TicketStatus   `json:"status"`
	Source        domain.TicketSource   `json:"source"`
	SLAPolicyID   *string               `json:"sla_policy_id"`
	ResponseDue   *time.Time            `json:"response_due"`
	ResolutionDue *time.Time            `json:"resolution_due"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// TicketHistoryResponse is one audit trail entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.ActorType        `json:"changed_by_type"`
	ChangedByID   *string                 `json:"changed_by_id"`
	OldValue      *string                 `json:"old_value"`
	NewValue      *string                 `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

// TicketCommentResponse is one comment.
type TicketCommentResponse struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"author_id"`
	Body       string    `json:"body"`
	IsInternal bool      `json:"is_internal"`
	CreatedAt  time.Time `json:"created_at"`
}

// SweepResponse reports an escalation sweep.
type SweepResponse struct {
	Escalated int `json:"escalated"`
}
