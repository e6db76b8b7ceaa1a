package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew        TicketStatus = "New"
	TicketStatusOpen       TicketStatus = "Open"
	TicketStatusInProgress TicketStatus = "In Progress"
	TicketStatusOnHold     TicketStatus = "On Hold"
	TicketStatusResolved   TicketStatus = "Resolved"
	TicketStatusClosed     TicketStatus = "Closed"
	TicketStatusEscalated  TicketStatus = "Escalated"
)

// TicketStatuses lists every status in declaration order.
var TicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusOnHold,
	TicketStatusResolved,
	TicketStatusClosed,
	TicketStatusEscalated,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Escalatable reports whether the SLA sweep may pick up a ticket in this status.
func (s TicketStatus) Escalatable() bool {
	switch s {
	case TicketStatusNew, TicketStatusOpen, TicketStatusInProgress, TicketStatusOnHold:
		return true
	default:
		return false
	}
}

// EscalatableStatuses are the statuses selected by the SLA sweep.
var EscalatableStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusOnHold,
}

// TicketSource records the channel a ticket arrived through.
type TicketSource string

const (
	TicketSourceEmail  TicketSource = "Email"
	TicketSourcePhone  TicketSource = "Phone"
	TicketSourceWeb    TicketSource = "Web"
	TicketSourcePortal TicketSource = "Portal"
	TicketSourceChat   TicketSource = "Chat"
	TicketSourceAPI    TicketSource = "API"
)

// Valid reports whether s is a known source.
func (s TicketSource) Valid() bool {
	switch s {
	case TicketSourceEmail, TicketSourcePhone, TicketSourceWeb, TicketSourcePortal, TicketSourceChat, TicketSourceAPI:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID            string
	TicketNumber  string
	Title         string
	Description   string
	CustomerID    string
	CreatedByID   string
	AssigneeID    *string
	QueueID       *string
	Priority      TicketPriority
	Status        TicketStatus
	Source        TicketSource
	SLAPolicyID   *string
	ResponseDue   *time.Time
	ResolutionDue *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ResolutionOverdue reports whether the resolution deadline is strictly before now.
func (t *Ticket) ResolutionOverdue(now time.Time) bool {
	return t.ResolutionDue != nil && t.ResolutionDue.Before(now)
}
