package domain

import "time"

// ActorType distinguishes human actions from automated ones.
type ActorType string

const (
	ActorTypeUser   ActorType = "USER"
	ActorTypeSystem ActorType = "SYSTEM"
)

// SystemActorID is recorded for changes nobody initiated by hand.
const SystemActorID = "system"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeCreated      TicketChangeType = "CREATED"
	ChangeTypeAssigned     TicketChangeType = "ASSIGNED"
	ChangeTypeStatus       TicketChangeType = "STATUS_CHANGE"
	ChangeTypeCommentAdded TicketChangeType = "COMMENT_ADDED"
	ChangeTypeEscalated    TicketChangeType = "ESCALATED"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      *string
	NewValue      *string
	CreatedAt     time.Time
}
