package domain

import "time"

// TicketComment is a note attached to a ticket.
type TicketComment struct {
	ID         string
	TicketID   string
	AuthorID   string
	Body       string
	IsInternal bool
	CreatedAt  time.Time
}
