package repository

import "context"

// TicketNumberSequencer draws ticket numbers from the ticket_number_seq Postgres sequence.
// Sequence values are never handed out twice, even when the calling transaction rolls back.
type TicketNumberSequencer struct {
	db DBTX
}

// NewTicketNumberSequencer builds the sequencer.
func NewTicketNumberSequencer(db DBTX) *TicketNumberSequencer {
	return &TicketNumberSequencer{db: db}
}

// Next returns nextval of the sequence.
func (s *TicketNumberSequencer) Next(ctx context.Context) (int64, error) {
	var value int64
	err := s.db.QueryRow(ctx, `SELECT nextval('ticket_number_seq')`).Scan(&value)
	return value, err
}
