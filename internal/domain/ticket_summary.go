package domain

// TicketSummary is the reporting projection of a ticket with resolved reference names.
type TicketSummary struct {
	Ticket
	CustomerName string
	CreatorName  string
	AssigneeName *string
	QueueName    *string
}
