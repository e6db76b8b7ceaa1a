package domain

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "Low"
	TicketPriorityMedium   TicketPriority = "Medium"
	TicketPriorityHigh     TicketPriority = "High"
	TicketPriorityCritical TicketPriority = "Critical"
)

// priorityOrder is the escalation ladder, lowest first.
var priorityOrder = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityCritical,
}

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	return p.rank() >= 0
}

func (p TicketPriority) rank() int {
	for i, candidate := range priorityOrder {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Escalate returns the next priority up the ladder. Critical is returned unchanged.
// Unknown priorities are returned unchanged as well.
func (p TicketPriority) Escalate() TicketPriority {
	r := p.rank()
	if r < 0 || r == len(priorityOrder)-1 {
		return p
	}
	return priorityOrder[r+1]
}

// EscalatablePriorities are the priorities the SLA sweep can still raise.
var EscalatablePriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
}
