package domain

import "time"

// SLAPolicy maps a priority level to response and resolution budgets in hours.
type SLAPolicy struct {
	ID                  string
	Name                string
	Priority            TicketPriority
	ResponseTimeHours   int
	ResolutionTimeHours int
	CreatedAt           time.Time
}

// DueDates computes both deadlines anchored at appliedAt.
func (p SLAPolicy) DueDates(appliedAt time.Time) (response, resolution time.Time) {
	response = appliedAt.Add(time.Duration(p.ResponseTimeHours) * time.Hour)
	resolution = appliedAt.Add(time.Duration(p.ResolutionTimeHours) * time.Hour)
	return response, resolution
}
