package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// RunEscalationSweep bumps the priority of every active ticket whose resolution deadline has
// passed and marks it Escalated. It returns how many tickets were changed. Tickets already at
// Critical are left out of the selection so they cannot crowd a batch. A failure on one ticket
// is logged and the sweep moves on to the next candidate.
func (s *LifecycleService) RunEscalationSweep(ctx context.Context) (int, error) {
	if s.sweepLock != nil {
		release, ok, err := s.sweepLock.Acquire(ctx)
		switch {
		case err != nil:
			s.logger.Warn("sweep lock unavailable; sweeping without it", zap.Error(err))
		case !ok:
			s.logger.Info("escalation sweep already running elsewhere; skipping")
			return 0, nil
		default:
			defer release()
		}
	}

	now := s.now()
	candidates, err := s.store.Repositories().Tickets.ListEscalationCandidates(ctx, repository.EscalationFilter{
		Statuses:      domain.EscalatableStatuses,
		Priorities:    domain.EscalatablePriorities,
		OverdueBefore: now,
		Limit:         s.sweepBatch,
	})
	if err != nil {
		s.metrics.RecordOperation("escalation_sweep", "error")
		return 0, apperrors.MapStoreError(err, "ticket", nil)
	}

	escalated := 0
	for i := range candidates {
		candidate := &candidates[i]
		event, err := s.escalateTicket(ctx, candidate.ID, now)
		if err != nil {
			s.metrics.RecordOperation("escalate_ticket", "error")
			s.logger.Warn("escalation failed; continuing sweep",
				zap.String("ticket_id", candidate.ID),
				zap.String("ticket_number", candidate.TicketNumber),
				zap.Error(err))
			continue
		}
		if event == nil {
			continue
		}
		escalated++
		s.publishEvent(ctx, *event)
	}

	s.metrics.RecordOperation("escalation_sweep", "ok")
	s.metrics.RecordEscalations(escalated)
	s.logger.Info("escalation sweep finished",
		zap.Int("scanned", len(candidates)),
		zap.Int("escalated", escalated))
	return escalated, nil
}

// escalateTicket re-reads the ticket under a row lock and escalates it when it still
// qualifies. A nil event means nothing changed.
func (s *LifecycleService) escalateTicket(ctx context.Context, ticketID string, now time.Time) (*events.Event, error) {
	var event *events.Event
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		if !ticket.Status.Escalatable() || !ticket.ResolutionOverdue(now) {
			return nil
		}
		oldPriority, oldStatus := ticket.Priority, ticket.Status
		newPriority := oldPriority.Escalate()
		if newPriority == oldPriority {
			return nil
		}

		ticket.Priority = newPriority
		ticket.Status = domain.TicketStatusEscalated
		ticket.UpdatedAt = now
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		oldValue, newValue := string(oldPriority), string(newPriority)
		if err := s.appendHistory(ctx, repos, ticket.ID, systemActor(), domain.ChangeTypeEscalated, &oldValue, &newValue, now); err != nil {
			return err
		}
		event = &events.Event{
			Type:         events.EventTicketEscalated,
			TicketID:     ticket.ID,
			TicketNumber: ticket.TicketNumber,
			Actor:        eventActor(systemActor()),
			Payload: events.TicketEscalatedPayload{
				OldPriority:   oldPriority,
				NewPriority:   newPriority,
				OldStatus:     oldStatus,
				ResolutionDue: *ticket.ResolutionDue,
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}
