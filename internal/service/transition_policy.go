package service

import (
	"errors"
	"fmt"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TransitionPolicy decides whether a status change is allowed. A nil policy allows every change.
type TransitionPolicy func(from, to domain.TicketStatus) error

// ErrTransitionNotAllowed is returned by StrictTransitions.
var ErrTransitionNotAllowed = errors.New("status transition not allowed")

func (p TransitionPolicy) check(from, to domain.TicketStatus) error {
	if p == nil {
		return nil
	}
	if err := p(from, to); err != nil {
		return apperrors.NewTransitionRejected(string(from), string(to), err)
	}
	return nil
}

// PermissiveTransitions allows any status to follow any status.
func PermissiveTransitions(domain.TicketStatus, domain.TicketStatus) error {
	return nil
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusNew: {domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusOnHold,
		domain.TicketStatusResolved, domain.TicketStatusClosed, domain.TicketStatusEscalated},
	domain.TicketStatusOpen: {domain.TicketStatusInProgress, domain.TicketStatusOnHold, domain.TicketStatusResolved,
		domain.TicketStatusClosed, domain.TicketStatusEscalated},
	domain.TicketStatusInProgress: {domain.TicketStatusOpen, domain.TicketStatusOnHold, domain.TicketStatusResolved,
		domain.TicketStatusEscalated},
	domain.TicketStatusOnHold: {domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved,
		domain.TicketStatusEscalated},
	domain.TicketStatusEscalated: {domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusOnHold,
		domain.TicketStatusResolved},
	domain.TicketStatusResolved: {domain.TicketStatusClosed, domain.TicketStatusOpen},
	domain.TicketStatusClosed:   {domain.TicketStatusOpen},
}

// StrictTransitions only allows the edges in allowedTransitions. Re-entering the
// current status is always allowed. Closed tickets can only be reopened to Open.
func StrictTransitions(from, to domain.TicketStatus) error {
	if from == to {
		return nil
	}
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, from, to)
}
