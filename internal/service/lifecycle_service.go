package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// DefaultHistorySummaryLimit caps the comment text copied into COMMENT_ADDED history entries.
const DefaultHistorySummaryLimit = 200

// NumberGenerator allocates ticket numbers.
type NumberGenerator interface {
	Next(ctx context.Context) (string, error)
}

// SweepLocker guards the escalation sweep across service instances.
type SweepLocker interface {
	Acquire(ctx context.Context) (release func(), ok bool, err error)
}

// LifecycleService is the only writer of tickets, history entries and comments.
type LifecycleService struct {
	store        repository.UnitOfWork
	numbers      NumberGenerator
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	metrics      *observability.Metrics
	transitions  TransitionPolicy
	sweepLock    SweepLocker
	reopenClosed bool
	summaryLimit int
	sweepBatch   int
	now          func() time.Time
	newID        func() string
}

// LifecycleOptions tunes engine behavior.
type LifecycleOptions struct {
	// AssignReopensClosed forces Open on assignment even from Resolved or Closed.
	AssignReopensClosed bool
	HistorySummaryLimit int
	SweepBatchLimit     int
}

// DefaultLifecycleOptions mirrors the default configuration.
func DefaultLifecycleOptions() LifecycleOptions {
	return LifecycleOptions{
		AssignReopensClosed: true,
		HistorySummaryLimit: DefaultHistorySummaryLimit,
	}
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	Store       repository.UnitOfWork
	Numbers     NumberGenerator
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Transitions TransitionPolicy
	SweepLock   SweepLocker
	Options     LifecycleOptions
	Clock       func() time.Time
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	Title       string
	Description string
	CustomerID  string
	CreatedByID string
	QueueID     *string
	Priority    domain.TicketPriority
	Source      domain.TicketSource
	SLAPolicyID *string
}

// AssignTicketInput describes an assignment.
type AssignTicketInput struct {
	TicketID   string
	AssigneeID *string
	QueueID    *string
	ActingUser string
}

// AddCommentInput describes a new comment.
type AddCommentInput struct {
	TicketID   string
	AuthorID   string
	Body       string
	IsInternal bool
}

// NewLifecycleService constructs the service.
func NewLifecycleService(deps LifecycleDependencies) *LifecycleService {
	s := &LifecycleService{
		store:        deps.Store,
		numbers:      deps.Numbers,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		transitions:  deps.Transitions,
		sweepLock:    deps.SweepLock,
		reopenClosed: deps.Options.AssignReopensClosed,
		summaryLimit: deps.Options.HistorySummaryLimit,
		sweepBatch:   deps.Options.SweepBatchLimit,
		now:          deps.Clock,
		newID:        uuid.NewString,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.summaryLimit <= 0 {
		s.summaryLimit = DefaultHistorySummaryLimit
	}
	return s
}

// CreateTicket inserts a New ticket, its CREATED history entry and SLA deadlines in one transaction.
func (s *LifecycleService) CreateTicket(ctx context.Context, input CreateTicketInput) (string, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return "", apperrors.NewValidationError("title required", nil)
	}
	if strings.TrimSpace(input.CustomerID) == "" || strings.TrimSpace(input.CreatedByID) == "" {
		return "", apperrors.NewValidationError("customer and creator required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return "", apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	source := input.Source
	if source == "" {
		source = domain.TicketSourcePortal
	}
	if !source.Valid() {
		return "", apperrors.NewValidationError("invalid source", map[string]any{"source": source})
	}

	number, err := s.numbers.Next(ctx)
	if err != nil {
		s.metrics.RecordOperation("create_ticket", "error")
		return "", apperrors.NewInternalError(err)
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:           s.newID(),
		TicketNumber: number,
		Title:        title,
		Description:  strings.TrimSpace(input.Description),
		CustomerID:   input.CustomerID,
		CreatedByID:  input.CreatedByID,
		QueueID:      input.QueueID,
		Priority:     priority,
		Status:       domain.TicketStatusNew,
		Source:       source,
		SLAPolicyID:  input.SLAPolicyID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var sla *events.TicketSLAAppliedPayload
	err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		if err := repos.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		if err := s.appendHistory(ctx, repos, ticket.ID, userActor(input.CreatedByID), domain.ChangeTypeCreated, nil, &ticket.Title, now); err != nil {
			return err
		}
		applied, err := s.applySLADates(ctx, repos, ticket.ID, now)
		sla = applied
		return err
	})
	if err != nil {
		s.metrics.RecordOperation("create_ticket", "error")
		return "", apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_number": number})
	}
	s.metrics.RecordOperation("create_ticket", "ok")

	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketCreated,
		TicketID:     ticket.ID,
		TicketNumber: ticket.TicketNumber,
		Actor:        eventActor(userActor(input.CreatedByID)),
		Payload: events.TicketCreatedPayload{
			Title:       ticket.Title,
			CustomerID:  ticket.CustomerID,
			QueueID:     ticket.QueueID,
			Priority:    ticket.Priority,
			Source:      ticket.Source,
			SLAPolicyID: ticket.SLAPolicyID,
		},
	})
	if sla != nil {
		s.publishEvent(ctx, events.Event{
			Type:         events.EventTicketSLAApplied,
			TicketID:     ticket.ID,
			TicketNumber: ticket.TicketNumber,
			Actor:        eventActor(systemActor()),
			Payload:      *sla,
		})
	}
	return ticket.ID, nil
}

// ApplySLADates recomputes the ticket's deadlines from its SLA policy, anchored at the current time.
// A ticket without a policy, or whose policy no longer exists, is left untouched.
func (s *LifecycleService) ApplySLADates(ctx context.Context, ticketID string) error {
	var applied *events.TicketSLAAppliedPayload
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		var err error
		applied, err = s.applySLADates(ctx, repos, ticketID, s.now())
		return err
	})
	if err != nil {
		return apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if applied != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketSLAApplied,
			TicketID: ticketID,
			Actor:    eventActor(systemActor()),
			Payload:  *applied,
		})
	}
	return nil
}

// AttachSLAPolicy points the ticket at policyID and snapshots fresh deadlines from it.
func (s *LifecycleService) AttachSLAPolicy(ctx context.Context, ticketID, policyID, actingUser string) error {
	if strings.TrimSpace(policyID) == "" {
		return apperrors.NewValidationError("sla_policy_id required", nil)
	}
	if strings.TrimSpace(actingUser) == "" {
		return apperrors.NewValidationError("acting user required", nil)
	}
	var applied *events.TicketSLAAppliedPayload
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		if _, err := repos.Policies.GetByID(ctx, policyID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.NewStaleReference("sla policy does not exist", map[string]any{"sla_policy_id": policyID}, err)
			}
			return err
		}
		ticket, err := s.lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		now := s.now()
		ticket.SLAPolicyID = &policyID
		ticket.UpdatedAt = now
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		applied, err = s.applySLADates(ctx, repos, ticketID, now)
		return err
	})
	if err != nil {
		return apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	if applied != nil {
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketSLAApplied,
			TicketID: ticketID,
			Actor:    eventActor(userActor(actingUser)),
			Payload:  *applied,
		})
	}
	return nil
}

func (s *LifecycleService) applySLADates(ctx context.Context, repos repository.Repositories, ticketID string, now time.Time) (*events.TicketSLAAppliedPayload, error) {
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	if ticket.SLAPolicyID == nil {
		return nil, nil
	}
	policy, err := repos.Policies.GetByID(ctx, *ticket.SLAPolicyID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug("sla policy missing; skipping due dates",
				zap.String("ticket_id", ticketID),
				zap.String("sla_policy_id", *ticket.SLAPolicyID))
			return nil, nil
		}
		return nil, err
	}
	responseDue, resolutionDue := policy.DueDates(now)
	if err := repos.Tickets.SetSLADates(ctx, ticketID, responseDue, resolutionDue, now); err != nil {
		return nil, err
	}
	return &events.TicketSLAAppliedPayload{
		SLAPolicyID:   policy.ID,
		ResponseDue:   responseDue,
		ResolutionDue: resolutionDue,
	}, nil
}

// AssignTicket sets assignee and queue and moves the ticket to Open.
// The target user is not checked for existence or activity.
func (s *LifecycleService) AssignTicket(ctx context.Context, input AssignTicketInput) error {
	if strings.TrimSpace(input.ActingUser) == "" {
		return apperrors.NewValidationError("acting user required", nil)
	}
	var (
		oldAssignee *string
		updated     *domain.Ticket
	)
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		ticket, err := s.lockTicket(ctx, repos, input.TicketID)
		if err != nil {
			return err
		}
		now := s.now()
		oldAssignee = ticket.AssigneeID
		oldValue := describeAssignment(ticket.AssigneeID, ticket.QueueID)

		ticket.AssigneeID = input.AssigneeID
		ticket.QueueID = input.QueueID
		if s.reopenClosed || (ticket.Status != domain.TicketStatusResolved && ticket.Status != domain.TicketStatusClosed) {
			ticket.Status = domain.TicketStatusOpen
		}
		ticket.UpdatedAt = now
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		newValue := describeAssignment(ticket.AssigneeID, ticket.QueueID)
		updated = ticket
		return s.appendHistory(ctx, repos, ticket.ID, userActor(input.ActingUser), domain.ChangeTypeAssigned, oldValue, newValue, now)
	})
	if err != nil {
		s.metrics.RecordOperation("assign_ticket", "error")
		return apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": input.TicketID})
	}
	s.metrics.RecordOperation("assign_ticket", "ok")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketAssigned,
		TicketID:     updated.ID,
		TicketNumber: updated.TicketNumber,
		Actor:        eventActor(userActor(input.ActingUser)),
		Payload: events.TicketAssignedPayload{
			OldAssigneeID: oldAssignee,
			AssigneeID:    updated.AssigneeID,
			QueueID:       updated.QueueID,
			Status:        updated.Status,
		},
	})
	return nil
}

// ChangeStatus moves the ticket to newStatus. Same-status changes are recorded too.
func (s *LifecycleService) ChangeStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actingUser string) error {
	if !newStatus.Valid() {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}
	if strings.TrimSpace(actingUser) == "" {
		return apperrors.NewValidationError("acting user required", nil)
	}
	var (
		oldStatus domain.TicketStatus
		number    string
	)
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		ticket, err := s.lockTicket(ctx, repos, ticketID)
		if err != nil {
			return err
		}
		if err := s.transitions.check(ticket.Status, newStatus); err != nil {
			return err
		}
		now := s.now()
		oldStatus = ticket.Status
		number = ticket.TicketNumber
		ticket.Status = newStatus
		ticket.UpdatedAt = now
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		oldValue, newValue := string(oldStatus), string(newStatus)
		return s.appendHistory(ctx, repos, ticket.ID, userActor(actingUser), domain.ChangeTypeStatus, &oldValue, &newValue, now)
	})
	if err != nil {
		s.metrics.RecordOperation("change_status", "error")
		return apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	s.metrics.RecordOperation("change_status", "ok")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketStatusChanged,
		TicketID:     ticketID,
		TicketNumber: number,
		Actor:        eventActor(userActor(actingUser)),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: newStatus,
		},
	})
	return nil
}

// AddComment stores the full comment and a truncated COMMENT_ADDED history entry.
func (s *LifecycleService) AddComment(ctx context.Context, input AddCommentInput) (string, error) {
	if strings.TrimSpace(input.Body) == "" {
		return "", apperrors.NewValidationError("comment text required", nil)
	}
	if strings.TrimSpace(input.AuthorID) == "" {
		return "", apperrors.NewValidationError("author required", nil)
	}
	now := s.now()
	comment := &domain.TicketComment{
		ID:         s.newID(),
		TicketID:   input.TicketID,
		AuthorID:   input.AuthorID,
		Body:       input.Body,
		IsInternal: input.IsInternal,
		CreatedAt:  now,
	}
	var number string
	err := s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		ticket, err := s.lockTicket(ctx, repos, input.TicketID)
		if err != nil {
			return err
		}
		number = ticket.TicketNumber
		if err := repos.Comments.Create(ctx, comment); err != nil {
			return err
		}
		summary := truncateRunes(comment.Body, s.summaryLimit)
		return s.appendHistory(ctx, repos, ticket.ID, userActor(input.AuthorID), domain.ChangeTypeCommentAdded, nil, &summary, now)
	})
	if err != nil {
		s.metrics.RecordOperation("add_comment", "error")
		return "", apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": input.TicketID})
	}
	s.metrics.RecordOperation("add_comment", "ok")
	s.publishEvent(ctx, events.Event{
		Type:         events.EventTicketCommentAdded,
		TicketID:     input.TicketID,
		TicketNumber: number,
		Actor:        eventActor(userActor(input.AuthorID)),
		Payload: events.TicketCommentAddedPayload{
			CommentID:   comment.ID,
			AuthorID:    comment.AuthorID,
			IsInternal:  comment.IsInternal,
			BodyPreview: stringPreview(comment.Body, 120),
		},
	})
	return comment.ID, nil
}

// GetTicket returns the current ticket state.
func (s *LifecycleService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.Repositories().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket, nil
}

// GetTicketSummary returns the ticket joined with customer, creator, assignee and queue names.
func (s *LifecycleService) GetTicketSummary(ctx context.Context, ticketID string) (*domain.TicketSummary, error) {
	summary, err := s.store.Repositories().Tickets.GetSummary(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	return summary, nil
}

// ListHistory returns the ticket's audit trail in commit order.
func (s *LifecycleService) ListHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	repos := s.store.Repositories()
	if _, err := repos.Tickets.GetByID(ctx, ticketID); err != nil {
		return nil, apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	history, err := repos.History.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapStoreError(err, "ticket history", nil)
	}
	return history, nil
}

// ListComments returns the ticket's comments, hiding internal ones unless includeInternal is set.
func (s *LifecycleService) ListComments(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error) {
	repos := s.store.Repositories()
	if _, err := repos.Tickets.GetByID(ctx, ticketID); err != nil {
		return nil, apperrors.MapStoreError(err, "ticket", map[string]any{"ticket_id": ticketID})
	}
	comments, err := repos.Comments.ListByTicket(ctx, ticketID, includeInternal)
	if err != nil {
		return nil, apperrors.MapStoreError(err, "ticket comment", nil)
	}
	return comments, nil
}

func (s *LifecycleService) lockTicket(ctx context.Context, repos repository.Repositories, ticketID string) (*domain.Ticket, error) {
	ticket, err := repos.Tickets.GetForUpdate(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *LifecycleService) appendHistory(ctx context.Context, repos repository.Repositories, ticketID string, actor historyActor, changeType domain.TicketChangeType, oldValue, newValue *string, at time.Time) error {
	entry := &domain.TicketHistory{
		ID:            s.newID(),
		TicketID:      ticketID,
		ChangedByType: actor.kind,
		ChangedByID:   actor.id,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     at,
	}
	return repos.History.Create(ctx, entry)
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

type historyActor struct {
	kind domain.ActorType
	id   *string
}

func userActor(userID string) historyActor {
	return historyActor{kind: domain.ActorTypeUser, id: &userID}
}

func systemActor() historyActor {
	id := domain.SystemActorID
	return historyActor{kind: domain.ActorTypeSystem, id: &id}
}

func eventActor(actor historyActor) events.Actor {
	return events.Actor{Type: actor.kind, UserID: actor.id}
}

// describeAssignment renders an assignment as history text: the assignee id,
// or queue:<id> when only a queue is set.
func describeAssignment(assigneeID, queueID *string) *string {
	switch {
	case assigneeID != nil:
		v := *assigneeID
		return &v
	case queueID != nil:
		v := "queue:" + *queueID
		return &v
	default:
		return nil
	}
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	if max <= 3 {
		return truncateRunes(body, max)
	}
	return truncateRunes(body, max-3) + "..."
}
