package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
)

// ActivityLogService writes committed lifecycle events to the structured log.
type ActivityLogService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewActivityLogService creates the service.
func NewActivityLogService(dispatcher events.Dispatcher, logger *zap.Logger, metrics *observability.Metrics) *ActivityLogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityLogService{
		dispatcher: dispatcher,
		logger:     logger.Named("activity"),
		metrics:    metrics,
	}
}

// RegisterHandlers subscribes to events.
func (a *ActivityLogService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handle)
	a.dispatcher.Subscribe(events.EventTicketAssigned, a.handle)
	a.dispatcher.Subscribe(events.EventTicketStatusChanged, a.handle)
	a.dispatcher.Subscribe(events.EventTicketCommentAdded, a.handleComment)
	a.dispatcher.Subscribe(events.EventTicketEscalated, a.handleEscalated)
	a.dispatcher.Subscribe(events.EventTicketSLAApplied, a.handle)
}

func (a *ActivityLogService) handle(_ context.Context, event events.Event) error {
	a.metrics.RecordEvent(string(event.Type))
	a.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("ticket_number", event.TicketNumber),
		zap.String("actor_type", string(event.Actor.Type)),
		zap.Any("payload", event.Payload))
	return nil
}

func (a *ActivityLogService) handleComment(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCommentAddedPayload)
	if ok && payload.IsInternal {
		// Internal notes stay out of the log body.
		payload.BodyPreview = ""
		event.Payload = payload
	}
	return a.handle(ctx, event)
}

func (a *ActivityLogService) handleEscalated(ctx context.Context, event events.Event) error {
	if payload, ok := event.Payload.(events.TicketEscalatedPayload); ok {
		a.logger.Warn("sla breached",
			zap.String("ticket_id", event.TicketID),
			zap.String("ticket_number", event.TicketNumber),
			zap.Time("resolution_due", payload.ResolutionDue),
			zap.String("priority", string(payload.NewPriority)))
	}
	return a.handle(ctx, event)
}
