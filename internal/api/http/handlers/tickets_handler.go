package handlers

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/ticket-lifecycle/internal/api/dto"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	apperrors "github.com/spec-kit/ticket-lifecycle/pkg/util/errorutil"
)

// TicketEngine is the lifecycle surface the HTTP layer drives.
type TicketEngine interface {
	CreateTicket(ctx context.Context, input service.CreateTicketInput) (string, error)
	AssignTicket(ctx context.Context, input service.AssignTicketInput) error
	ChangeStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actingUser string) error
	AddComment(ctx context.Context, input service.AddCommentInput) (string, error)
	AttachSLAPolicy(ctx context.Context, ticketID, policyID, actingUser string) error
	GetTicketSummary(ctx context.Context, ticketID string) (*domain.TicketSummary, error)
	ListHistory(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
	ListComments(ctx context.Context, ticketID string, includeInternal bool) ([]domain.TicketComment, error)
	RunEscalationSweep(ctx context.Context) (int, error)
}

// TicketsHandler manages ticket lifecycle endpoints.
type TicketsHandler struct {
	engine   TicketEngine
	validate *validator.Validate
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(engine TicketEngine, validate *validator.Validate) *TicketsHandler {
	if validate == nil {
		validate = NewValidator()
	}
	return &TicketsHandler{engine: engine, validate: validate}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	id, err := h.engine.CreateTicket(c.UserContext(), service.CreateTicketInput{
		Title:       req.Title,
		Description: req.Description,
		CustomerID:  req.CustomerID,
		CreatedByID: req.CreatedByID,
		QueueID:     req.QueueID,
		Priority:    req.Priority,
		Source:      req.Source,
		SLAPolicyID: req.SLAPolicyID,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreatedResponse{ID: id}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	summary, err := h.engine.GetTicketSummary(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(summary)})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.AssignTicketRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	err = h.engine.AssignTicket(c.UserContext(), service.AssignTicketInput{
		TicketID:   ticketID,
		AssigneeID: req.AssigneeID,
		QueueID:    req.QueueID,
		ActingUser: req.ActingUserID,
	})
	if err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ChangeStatus POST /tickets/:id/status.
func (h *TicketsHandler) ChangeStatus(c *fiber.Ctx) error {
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	if err := h.engine.ChangeStatus(c.UserContext(), ticketID, req.Status, req.ActingUserID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// AddComment POST /tickets/:id/comments.
func (h *TicketsHandler) AddComment(c *fiber.Ctx) error {
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.AddCommentRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	id, err := h.engine.AddComment(c.UserContext(), service.AddCommentInput{
		TicketID:   ticketID,
		AuthorID:   req.AuthorID,
		Body:       req.Body,
		IsInternal: req.IsInternal,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.CreatedResponse{ID: id}})
}

// ListComments GET /tickets/:id/comments.
func (h *TicketsHandler) ListComments(c *fiber.Ctx) error {
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	comments, err := h.engine.ListComments(c.UserContext(), ticketID, c.QueryBool("internal", false))
	if err != nil {
		return err
	}
	items := make([]dto.TicketCommentResponse, 0, len(comments))
	for _, comment := range comments {
		items = append(items, dto.TicketCommentResponse{
			ID:         comment.ID,
			AuthorID:   comment.AuthorID,
			Body:       comment.Body,
			IsInternal: comment.IsInternal,
			CreatedAt:  comment.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListHistory GET /tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	history, err := h.engine.ListHistory(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": historyResponses(history)})
}

// AttachSLAPolicy POST /tickets/:id/sla.
func (h *TicketsHandler) AttachSLAPolicy(c *fiber.Ctx) error {
	ticketID, err := ticketIDParam(c)
	if err != nil {
		return err
	}
	var req dto.AttachSLAPolicyRequest
	if err := parseBody(c, h.validate, &req); err != nil {
		return err
	}
	if err := h.engine.AttachSLAPolicy(c.UserContext(), ticketID, req.SLAPolicyID, req.ActingUserID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// RunEscalationSweep POST /internal/escalations/sweep.
func (h *TicketsHandler) RunEscalationSweep(c *fiber.Ctx) error {
	count, err := h.engine.RunEscalationSweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{Escalated: count}})
}

// ticketIDParam reads :id. A value that is not a UUID cannot name a ticket.
func ticketIDParam(c *fiber.Ctx) (string, error) {
	id := c.Params("id")
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return parsed.String(), nil
}

func ticketResponse(summary *domain.TicketSummary) dto.TicketResponse {
	t := summary.Ticket
	return dto.TicketResponse{
		ID:            t.ID,
		TicketNumber:  t.TicketNumber,
		Title:         t.Title,
		Description:   t.Description,
		CustomerID:    t.CustomerID,
		CustomerName:  summary.CustomerName,
		CreatedByID:   t.CreatedByID,
		CreatorName:   summary.CreatorName,
		AssigneeID:    t.AssigneeID,
		AssigneeName:  summary.AssigneeName,
		QueueID:       t.QueueID,
		QueueName:     summary.QueueName,
		Priority:      t.Priority,
		Status:        t.Status,
		Source:        t.Source,
		SLAPolicyID:   t.SLAPolicyID,
		ResponseDue:   t.ResponseDue,
		ResolutionDue: t.ResolutionDue,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func historyResponses(entries []domain.TicketHistory) []dto.TicketHistoryResponse {
	resp := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.TicketHistoryResponse{
			ID:            entry.ID,
			ChangeType:    entry.ChangeType,
			ChangedByType: entry.ChangedByType,
			ChangedByID:   entry.ChangedByID,
			OldValue:      entry.OldValue,
			NewValue:      entry.NewValue,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return resp
}
