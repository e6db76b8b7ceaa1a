package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// EscalationFilter selects tickets due for the SLA sweep.
type EscalationFilter struct {
	Statuses      []domain.TicketStatus
	Priorities    []domain.TicketPriority
	OverdueBefore time.Time
	Limit         int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate loads the ticket and locks its row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	SetSLADates(ctx context.Context, id string, responseDue, resolutionDue time.Time, updatedAt time.Time) error
	ListEscalationCandidates(ctx context.Context, filter EscalationFilter) ([]domain.Ticket, error)
	GetSummary(ctx context.Context, id string) (*domain.TicketSummary, error)
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, ticket_number, title, description, customer_id, created_by, assigned_to, queue_id,
               priority, status, source, sla_policy_id, response_due, resolution_due, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, ticket_number, title, description, customer_id, created_by, assigned_to, queue_id,
            priority, status, source, sla_policy_id, response_due, resolution_due, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.TicketNumber,
		ticket.Title,
		ticket.Description,
		ticket.CustomerID,
		ticket.CreatedByID,
		ticket.AssigneeID,
		ticket.QueueID,
		ticket.Priority,
		ticket.Status,
		ticket.Source,
		ticket.SLAPolicyID,
		ticket.ResponseDue,
		ticket.ResolutionDue,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return err
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, assigned_to=$3, queue_id=$4, priority=$5, status=$6,
            sla_policy_id=$7, response_due=$8, resolution_due=$9, updated_at=$10
        WHERE id=$11`
	cmd, err := r.db.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.AssigneeID,
		ticket.QueueID,
		ticket.Priority,
		ticket.Status,
		ticket.SLAPolicyID,
		ticket.ResponseDue,
		ticket.ResolutionDue,
		ticket.UpdatedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return scanTicket(r.db.QueryRow(ctx, query, id))
}

func (r *ticketRepository) SetSLADates(ctx context.Context, id string, responseDue, resolutionDue time.Time, updatedAt time.Time) error {
	const query = `UPDATE tickets SET response_due=$1, resolution_due=$2, updated_at=$3 WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query, responseDue, resolutionDue, updatedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ListEscalationCandidates(ctx context.Context, filter EscalationFilter) ([]domain.Ticket, error) {
	query, args := escalationQuery(filter)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// escalationQuery builds the candidate select for filter, most overdue first.
func escalationQuery(filter EscalationFilter) (string, []any) {
	clauses := []string{"resolution_due IS NOT NULL"}
	args := []any{filter.OverdueBefore}
	clauses = append(clauses, fmt.Sprintf("resolution_due < $%d", len(args)))

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, priority := range filter.Priorities {
			args = append(args, priority)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY resolution_due ASC, id ASC`,
		ticketColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return query, args
}

func (r *ticketRepository) GetSummary(ctx context.Context, id string) (*domain.TicketSummary, error) {
	const query = `
        SELECT t.id, t.ticket_number, t.title, t.description, t.customer_id, t.created_by, t.assigned_to, t.queue_id,
               t.priority, t.status, t.source, t.sla_policy_id, t.response_due, t.resolution_due, t.created_at, t.updated_at,
               COALESCE(c.name, ''), COALESCE(cr.full_name, ''), a.full_name, q.name
        FROM tickets t
        LEFT JOIN customers c ON c.id = t.customer_id
        LEFT JOIN users cr ON cr.id = t.created_by
        LEFT JOIN users a ON a.id = t.assigned_to
        LEFT JOIN queues q ON q.id = t.queue_id
        WHERE t.id=$1`
	var s domain.TicketSummary
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID,
		&s.TicketNumber,
		&s.Title,
		&s.Description,
		&s.CustomerID,
		&s.CreatedByID,
		&s.AssigneeID,
		&s.QueueID,
		&s.Priority,
		&s.Status,
		&s.Source,
		&s.SLAPolicyID,
		&s.ResponseDue,
		&s.ResolutionDue,
		&s.CreatedAt,
		&s.UpdatedAt,
		&s.CustomerName,
		&s.CreatorName,
		&s.AssigneeName,
		&s.QueueName,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.Title,
		&ticket.Description,
		&ticket.CustomerID,
		&ticket.CreatedByID,
		&ticket.AssigneeID,
		&ticket.QueueID,
		&ticket.Priority,
		&ticket.Status,
		&ticket.Source,
		&ticket.SLAPolicyID,
		&ticket.ResponseDue,
		&ticket.ResolutionDue,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
