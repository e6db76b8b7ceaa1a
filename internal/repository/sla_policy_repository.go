package repository

import (
	"context"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// SLAPolicyRepository reads SLA policies. Policies are owned by the reference store.
type SLAPolicyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	db DBTX
}

// NewSLAPolicyRepository builds repository.
func NewSLAPolicyRepository(db DBTX) SLAPolicyRepository {
	return &slaPolicyRepository{db: db}
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, priority, response_time_hours, resolution_time_hours, created_at
        FROM sla_policies WHERE id=$1`
	var policy domain.SLAPolicy
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&policy.ID,
		&policy.Name,
		&policy.Priority,
		&policy.ResponseTimeHours,
		&policy.ResolutionTimeHours,
		&policy.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}
