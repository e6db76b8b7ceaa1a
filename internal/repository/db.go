package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories groups the stores written by one lifecycle operation.
type Repositories struct {
	Tickets  TicketRepository
	History  TicketHistoryRepository
	Comments TicketCommentRepository
	Policies SLAPolicyRepository
}

// UnitOfWork runs fn against repositories bound to a single transaction.
// Either every write made through them commits or none does.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(Repositories) error) error
	Repositories() Repositories
}

// Store is the Postgres-backed UnitOfWork.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Repositories returns repositories bound to the pool, outside any transaction.
func (s *Store) Repositories() Repositories {
	return bind(s.pool)
}

// WithinTx begins a transaction, runs fn and commits when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(Repositories) error) error {
	if s == nil || s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(bind(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func bind(db DBTX) Repositories {
	return Repositories{
		Tickets:  NewTicketRepository(db),
		History:  NewTicketHistoryRepository(db),
		Comments: NewTicketCommentRepository(db),
		Policies: NewSLAPolicyRepository(db),
	}
}
