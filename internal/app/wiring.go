package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/numbering"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/migrations"
)

// Runtime holds the connected backends and the lifecycle engine built on them.
type Runtime struct {
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Lifecycle  *service.LifecycleService
}

// Close releases backend connections.
func (r *Runtime) Close() {
	r.Redis.Close()
	r.Postgres.Close()
}

// Build connects Postgres and Redis, runs migrations when enabled and assembles the lifecycle service.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, cfg.App.Name, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), migrations.Files, logger); err != nil {
			pg.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	redis := persistence.NewRedis(ctx, cfg.Redis, logger)

	sequencer, err := newSequencer(cfg.Lifecycle, pg, redis)
	if err != nil {
		redis.Close()
		pg.Close()
		return nil, err
	}
	logger.Info("ticket numbering configured",
		zap.String("backend", cfg.Lifecycle.NumberBackend),
		zap.String("prefix", cfg.Lifecycle.NumberPrefix))

	transitions := service.PermissiveTransitions
	if cfg.Lifecycle.StrictStatusTransitions {
		transitions = service.StrictTransitions
	}

	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		Store: repository.NewStore(pg.PoolHandle()),
		Numbers: numbering.NewGenerator(sequencer,
			numbering.WithPrefix(cfg.Lifecycle.NumberPrefix),
			numbering.WithWidth(cfg.Lifecycle.NumberWidth)),
		Dispatcher:  dispatcher,
		Logger:      logger.Named("lifecycle"),
		Metrics:     metrics,
		Transitions: transitions,
		SweepLock:   persistence.NewSweepLock(redis, "", cfg.Lifecycle.SweepLockTTL()),
		Options: service.LifecycleOptions{
			AssignReopensClosed: cfg.Lifecycle.AssignReopensClosed,
			HistorySummaryLimit: cfg.Lifecycle.HistorySummaryLimit,
			SweepBatchLimit:     cfg.Lifecycle.SweepBatchLimit,
		},
	})

	return &Runtime{
		Postgres:   pg,
		Redis:      redis,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Lifecycle:  lifecycle,
	}, nil
}

func newSequencer(cfg config.LifecycleConfig, pg *persistence.Postgres, redis *persistence.Redis) (numbering.Sequencer, error) {
	switch cfg.NumberBackend {
	case config.NumberBackendPostgres:
		return repository.NewTicketNumberSequencer(pg.PoolHandle()), nil
	case config.NumberBackendRedis:
		return numbering.NewRedisSequencer(redis.Client, ""), nil
	case config.NumberBackendMemory:
		return numbering.NewAtomicSequencer(0), nil
	default:
		return nil, fmt.Errorf("unknown ticket number backend %q", cfg.NumberBackend)
	}
}
