// Command sweep runs one escalation sweep and exits. It is meant to be driven by an
// external scheduler such as cron or a Kubernetes CronJob.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/app"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to start lifecycle engine", zap.Error(err))
	}
	defer rt.Close()

	worker.StartActivityWorker(service.NewActivityLogService(rt.Dispatcher, logger, rt.Metrics))

	escalated, err := rt.Lifecycle.RunEscalationSweep(ctx)
	if err != nil {
		logger.Fatal("escalation sweep failed", zap.Error(err))
	}
	logger.Info("escalation sweep complete", zap.Int("escalated", escalated))
}
