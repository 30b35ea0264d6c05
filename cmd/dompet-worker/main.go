// dompet-worker runs the budget cycle scheduler without the HTTP API, for
// deployments that serve the API elsewhere and only need the monthly
// rollover applied against a shared database.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"dompet/internal/backend"
	"dompet/internal/config"
	"dompet/internal/ledger"
	"dompet/internal/log"
	"dompet/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{Level: cfg.SlogLevel(), Component: log.ComponentWorker})
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open storage backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Cleanup failed", log.FieldError, err)
		}
	}()

	budget := ledger.NewBudgetCycle(res.Store, res.Publisher(), logger)

	budgetWorker, err := worker.NewBudgetWorker(budget, cfg.BudgetCheckInterval, cfg.Location(), logger)
	if err != nil {
		logger.Error("Failed to build budget worker", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting dompet-worker",
		log.FieldOperation, log.OpStartup,
		"backend", cfg.DataBackend,
		"interval", cfg.BudgetCheckInterval.String())

	if err := budgetWorker.Start(ctx); err != nil {
		logger.Error("Worker error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
}
