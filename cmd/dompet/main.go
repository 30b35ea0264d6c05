package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"dompet/internal/backend"
	"dompet/internal/config"
	apphttp "dompet/internal/http"
	"dompet/internal/ledger"
	"dompet/internal/log"
	"dompet/internal/worker"
)

func main() {
	// Load .env for local development; absence is fine in production.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(log.Config{Level: cfg.SlogLevel(), Component: log.ComponentApp})
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

	events := res.Publisher()
	svc := ledger.NewService(res.Store, events, logger)
	budget := ledger.NewBudgetCycle(res.Store, events, logger)

	srv := apphttp.NewServer(apphttp.Config{Port: cfg.Port}, svc, budget, logger)
	budgetWorker, err := worker.NewBudgetWorker(budget, cfg.BudgetCheckInterval, cfg.Location(), logger)
	if err != nil {
		logger.Error("Failed to build budget worker", log.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting dompet",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events_enabled", res.Events != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error { return budgetWorker.Start(gctx) })

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}
