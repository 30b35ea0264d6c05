// Package worker runs the budget cycle on a schedule so a pocket left in a
// past month gets closed without anyone calling the API.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"dompet/internal/ledger"
	"dompet/internal/log"
)

// BudgetWorker evaluates the budget cycle on the first of every month and
// again at a coarse interval, which catches closes missed while the process
// was down.
type BudgetWorker struct {
	budget    *ledger.BudgetCycle
	scheduler gocron.Scheduler
	interval  time.Duration
	location  *time.Location
	logger    *log.Logger
}

func NewBudgetWorker(budget *ledger.BudgetCycle, interval time.Duration, loc *time.Location, logger *log.Logger) (*BudgetWorker, error) {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &BudgetWorker{
		budget:    budget,
		scheduler: scheduler,
		interval:  interval,
		location:  loc,
		logger:    logger.WithComponent(log.ComponentWorker),
	}, nil
}

// Start registers the jobs, runs one immediate evaluation, and blocks until
// ctx is cancelled.
func (w *BudgetWorker) Start(ctx context.Context) error {
	_, err := w.scheduler.NewJob(
		gocron.MonthlyJob(1, gocron.NewDaysOfTheMonth(1), gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))),
		gocron.NewTask(w.evaluate, ctx),
		gocron.WithName("budget-month-rollover"),
	)
	if err != nil {
		return fmt.Errorf("register monthly job: %w", err)
	}
	_, err = w.scheduler.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(w.evaluate, ctx),
		gocron.WithName("budget-catch-up"),
	)
	if err != nil {
		return fmt.Errorf("register interval job: %w", err)
	}

	w.scheduler.Start()
	w.logger.Info("Budget worker started",
		"interval", w.interval.String(), "timezone", w.location.String())

	// A close pending from before the process started should not wait a
	// full interval.
	w.evaluate(ctx)

	<-ctx.Done()
	w.logger.Info("Budget worker stopping", log.FieldOperation, log.OpShutdown)
	if err := w.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}
	return nil
}

func (w *BudgetWorker) evaluate(ctx context.Context) {
	res, err := w.budget.Evaluate(ctx, time.Now().In(w.location))
	if err != nil {
		w.logger.ErrorContext(ctx, "Budget evaluation failed",
			log.FieldOperation, log.OpEvaluate, log.FieldError, err)
		return
	}
	if res == nil {
		w.logger.DebugContext(ctx, "Budget evaluation: nothing to close",
			log.FieldOperation, log.OpEvaluate)
		return
	}
	w.logger.InfoContext(ctx, "Budget period closed by worker",
		log.FieldOperation, log.OpClose,
		log.FieldPocketID, res.BudgetPocketID,
		log.FieldAmountCents, res.Leftover)
}
