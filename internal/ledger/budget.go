package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/metrics"
	"dompet/internal/store"
)

// BudgetCycle owns the single recurring operating-budget pocket. Each
// evaluation compares the pocket's period against the wall clock: a pocket
// stuck in an earlier month is closed automatically, leftover funds spin
// off into a savings pocket, and the budget pocket itself is renamed and
// zeroed for the new month. The pocket is recycled forever; its identifier
// never changes.
type BudgetCycle struct {
	store  store.Store
	events EventPublisher
	logger *log.Logger
	newID  func() string
}

func NewBudgetCycle(st store.Store, events EventPublisher, logger *log.Logger) *BudgetCycle {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &BudgetCycle{
		store:  st,
		events: events,
		logger: logger.WithComponent(log.ComponentBudget),
		newID:  func() string { return uuid.NewString() },
	}
}

// CloseResult summarizes one completed budget close.
type CloseResult struct {
	BudgetPocketID string
	Leftover       int64
	SavingPocket   *core.Pocket // nil when the leftover was zero
	Transaction    *core.Transaction
	NewPeriod      core.Period
	NewName        string
}

// Evaluate closes the budget pocket if its period is already past. It
// returns (nil, nil) when there is no budget pocket or the pocket is still
// inside its month — calling it twice in the same period closes at most
// once.
func (b *BudgetCycle) Evaluate(ctx context.Context, now time.Time) (*CloseResult, error) {
	pocket, err := b.store.BudgetPocket(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find budget pocket: %w", err)
	}
	if !pocket.Period.Before(now) {
		return nil, nil
	}

	res, err := b.close(ctx, pocket, now)
	if err != nil {
		return nil, err
	}
	metrics.BudgetCloses.WithLabelValues("auto").Inc()
	return res, nil
}

// Close closes the current budget period regardless of the wall clock.
func (b *BudgetCycle) Close(ctx context.Context, now time.Time) (*CloseResult, error) {
	pocket, err := b.store.BudgetPocket(ctx)
	if err != nil {
		return nil, err
	}
	res, err := b.close(ctx, pocket, now)
	if err != nil {
		return nil, err
	}
	metrics.BudgetCloses.WithLabelValues("manual").Inc()
	return res, nil
}

func (b *BudgetCycle) close(ctx context.Context, pocket core.Pocket, now time.Time) (*CloseResult, error) {
	leftover := pocket.Balance
	newPeriod := core.PeriodOf(now)
	newName := RenderBudgetName(budgetBaseName(pocket), newPeriod)

	res := &CloseResult{
		BudgetPocketID: pocket.ID,
		Leftover:       leftover,
		NewPeriod:      newPeriod,
		NewName:        newName,
	}

	m := store.Mutation{
		PocketUpdates: []store.PocketUpdate{{
			ID:     pocket.ID,
			Name:   &newName,
			Period: &newPeriod,
		}},
	}
	if leftover > 0 {
		saving := core.Pocket{
			ID:           b.newID(),
			Name:         "Sisa " + pocket.Name,
			Kind:         core.PocketSaving,
			Balance:      leftover,
			SourceCardID: pocket.SourceCardID,
		}
		tx := core.Transaction{
			ID:          b.newID(),
			Date:        now,
			Description: fmt.Sprintf("Penutupan %s", pocket.Name),
			Category:    core.CategoryBudgetClose,
			Type:        core.TypeExpense,
			Amount:      leftover,
			PocketID:    pocket.ID,
		}
		m.PocketDeltas = []store.Delta{{ID: pocket.ID, Amount: -leftover}}
		m.NewPockets = []core.Pocket{saving}
		m.Transactions = []core.Transaction{tx}
		res.SavingPocket = &saving
		res.Transaction = &tx
	}

	if err := b.store.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("close budget period: %w", err)
	}

	b.logger.InfoContext(ctx, "Budget period closed",
		log.FieldPocketID, pocket.ID,
		log.FieldAmountCents, leftover,
		log.FieldPeriod, fmt.Sprintf("%04d-%02d", newPeriod.Year, newPeriod.Month))

	b.publishClose(ctx, res)
	return res, nil
}

func (b *BudgetCycle) publishClose(ctx context.Context, res *CloseResult) {
	if b.events == nil {
		return
	}
	ev := &BudgetClosedEvent{
		PocketID:      res.BudgetPocketID,
		LeftoverCents: res.Leftover,
		NewPeriod:     res.NewPeriod,
	}
	if res.SavingPocket != nil {
		ev.SavingPocketID = res.SavingPocket.ID
	}
	if err := b.events.PublishBudgetClosed(ctx, ev); err != nil {
		b.logger.ErrorContext(ctx, "Failed to publish budget close event",
			log.FieldPocketID, res.BudgetPocketID, log.FieldError, err)
	}
}

// RenderBudgetName renders the display name of a budget pocket for a
// period, e.g. "Anggaran Operasional Maret 2024".
func RenderBudgetName(base string, p core.Period) string {
	return fmt.Sprintf("%s %s %d", strings.TrimSpace(base), p.MonthName(), p.Year)
}

// budgetBaseName strips the rendered period suffix from the pocket's
// current name so a custom base label survives renames. A name that does
// not end with the current period's label is used as the base unchanged.
func budgetBaseName(pocket core.Pocket) string {
	suffix := " " + pocket.Period.MonthName() + " " + strconv.Itoa(pocket.Period.Year)
	if strings.HasSuffix(pocket.Name, suffix) {
		return strings.TrimSuffix(pocket.Name, suffix)
	}
	return pocket.Name
}
