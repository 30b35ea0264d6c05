package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"dompet/internal/core"
	"dompet/internal/store"
)

// CategoryAmount is an amount aggregated under one category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount_cents"`
}

// MonthCashflow sums recorded money movement for one calendar month.
type MonthCashflow struct {
	Period  core.Period `json:"period"`
	Income  int64       `json:"income_cents"`
	Expense int64       `json:"expense_cents"`
	Net     int64       `json:"net_cents"`
}

// RefResult is the income minus expense attributed to one reference.
type RefResult struct {
	Ref     core.Ref `json:"ref"`
	Income  int64    `json:"income_cents"`
	Expense int64    `json:"expense_cents"`
	Net     int64    `json:"net_cents"`
}

// CategoryTotals aggregates expenses between from and to by category,
// largest first. Internal transfers are bookkeeping and are skipped.
func (s *Service) CategoryTotals(ctx context.Context, from, to time.Time) ([]CategoryAmount, error) {
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{From: from, To: to, Type: core.TypeExpense})
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}

	byName := make(map[string]int64)
	for _, tx := range txs {
		if tx.Category == core.CategoryInternalTransfer {
			continue
		}
		byName[tx.Category] += tx.Amount
	}

	out := make([]CategoryAmount, 0, len(byName))
	for name, amount := range byName {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// CashflowByMonth buckets all transactions between from and to into
// calendar months, oldest first. Internal transfers cancel out and are
// excluded.
func (s *Service) CashflowByMonth(ctx context.Context, from, to time.Time) ([]MonthCashflow, error) {
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	byPeriod := make(map[core.Period]*MonthCashflow)
	for _, tx := range txs {
		if tx.Category == core.CategoryInternalTransfer {
			continue
		}
		p := core.PeriodOf(tx.Date)
		row, ok := byPeriod[p]
		if !ok {
			row = &MonthCashflow{Period: p}
			byPeriod[p] = row
		}
		switch tx.Type {
		case core.TypeIncome:
			row.Income += tx.Amount
		case core.TypeExpense:
			row.Expense += tx.Amount
		}
	}

	out := make([]MonthCashflow, 0, len(byPeriod))
	for _, row := range byPeriod {
		row.Net = row.Income - row.Expense
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Period.Year != out[j].Period.Year {
			return out[i].Period.Year < out[j].Period.Year
		}
		return out[i].Period.Month < out[j].Period.Month
	})
	return out, nil
}

// ResultByRef nets income against expenses for every transaction carrying
// the given reference kind ("trip", "event", ...). Pass an empty kind to
// aggregate across all reference kinds.
func (s *Service) ResultByRef(ctx context.Context, kind string) ([]RefResult, error) {
	txs, err := s.store.ListTransactions(ctx, store.TransactionFilter{})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	byRef := make(map[core.Ref]*RefResult)
	for _, tx := range txs {
		if tx.Ref.IsZero() {
			continue
		}
		if kind != "" && tx.Ref.Kind != kind {
			continue
		}
		row, ok := byRef[tx.Ref]
		if !ok {
			row = &RefResult{Ref: tx.Ref}
			byRef[tx.Ref] = row
		}
		switch tx.Type {
		case core.TypeIncome:
			row.Income += tx.Amount
		case core.TypeExpense:
			row.Expense += tx.Amount
		}
	}

	out := make([]RefResult, 0, len(byRef))
	for _, row := range byRef {
		row.Net = row.Income - row.Expense
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ref.Kind != out[j].Ref.Kind {
			return out[i].Ref.Kind < out[j].Ref.Kind
		}
		return out[i].Ref.ID < out[j].Ref.ID
	})
	return out, nil
}
