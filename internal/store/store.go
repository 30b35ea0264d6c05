// Package store persists cards, pockets, and the transaction log. Three
// implementations share one contract: an in-memory store for tests and
// development, a SQLite store, and a Postgres store. Every balance change
// goes through Apply, which executes a precomputed Mutation atomically so a
// failure partway through never leaves balances inconsistent with the log.
package store

import (
	"context"
	"time"

	"dompet/internal/core"
)

// Delta is a signed balance change against one account.
type Delta struct {
	ID     string
	Amount int64
}

// PocketUpdate rewrites selected pocket fields. Nil fields are left alone.
// Balances are never touched here; those go through deltas.
type PocketUpdate struct {
	ID           string
	Name         *string
	Period       *core.Period
	SourceCardID *string
	GoalAmount   *int64
	LockEnd      *time.Time
}

// Mutation is the full effect of one ledger operation, computed before any
// shared state is touched. Apply executes it all-or-nothing: card deltas,
// pocket deltas, pocket spin-offs, field updates, then appended transactions.
type Mutation struct {
	CardDeltas    []Delta
	PocketDeltas  []Delta
	NewPockets    []core.Pocket
	PocketUpdates []PocketUpdate
	Transactions  []core.Transaction
}

// IsZero reports whether the mutation would have no effect at all.
func (m Mutation) IsZero() bool {
	return len(m.CardDeltas) == 0 && len(m.PocketDeltas) == 0 &&
		len(m.NewPockets) == 0 && len(m.PocketUpdates) == 0 &&
		len(m.Transactions) == 0
}

// TransactionFilter narrows ListTransactions. Zero values mean "no filter".
type TransactionFilter struct {
	From     time.Time
	To       time.Time // inclusive
	Category string
	CardID   string
	PocketID string
	Type     core.TransactionType
	Ref      core.Ref
}

// TransactionDetails carries the only fields of a logged transaction that
// may be edited after the fact. Amounts and account references are immutable.
type TransactionDetails struct {
	Description *string
	Category    *string
	Date        *time.Time
}

// Store is the persistence contract for the ledger core.
//
// Creation-time invariants every implementation enforces: at most one cash
// card, at most one budget pocket, cards and pockets are born with zero
// balance so total assets only ever move through Apply.
type Store interface {
	CreateCard(ctx context.Context, c core.Card) error
	GetCard(ctx context.Context, id string) (core.Card, error)
	CashCard(ctx context.Context) (core.Card, error)
	ListCards(ctx context.Context) ([]core.Card, error)
	// DeleteCard refuses the cash card and any card still referenced by a
	// transaction or backing a pocket.
	DeleteCard(ctx context.Context, id string) error

	CreatePocket(ctx context.Context, p core.Pocket) error
	GetPocket(ctx context.Context, id string) (core.Pocket, error)
	// BudgetPocket returns the single recurring-budget pocket, or a
	// NotFoundError when none exists.
	BudgetPocket(ctx context.Context) (core.Pocket, error)
	ListPockets(ctx context.Context) ([]core.Pocket, error)
	// DeletePocket refuses the budget pocket and pockets holding a balance.
	DeletePocket(ctx context.Context, id string) error

	// Apply executes the mutation atomically. A delta that would drive a
	// balance negative rejects with InsufficientFundsError; an unknown id
	// rejects with NotFoundError. On rejection nothing is persisted.
	Apply(ctx context.Context, m Mutation) error

	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error)
	UpdateTransactionDetails(ctx context.Context, id string, d TransactionDetails) error

	// TotalAssets is the sum of all card balances.
	TotalAssets(ctx context.Context) (int64, error)
	// PocketsTotal is the sum of pocket balances excluding the reward pool.
	PocketsTotal(ctx context.Context) (int64, error)

	// Member rewards feed the derived reward-pool balance. They are written
	// by the external rewards domain, never by ledger operations.
	SetMemberReward(ctx context.Context, member string, amount int64) error
	TotalRewards(ctx context.Context) (int64, error)

	Close() error
}

// Matches reports whether tx passes the filter.
func (f TransactionFilter) Matches(tx core.Transaction) bool {
	if !f.From.IsZero() && tx.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(f.To) {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if f.CardID != "" && tx.CardID != f.CardID {
		return false
	}
	if f.PocketID != "" && tx.PocketID != f.PocketID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Ref.Kind != "" && tx.Ref.Kind != f.Ref.Kind {
		return false
	}
	if f.Ref.ID != "" && tx.Ref.ID != f.Ref.ID {
		return false
	}
	return true
}
