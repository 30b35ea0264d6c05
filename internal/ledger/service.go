// Package ledger implements the money-movement operations and the budget
// cycle. Every operation validates all of its preconditions, computes the
// complete store mutation, and hands it to the store in one atomic Apply —
// a rejected operation leaves balances and the transaction log untouched.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/metrics"
	"dompet/internal/store"
)

// EventPublisher receives committed-operation events. Publishing happens
// after commit and is best-effort; failures are logged, never surfaced.
type EventPublisher interface {
	PublishTransactionRecorded(ctx context.Context, tx core.Transaction) error
	PublishBudgetClosed(ctx context.Context, msg *BudgetClosedEvent) error
}

// BudgetClosedEvent mirrors events.BudgetClosed without importing the AMQP
// layer into the ledger.
type BudgetClosedEvent struct {
	PocketID       string
	LeftoverCents  int64
	SavingPocketID string
	NewPeriod      core.Period
}

// Service is the only writer of card and pocket balances. All mutations go
// through it (or through the BudgetCycle, which shares its primitives).
type Service struct {
	store  store.Store
	events EventPublisher
	logger *log.Logger
	newID  func() string
	now    func() time.Time
}

func NewService(st store.Store, events EventPublisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Service{
		store:  st,
		events: events,
		logger: logger.WithComponent(log.ComponentLedger),
		newID:  func() string { return uuid.NewString() },
		now:    time.Now,
	}
}

// IncomeParams describes a RecordIncome call.
type IncomeParams struct {
	Amount      int64
	CardID      string
	Category    string
	Description string
	Date        time.Time
	Ref         core.Ref
}

// RecordIncome credits the destination card and appends one income
// transaction.
func (s *Service) RecordIncome(ctx context.Context, p IncomeParams) (core.Transaction, error) {
	if p.Amount <= 0 {
		return s.reject(log.OpIncome, core.ErrInvalidAmount)
	}
	card, err := s.store.GetCard(ctx, p.CardID)
	if err != nil {
		return s.reject(log.OpIncome, err)
	}

	tx := core.Transaction{
		ID:          s.newID(),
		Date:        s.dateOrNow(p.Date),
		Description: p.Description,
		Category:    p.Category,
		Type:        core.TypeIncome,
		Amount:      p.Amount,
		CardID:      card.ID,
		Ref:         p.Ref,
	}
	m := store.Mutation{
		CardDeltas:   []store.Delta{{ID: card.ID, Amount: p.Amount}},
		Transactions: []core.Transaction{tx},
	}
	if err := s.commit(ctx, log.OpIncome, m, tx); err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Income recorded",
		log.FieldTxID, tx.ID,
		log.FieldCardID, card.ID,
		log.FieldAmountCents, p.Amount,
		log.FieldCategory, p.Category)
	return tx, nil
}

// ExpenseParams describes a RecordExpense call. Source names either a card
// or a pocket; pocket expenses backed by a card debit both balances.
type ExpenseParams struct {
	Amount      int64
	Source      core.ExpenseSource
	Category    string
	Description string
	Date        time.Time
	Ref         core.Ref
}

// RecordExpense debits the source and appends one expense transaction. When
// the source is a pocket with a linked card, both the pocket and the card
// must cover the amount and both are debited; the transaction references
// both. The first account found short names the rejection.
func (s *Service) RecordExpense(ctx context.Context, p ExpenseParams) (core.Transaction, error) {
	if p.Amount <= 0 {
		return s.reject(log.OpExpense, core.ErrInvalidAmount)
	}
	if err := p.Source.Validate(); err != nil {
		return s.reject(log.OpExpense, err)
	}

	tx := core.Transaction{
		ID:          s.newID(),
		Date:        s.dateOrNow(p.Date),
		Description: p.Description,
		Category:    p.Category,
		Type:        core.TypeExpense,
		Amount:      p.Amount,
		Ref:         p.Ref,
	}
	var m store.Mutation

	switch {
	case p.Source.IsCard():
		card, err := s.store.GetCard(ctx, p.Source.ID())
		if err != nil {
			return s.reject(log.OpExpense, err)
		}
		if card.Balance < p.Amount {
			return s.reject(log.OpExpense, &core.InsufficientFundsError{
				Entity: "card", ID: card.ID, Name: card.Name, Shortfall: p.Amount - card.Balance,
			})
		}
		tx.CardID = card.ID
		m.CardDeltas = []store.Delta{{ID: card.ID, Amount: -p.Amount}}

	default:
		pocket, err := s.store.GetPocket(ctx, p.Source.ID())
		if err != nil {
			return s.reject(log.OpExpense, err)
		}
		if pocket.Kind == core.PocketReward {
			return s.reject(log.OpExpense, core.ErrRewardPocketReadOnly)
		}
		if pocket.IsLockedAt(tx.Date) {
			return s.reject(log.OpExpense, fmt.Errorf("%w until %s", core.ErrPocketLocked, pocket.LockEnd.Format("2006-01-02")))
		}
		if pocket.Balance < p.Amount {
			return s.reject(log.OpExpense, &core.InsufficientFundsError{
				Entity: "pocket", ID: pocket.ID, Name: pocket.Name, Shortfall: p.Amount - pocket.Balance,
			})
		}
		tx.PocketID = pocket.ID
		m.PocketDeltas = []store.Delta{{ID: pocket.ID, Amount: -p.Amount}}

		// A pocket draw is reflected against its backing card: both stored
		// balances go down, one movement from the user's point of view.
		if pocket.SourceCardID != "" {
			card, err := s.store.GetCard(ctx, pocket.SourceCardID)
			if err != nil {
				return s.reject(log.OpExpense, err)
			}
			if card.Balance < p.Amount {
				return s.reject(log.OpExpense, &core.InsufficientFundsError{
					Entity: "card", ID: card.ID, Name: card.Name, Shortfall: p.Amount - card.Balance,
				})
			}
			tx.CardID = card.ID
			m.CardDeltas = []store.Delta{{ID: card.ID, Amount: -p.Amount}}
		}
	}

	m.Transactions = []core.Transaction{tx}
	if err := s.commit(ctx, log.OpExpense, m, tx); err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Expense recorded",
		log.FieldTxID, tx.ID,
		log.FieldCardID, tx.CardID,
		log.FieldPocketID, tx.PocketID,
		log.FieldAmountCents, p.Amount,
		log.FieldCategory, p.Category)
	return tx, nil
}

// TransferDirection distinguishes card→pocket deposits from pocket→card
// withdrawals.
type TransferDirection string

const (
	Deposit  TransferDirection = "deposit"
	Withdraw TransferDirection = "withdraw"
)

// TransferParams describes an internal card↔pocket transfer.
type TransferParams struct {
	Amount      int64
	CardID      string
	PocketID    string
	Direction   TransferDirection
	Description string
	Date        time.Time
}

// Transfer moves money between a card and a pocket. The appended
// transaction is categorized "Transfer Internal" and typed as an expense:
// internal moves must never read as fresh income in cash-flow reports.
func (s *Service) Transfer(ctx context.Context, p TransferParams) (core.Transaction, error) {
	if p.Amount <= 0 {
		return s.reject(log.OpTransfer, core.ErrInvalidAmount)
	}
	card, err := s.store.GetCard(ctx, p.CardID)
	if err != nil {
		return s.reject(log.OpTransfer, err)
	}
	pocket, err := s.store.GetPocket(ctx, p.PocketID)
	if err != nil {
		return s.reject(log.OpTransfer, err)
	}
	if pocket.Kind == core.PocketReward {
		return s.reject(log.OpTransfer, core.ErrRewardPocketReadOnly)
	}

	date := s.dateOrNow(p.Date)
	tx := core.Transaction{
		ID:          s.newID(),
		Date:        date,
		Description: p.Description,
		Category:    core.CategoryInternalTransfer,
		Type:        core.TypeExpense,
		Amount:      p.Amount,
		CardID:      card.ID,
		PocketID:    pocket.ID,
	}
	var m store.Mutation

	switch p.Direction {
	case Deposit:
		if card.Balance < p.Amount {
			return s.reject(log.OpTransfer, &core.InsufficientFundsError{
				Entity: "card", ID: card.ID, Name: card.Name, Shortfall: p.Amount - card.Balance,
			})
		}
		if tx.Description == "" {
			tx.Description = fmt.Sprintf("Setor ke %s", pocket.Name)
		}
		sourceID := card.ID
		m = store.Mutation{
			CardDeltas:    []store.Delta{{ID: card.ID, Amount: -p.Amount}},
			PocketDeltas:  []store.Delta{{ID: pocket.ID, Amount: p.Amount}},
			PocketUpdates: []store.PocketUpdate{{ID: pocket.ID, SourceCardID: &sourceID}},
		}
	case Withdraw:
		if pocket.IsLockedAt(date) {
			return s.reject(log.OpTransfer, fmt.Errorf("%w until %s", core.ErrPocketLocked, pocket.LockEnd.Format("2006-01-02")))
		}
		if pocket.Balance < p.Amount {
			return s.reject(log.OpTransfer, &core.InsufficientFundsError{
				Entity: "pocket", ID: pocket.ID, Name: pocket.Name, Shortfall: p.Amount - pocket.Balance,
			})
		}
		if tx.Description == "" {
			tx.Description = fmt.Sprintf("Tarik dari %s", pocket.Name)
		}
		m = store.Mutation{
			PocketDeltas: []store.Delta{{ID: pocket.ID, Amount: -p.Amount}},
			CardDeltas:   []store.Delta{{ID: card.ID, Amount: p.Amount}},
		}
	default:
		return s.reject(log.OpTransfer, fmt.Errorf("invalid transfer direction %q", p.Direction))
	}

	m.Transactions = []core.Transaction{tx}
	if err := s.commit(ctx, log.OpTransfer, m, tx); err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Internal transfer recorded",
		log.FieldTxID, tx.ID,
		log.FieldCardID, card.ID,
		log.FieldPocketID, pocket.ID,
		"direction", string(p.Direction),
		log.FieldAmountCents, p.Amount)
	return tx, nil
}

// CashTopUp moves money from a bank card to the distinguished cash card,
// logged as one "Transfer Internal" transaction against the debited card.
func (s *Service) CashTopUp(ctx context.Context, amount int64, sourceCardID string, date time.Time) (core.Transaction, error) {
	if amount <= 0 {
		return s.reject(log.OpTopUp, core.ErrInvalidAmount)
	}
	source, err := s.store.GetCard(ctx, sourceCardID)
	if err != nil {
		return s.reject(log.OpTopUp, err)
	}
	cash, err := s.store.CashCard(ctx)
	if err != nil {
		return s.reject(log.OpTopUp, err)
	}
	if source.ID == cash.ID {
		return s.reject(log.OpTopUp, core.ErrSameCard)
	}
	if source.Balance < amount {
		return s.reject(log.OpTopUp, &core.InsufficientFundsError{
			Entity: "card", ID: source.ID, Name: source.Name, Shortfall: amount - source.Balance,
		})
	}

	tx := core.Transaction{
		ID:          s.newID(),
		Date:        s.dateOrNow(date),
		Description: fmt.Sprintf("Top up tunai dari %s", source.Name),
		Category:    core.CategoryInternalTransfer,
		Type:        core.TypeExpense,
		Amount:      amount,
		CardID:      source.ID,
	}
	m := store.Mutation{
		CardDeltas: []store.Delta{
			{ID: source.ID, Amount: -amount},
			{ID: cash.ID, Amount: amount},
		},
		Transactions: []core.Transaction{tx},
	}
	if err := s.commit(ctx, log.OpTopUp, m, tx); err != nil {
		return core.Transaction{}, err
	}

	s.logger.InfoContext(ctx, "Cash top up recorded",
		log.FieldTxID, tx.ID,
		log.FieldCardID, source.ID,
		log.FieldAmountCents, amount)
	return tx, nil
}

// commit applies the mutation, updates metrics, and publishes the event.
func (s *Service) commit(ctx context.Context, op string, m store.Mutation, tx core.Transaction) error {
	if err := s.store.Apply(ctx, m); err != nil {
		metrics.ObserveOperation(op, metrics.OutcomeError)
		return fmt.Errorf("apply %s: %w", op, err)
	}
	metrics.ObserveOperation(op, metrics.OutcomeOK)
	metrics.TransactionsCreated.WithLabelValues(string(tx.Type)).Inc()
	s.publish(ctx, tx)
	return nil
}

func (s *Service) publish(ctx context.Context, tx core.Transaction) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTransactionRecorded(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish transaction event",
			log.FieldTxID, tx.ID, log.FieldError, err)
	}
}

func (s *Service) reject(op string, err error) (core.Transaction, error) {
	metrics.ObserveOperation(op, metrics.OutcomeRejected)
	return core.Transaction{}, err
}

func (s *Service) dateOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}
