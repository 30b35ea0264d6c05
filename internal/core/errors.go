package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the sentinel behind NotFoundError; match with errors.Is.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds is the sentinel behind InsufficientFundsError.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvariant marks a data-integrity bug, not a user error. Operations
	// that hit it must abort without mutating anything.
	ErrInvariant = errors.New("invariant violation")

	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidDate            = errors.New("invalid date")
	ErrEmptyName              = errors.New("empty name")
	ErrDescriptionTooLong     = errors.New("description too long (max 200 characters)")
	ErrInvalidPocketKind      = errors.New("invalid pocket kind")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrMissingLockEnd         = errors.New("locked pocket requires a lock end date")
	ErrMissingPeriod          = errors.New("budget pocket requires a period")

	ErrCashCardExists       = errors.New("a cash card already exists")
	ErrBudgetPocketExists   = errors.New("a recurring budget pocket already exists")
	ErrCashCardProtected    = errors.New("the cash card cannot be deleted")
	ErrCardInUse            = errors.New("card is referenced by transactions")
	ErrPocketNotEmpty       = errors.New("pocket still holds a balance")
	ErrPocketLocked         = errors.New("pocket is locked")
	ErrRewardPocketReadOnly = errors.New("reward pool balance is derived and cannot be moved")
	ErrSameCard             = errors.New("source and destination card are the same")
	ErrInvalidExpenseSource = errors.New("expense source must name a card or a pocket")
	ErrImmutableTransaction = errors.New("transaction amount and accounts cannot be edited")
)

// NotFoundError reports which entity and id could not be resolved.
type NotFoundError struct {
	Entity string // "card", "pocket", "transaction"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound builds a NotFoundError for the given entity and id.
func NewNotFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientFundsError names the first account found short and by how much.
type InsufficientFundsError struct {
	Entity    string // "card" or "pocket"
	ID        string
	Name      string
	Shortfall int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient balance in %s %q: short %d", e.Entity, e.Name, e.Shortfall)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InvariantError wraps ErrInvariant with a description of the broken invariant.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "invariant violation: " + e.Detail
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// Invariantf builds an InvariantError with a formatted detail message.
func Invariantf(format string, args ...any) error {
	return &InvariantError{Detail: fmt.Sprintf(format, args...)}
}
