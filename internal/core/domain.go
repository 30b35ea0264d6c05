package core

import (
	"strings"
	"time"
)

const (
	// PocketSaving is a general-purpose savings pocket.
	PocketSaving PocketKind = "saving"
	// PocketGoal is a savings pocket with a fixed target amount.
	PocketGoal PocketKind = "goal"
	// PocketLocked is a savings pocket that rejects withdrawals until LockEnd.
	PocketLocked PocketKind = "locked"
	// PocketBudget is the recurring monthly operating-budget pocket. At most
	// one pocket of this kind exists at a time.
	PocketBudget PocketKind = "budget"
	// PocketReward is the team reward pool. Its displayed balance is the sum
	// of per-member reward balances; it never participates in transfers.
	PocketReward PocketKind = "reward"
)

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Categories written by the ledger itself rather than supplied by callers.
const (
	CategoryInternalTransfer = "Transfer Internal"
	CategoryBudgetClose      = "Penutupan Anggaran"
)

type (
	PocketKind      string
	TransactionType string

	// Period identifies the month a budget pocket is open for.
	Period struct {
		Year  int
		Month time.Month
	}

	// Card is a bank or cash account with a live balance in minor units.
	// Exactly one card per deployment carries IsCashAccount.
	Card struct {
		ID            string
		Name          string
		Bank          string
		IsCashAccount bool
		Balance       int64
		CreatedAt     time.Time
	}

	// Pocket is an earmarked sub-balance. SourceCardID records which card the
	// pocket's funds physically live in; it is a display relationship kept
	// coherent by transfer operations, not a subtraction from the card.
	Pocket struct {
		ID           string
		Name         string
		Kind         PocketKind
		Balance      int64
		SourceCardID string
		GoalAmount   int64
		LockEnd      time.Time
		Period       Period // set only for the budget pocket
		CreatedAt    time.Time
	}

	// Ref links a transaction to an external business object for attribution,
	// e.g. {Kind: "project", ID: "..."}.
	Ref struct {
		Kind string
		ID   string
	}

	// Transaction is one entry of the append-only money-movement log.
	// Direction is carried by Type plus the unsigned Amount. Only the
	// descriptive fields (Description, Category, Date) may change after
	// creation; amount and account references are immutable.
	Transaction struct {
		ID          string
		Date        time.Time
		Description string
		Category    string
		Type        TransactionType
		Amount      int64
		CardID      string
		PocketID    string
		Ref         Ref
		CreatedAt   time.Time
	}
)

// Before reports whether the period is strictly before the month containing t.
func (p Period) Before(t time.Time) bool {
	if p.Year != t.Year() {
		return p.Year < t.Year()
	}
	return p.Month < t.Month()
}

// Contains reports whether t falls inside the period's month.
func (p Period) Contains(t time.Time) bool {
	return p.Year == t.Year() && p.Month == t.Month()
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (r Ref) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// PeriodOf returns the period of the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

var monthNames = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// MonthName returns the Indonesian name of the period's month.
func (p Period) MonthName() string {
	if p.Month < time.January || p.Month > time.December {
		return ""
	}
	return monthNames[p.Month-1]
}

// IsLockedAt reports whether the pocket still rejects withdrawals at t.
func (p Pocket) IsLockedAt(t time.Time) bool {
	return p.Kind == PocketLocked && t.Before(p.LockEnd)
}

func (c Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.Balance < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (p Pocket) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	switch p.Kind {
	case PocketSaving, PocketGoal, PocketLocked, PocketBudget, PocketReward:
	default:
		return ErrInvalidPocketKind
	}
	if p.Balance < 0 {
		return ErrInvalidAmount
	}
	if p.Kind == PocketGoal && p.GoalAmount <= 0 {
		return ErrInvalidAmount
	}
	if p.Kind == PocketLocked && p.LockEnd.IsZero() {
		return ErrMissingLockEnd
	}
	if p.Kind == PocketBudget && p.Period.IsZero() {
		return ErrMissingPeriod
	}
	return nil
}

func (t Transaction) Validate() error {
	if t.Amount <= 0 {
		return ErrInvalidAmount
	}
	switch t.Type {
	case TypeIncome, TypeExpense:
	default:
		return ErrInvalidTransactionType
	}
	if t.Date.IsZero() {
		return ErrInvalidDate
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}
