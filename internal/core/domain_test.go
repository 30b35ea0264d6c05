package core

import (
	"errors"
	"testing"
	"time"
)

func TestPeriodBefore(t *testing.T) {
	cases := []struct {
		name   string
		period Period
		at     time.Time
		want   bool
	}{
		{"same month", Period{2024, time.March}, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), false},
		{"next month", Period{2024, time.March}, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), true},
		{"next year earlier month", Period{2024, time.December}, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"previous month", Period{2024, time.March}, time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.period.Before(tc.at); got != tc.want {
				t.Fatalf("Before(%v) = %v, want %v", tc.at, got, tc.want)
			}
		})
	}
}

func TestPeriodMonthName(t *testing.T) {
	cases := []struct {
		month time.Month
		want  string
	}{
		{time.January, "Januari"},
		{time.March, "Maret"},
		{time.August, "Agustus"},
		{time.December, "Desember"},
		{time.Month(0), ""},
		{time.Month(13), ""},
	}
	for _, tc := range cases {
		p := Period{Year: 2024, Month: tc.month}
		if got := p.MonthName(); got != tc.want {
			t.Fatalf("MonthName for month %d = %q, want %q", tc.month, got, tc.want)
		}
	}
}

func TestPeriodOf(t *testing.T) {
	p := PeriodOf(time.Date(2024, 3, 31, 23, 59, 0, 0, time.UTC))
	if p.Year != 2024 || p.Month != time.March {
		t.Fatalf("PeriodOf = %+v", p)
	}
	if !p.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("period does not contain its own month")
	}
	if p.Contains(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("period contains the next month")
	}
}

func TestPocketIsLockedAt(t *testing.T) {
	lockEnd := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	locked := Pocket{Kind: PocketLocked, LockEnd: lockEnd}
	if !locked.IsLockedAt(lockEnd.Add(-time.Hour)) {
		t.Fatal("locked pocket reported unlocked before lock end")
	}
	if locked.IsLockedAt(lockEnd) {
		t.Fatal("locked pocket still locked at lock end")
	}
	saving := Pocket{Kind: PocketSaving, LockEnd: lockEnd}
	if saving.IsLockedAt(lockEnd.Add(-time.Hour)) {
		t.Fatal("saving pocket reported locked")
	}
}

func TestPocketValidate(t *testing.T) {
	lockEnd := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		pocket  Pocket
		wantErr error
	}{
		{"valid saving", Pocket{Name: "Dana Darurat", Kind: PocketSaving}, nil},
		{"valid goal", Pocket{Name: "Liburan", Kind: PocketGoal, GoalAmount: 500000}, nil},
		{"valid locked", Pocket{Name: "Deposito", Kind: PocketLocked, LockEnd: lockEnd}, nil},
		{"empty name", Pocket{Name: "  ", Kind: PocketSaving}, ErrEmptyName},
		{"unknown kind", Pocket{Name: "X", Kind: "checking"}, ErrInvalidPocketKind},
		{"goal without target", Pocket{Name: "Liburan", Kind: PocketGoal}, ErrInvalidAmount},
		{"locked without end", Pocket{Name: "Deposito", Kind: PocketLocked}, ErrMissingLockEnd},
		{"budget without period", Pocket{Name: "Anggaran", Kind: PocketBudget}, ErrMissingPeriod},
		{"negative balance", Pocket{Name: "X", Kind: PocketSaving, Balance: -1}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.pocket.Validate()
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	valid := Transaction{Amount: 100, Type: TypeExpense, Date: date}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Transaction)
		wantErr error
	}{
		{"zero amount", func(tx *Transaction) { tx.Amount = 0 }, ErrInvalidAmount},
		{"negative amount", func(tx *Transaction) { tx.Amount = -50 }, ErrInvalidAmount},
		{"bad type", func(tx *Transaction) { tx.Type = "refund" }, ErrInvalidTransactionType},
		{"zero date", func(tx *Transaction) { tx.Date = time.Time{} }, ErrInvalidDate},
		{"long description", func(tx *Transaction) {
			for i := 0; i < 201; i++ {
				tx.Description += "x"
			}
		}, ErrDescriptionTooLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := valid
			tc.mutate(&tx)
			if err := tx.Validate(); !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestErrorSentinels(t *testing.T) {
	if !errors.Is(NewNotFound("card", "abc"), ErrNotFound) {
		t.Fatal("NotFoundError does not unwrap to ErrNotFound")
	}
	ife := &InsufficientFundsError{Entity: "pocket", ID: "p1", Name: "Dana", Shortfall: 500}
	if !errors.Is(ife, ErrInsufficientFunds) {
		t.Fatal("InsufficientFundsError does not unwrap to ErrInsufficientFunds")
	}
	if !errors.Is(Invariantf("cash card missing"), ErrInvariant) {
		t.Fatal("InvariantError does not unwrap to ErrInvariant")
	}
}

func TestExpenseSource(t *testing.T) {
	if err := CardSource("c1").Validate(); err != nil {
		t.Fatalf("card source rejected: %v", err)
	}
	if err := PocketSource("p1").Validate(); err != nil {
		t.Fatalf("pocket source rejected: %v", err)
	}
	var zero ExpenseSource
	if err := zero.Validate(); !errors.Is(err, ErrInvalidExpenseSource) {
		t.Fatalf("zero source accepted: %v", err)
	}
	if err := CardSource("").Validate(); !errors.Is(err, ErrInvalidExpenseSource) {
		t.Fatal("empty card id accepted")
	}
	if !CardSource("c1").IsCard() || PocketSource("p1").IsCard() {
		t.Fatal("source kind predicates wrong")
	}
}
