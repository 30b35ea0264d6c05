package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"dompet/internal/core"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "dompet.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	seedCard(t, s, "bca", "BCA", false)
	seedCard(t, s, "cash", "Tunai", true)
	lockEnd := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	seedPocket(t, s, core.Pocket{
		ID: "depo", Name: "Deposito", Kind: core.PocketLocked,
		SourceCardID: "bca", LockEnd: lockEnd,
	})

	card, err := s.GetCard(ctx, "bca")
	if err != nil || card.Name != "BCA" || card.Balance != 0 {
		t.Fatalf("GetCard = %+v (err=%v)", card, err)
	}
	cash, err := s.CashCard(ctx)
	if err != nil || cash.ID != "cash" {
		t.Fatalf("CashCard = %+v (err=%v)", cash, err)
	}
	pocket, err := s.GetPocket(ctx, "depo")
	if err != nil {
		t.Fatal(err)
	}
	if pocket.SourceCardID != "bca" || !pocket.LockEnd.Equal(lockEnd) {
		t.Fatalf("pocket fields lost on round trip: %+v", pocket)
	}
}

func TestSQLiteStoreApplyCommitsAtomically(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedCard(t, s, "bca", "BCA", false)
	seedPocket(t, s, core.Pocket{ID: "p1", Name: "Dana Darurat", Kind: core.PocketSaving, SourceCardID: "bca"})
	fund(t, s, "bca", 100_000)

	err := s.Apply(ctx, Mutation{
		CardDeltas:   []Delta{{ID: "bca", Amount: -30_000}},
		PocketDeltas: []Delta{{ID: "p1", Amount: 30_000}},
		Transactions: []core.Transaction{{
			ID: "tf1", Date: time.Now(), Type: core.TypeExpense, Amount: 30_000,
			CardID: "bca", PocketID: "p1", Category: core.CategoryInternalTransfer,
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	card, _ := s.GetCard(ctx, "bca")
	pocket, _ := s.GetPocket(ctx, "p1")
	if card.Balance != 70_000 || pocket.Balance != 30_000 {
		t.Fatalf("balances after transfer: card=%d pocket=%d", card.Balance, pocket.Balance)
	}

	// Overdraw the pocket: the card delta in the same mutation must roll back.
	err = s.Apply(ctx, Mutation{
		CardDeltas:   []Delta{{ID: "bca", Amount: 99_000}},
		PocketDeltas: []Delta{{ID: "p1", Amount: -40_000}},
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	card, _ = s.GetCard(ctx, "bca")
	pocket, _ = s.GetPocket(ctx, "p1")
	if card.Balance != 70_000 || pocket.Balance != 30_000 {
		t.Fatalf("failed apply leaked changes: card=%d pocket=%d", card.Balance, pocket.Balance)
	}
}

func TestSQLiteStoreSingletons(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedCard(t, s, "cash", "Tunai", true)
	if err := s.CreateCard(ctx, core.Card{ID: "cash2", Name: "Tunai Kedua", IsCashAccount: true}); !errors.Is(err, core.ErrCashCardExists) {
		t.Fatalf("second cash card: %v", err)
	}

	seedPocket(t, s, core.Pocket{
		ID: "budget", Name: "Anggaran Januari 2024", Kind: core.PocketBudget,
		Period: core.Period{Year: 2024, Month: time.January},
	})
	err := s.CreatePocket(ctx, core.Pocket{
		ID: "budget2", Name: "Anggaran Lain", Kind: core.PocketBudget,
		Period: core.Period{Year: 2024, Month: time.January},
	})
	if !errors.Is(err, core.ErrBudgetPocketExists) {
		t.Fatalf("second budget pocket: %v", err)
	}

	got, err := s.BudgetPocket(ctx)
	if err != nil || got.ID != "budget" || got.Period.Month != time.January {
		t.Fatalf("BudgetPocket = %+v (err=%v)", got, err)
	}
}

func TestSQLiteStoreFiltersAndTotals(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedCard(t, s, "bca", "BCA", false)
	fund(t, s, "bca", 50_000)

	feb := time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC)
	err := s.Apply(ctx, Mutation{
		CardDeltas: []Delta{{ID: "bca", Amount: -2_000}},
		Transactions: []core.Transaction{{
			ID: "t1", Date: feb, Type: core.TypeExpense, Amount: 2_000, CardID: "bca",
			Category: "Transportasi", Ref: core.Ref{Kind: "trip", ID: "bali"},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}

	byRef, err := s.ListTransactions(ctx, TransactionFilter{Ref: core.Ref{Kind: "trip", ID: "bali"}})
	if err != nil || len(byRef) != 1 || byRef[0].ID != "t1" {
		t.Fatalf("ref filter = %+v (err=%v)", byRef, err)
	}
	if !byRef[0].Date.Equal(feb) {
		t.Fatalf("date lost precision: %v", byRef[0].Date)
	}

	total, err := s.TotalAssets(ctx)
	if err != nil || total != 48_000 {
		t.Fatalf("TotalAssets = %d (err=%v), want 48000", total, err)
	}
}

func TestSQLiteStoreUpdateTransactionDetails(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	seedCard(t, s, "bca", "BCA", false)
	fund(t, s, "bca", 10_000)

	desc := "Gaji Februari"
	newDate := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if err := s.UpdateTransactionDetails(ctx, "fund-bca", TransactionDetails{Description: &desc, Date: &newDate}); err != nil {
		t.Fatal(err)
	}
	tx, err := s.GetTransaction(ctx, "fund-bca")
	if err != nil {
		t.Fatal(err)
	}
	if tx.Description != desc || !tx.Date.Equal(newDate) || tx.Amount != 10_000 {
		t.Fatalf("after update = %+v", tx)
	}
}

func TestSQLiteStoreRewards(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	if err := s.SetMemberReward(ctx, "andi", 5_000); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMemberReward(ctx, "andi", 2_500); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMemberReward(ctx, "budi", 1_000); err != nil {
		t.Fatal(err)
	}
	total, err := s.TotalRewards(ctx)
	if err != nil || total != 3_500 {
		t.Fatalf("TotalRewards = %d (err=%v), want 3500", total, err)
	}
}
