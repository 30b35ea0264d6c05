package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"dompet/internal/core"
)

func seedCard(t *testing.T, s Store, id, name string, cash bool) core.Card {
	t.Helper()
	c := core.Card{ID: id, Name: name, IsCashAccount: cash, CreatedAt: time.Now()}
	if err := s.CreateCard(context.Background(), c); err != nil {
		t.Fatalf("create card %s: %v", id, err)
	}
	c.Balance = 0
	return c
}

func seedPocket(t *testing.T, s Store, p core.Pocket) core.Pocket {
	t.Helper()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if err := s.CreatePocket(context.Background(), p); err != nil {
		t.Fatalf("create pocket %s: %v", p.ID, err)
	}
	p.Balance = 0
	return p
}

func fund(t *testing.T, s Store, cardID string, amount int64) {
	t.Helper()
	err := s.Apply(context.Background(), Mutation{
		CardDeltas: []Delta{{ID: cardID, Amount: amount}},
		Transactions: []core.Transaction{{
			ID: "fund-" + cardID, Date: time.Now(), Type: core.TypeIncome,
			Amount: amount, CardID: cardID, Category: "Gaji",
		}},
	})
	if err != nil {
		t.Fatalf("fund card %s: %v", cardID, err)
	}
}

func TestMemoryStoreCardsStartEmpty(t *testing.T) {
	s := NewMemoryStore()
	seedCard(t, s, "c1", "BCA", false)

	got, err := s.GetCard(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 0 {
		t.Fatalf("new card balance = %d, want 0", got.Balance)
	}
	total, err := s.TotalAssets(context.Background())
	if err != nil || total != 0 {
		t.Fatalf("TotalAssets = %d (err=%v), want 0", total, err)
	}
}

func TestMemoryStoreCashCardSingleton(t *testing.T) {
	s := NewMemoryStore()
	seedCard(t, s, "c1", "Tunai", true)

	err := s.CreateCard(context.Background(), core.Card{ID: "c2", Name: "Tunai Kedua", IsCashAccount: true})
	if !errors.Is(err, core.ErrCashCardExists) {
		t.Fatalf("second cash card: got %v, want ErrCashCardExists", err)
	}

	cash, err := s.CashCard(context.Background())
	if err != nil || cash.ID != "c1" {
		t.Fatalf("CashCard = %+v (err=%v)", cash, err)
	}
}

func TestMemoryStoreBudgetPocketSingleton(t *testing.T) {
	s := NewMemoryStore()
	period := core.Period{Year: 2024, Month: time.January}
	seedPocket(t, s, core.Pocket{ID: "p1", Name: "Anggaran Januari 2024", Kind: core.PocketBudget, Period: period})

	err := s.CreatePocket(context.Background(), core.Pocket{
		ID: "p2", Name: "Anggaran Lain", Kind: core.PocketBudget, Period: period,
	})
	if !errors.Is(err, core.ErrBudgetPocketExists) {
		t.Fatalf("second budget pocket: got %v, want ErrBudgetPocketExists", err)
	}

	got, err := s.BudgetPocket(context.Background())
	if err != nil || got.ID != "p1" {
		t.Fatalf("BudgetPocket = %+v (err=%v)", got, err)
	}
}

func TestMemoryStoreApplyAtomicity(t *testing.T) {
	s := NewMemoryStore()
	seedCard(t, s, "c1", "BCA", false)
	seedCard(t, s, "c2", "Mandiri", false)
	fund(t, s, "c1", 50_000)

	// The second delta overdraws c2, so the whole mutation must be rejected
	// with c1 untouched and no transaction appended.
	err := s.Apply(context.Background(), Mutation{
		CardDeltas: []Delta{
			{ID: "c1", Amount: -10_000},
			{ID: "c2", Amount: -1},
		},
		Transactions: []core.Transaction{{
			ID: "t-fail", Date: time.Now(), Type: core.TypeExpense, Amount: 10_000, CardID: "c1",
		}},
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}

	c1, _ := s.GetCard(context.Background(), "c1")
	if c1.Balance != 50_000 {
		t.Fatalf("c1 balance after failed apply = %d, want 50000", c1.Balance)
	}
	if _, err := s.GetTransaction(context.Background(), "t-fail"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("failed mutation left a transaction behind: %v", err)
	}
}

func TestMemoryStoreApplyUnknownAccount(t *testing.T) {
	s := NewMemoryStore()
	err := s.Apply(context.Background(), Mutation{CardDeltas: []Delta{{ID: "ghost", Amount: 100}}})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	var nf *core.NotFoundError
	if !errors.As(err, &nf) || nf.Entity != "card" || nf.ID != "ghost" {
		t.Fatalf("NotFoundError detail = %+v", nf)
	}
}

func TestMemoryStoreApplyNewPocketAndUpdate(t *testing.T) {
	s := NewMemoryStore()
	seedPocket(t, s, core.Pocket{
		ID: "budget", Name: "Anggaran Januari 2024", Kind: core.PocketBudget,
		Period: core.Period{Year: 2024, Month: time.January},
	})
	newName := "Anggaran Maret 2024"
	newPeriod := core.Period{Year: 2024, Month: time.March}
	err := s.Apply(context.Background(), Mutation{
		NewPockets: []core.Pocket{{
			ID: "sisa", Name: "Sisa Anggaran Januari 2024", Kind: core.PocketSaving, Balance: 7_500,
		}},
		PocketUpdates: []PocketUpdate{{ID: "budget", Name: &newName, Period: &newPeriod}},
	})
	if err != nil {
		t.Fatal(err)
	}

	sisa, err := s.GetPocket(context.Background(), "sisa")
	if err != nil || sisa.Balance != 7_500 {
		t.Fatalf("spun-off pocket = %+v (err=%v)", sisa, err)
	}
	budget, _ := s.GetPocket(context.Background(), "budget")
	if budget.Name != newName || budget.Period != newPeriod {
		t.Fatalf("budget pocket after update = %+v", budget)
	}
}

func TestMemoryStoreDeleteRules(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCard(t, s, "cash", "Tunai", true)
	seedCard(t, s, "bca", "BCA", false)
	seedCard(t, s, "idle", "Jago", false)
	seedPocket(t, s, core.Pocket{ID: "p1", Name: "Dana Darurat", Kind: core.PocketSaving, SourceCardID: "bca"})
	seedPocket(t, s, core.Pocket{
		ID: "budget", Name: "Anggaran Januari 2024", Kind: core.PocketBudget,
		Period: core.Period{Year: 2024, Month: time.January},
	})
	fund(t, s, "bca", 10_000)

	if err := s.DeleteCard(ctx, "cash"); !errors.Is(err, core.ErrCashCardProtected) {
		t.Fatalf("delete cash card: %v", err)
	}
	if err := s.DeleteCard(ctx, "bca"); !errors.Is(err, core.ErrCardInUse) {
		t.Fatalf("delete referenced card: %v", err)
	}
	if err := s.DeleteCard(ctx, "idle"); err != nil {
		t.Fatalf("delete idle card: %v", err)
	}
	if err := s.DeletePocket(ctx, "budget"); !errors.Is(err, core.ErrInvariant) {
		t.Fatalf("delete budget pocket: %v", err)
	}

	if err := s.Apply(ctx, Mutation{PocketDeltas: []Delta{{ID: "p1", Amount: 500}}}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePocket(ctx, "p1"); !errors.Is(err, core.ErrPocketNotEmpty) {
		t.Fatalf("delete funded pocket: %v", err)
	}
	if err := s.Apply(ctx, Mutation{PocketDeltas: []Delta{{ID: "p1", Amount: -500}}}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeletePocket(ctx, "p1"); err != nil {
		t.Fatalf("delete drained pocket: %v", err)
	}
}

func TestMemoryStoreTransactionFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCard(t, s, "c1", "BCA", false)
	fund(t, s, "c1", 100_000)

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	txs := []core.Transaction{
		{ID: "t1", Date: jan, Type: core.TypeExpense, Amount: 1000, CardID: "c1", Category: "Makan"},
		{ID: "t2", Date: feb, Type: core.TypeExpense, Amount: 2000, CardID: "c1", Category: "Transportasi",
			Ref: core.Ref{Kind: "trip", ID: "bali"}},
		{ID: "t3", Date: feb, Type: core.TypeIncome, Amount: 3000, CardID: "c1", Category: "Proyek",
			Ref: core.Ref{Kind: "trip", ID: "bali"}},
	}
	for _, tx := range txs {
		m := Mutation{Transactions: []core.Transaction{tx}}
		delta := tx.Amount
		if tx.Type == core.TypeExpense {
			delta = -delta
		}
		m.CardDeltas = []Delta{{ID: "c1", Amount: delta}}
		if err := s.Apply(ctx, m); err != nil {
			t.Fatalf("apply %s: %v", tx.ID, err)
		}
	}

	byCategory, err := s.ListTransactions(ctx, TransactionFilter{Category: "Makan"})
	if err != nil || len(byCategory) != 1 || byCategory[0].ID != "t1" {
		t.Fatalf("category filter = %+v (err=%v)", byCategory, err)
	}
	byRef, err := s.ListTransactions(ctx, TransactionFilter{Ref: core.Ref{Kind: "trip", ID: "bali"}})
	if err != nil || len(byRef) != 2 {
		t.Fatalf("ref filter returned %d, want 2 (err=%v)", len(byRef), err)
	}
	byRange, err := s.ListTransactions(ctx, TransactionFilter{
		From: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC),
		Type: core.TypeExpense,
	})
	if err != nil || len(byRange) != 1 || byRange[0].ID != "t2" {
		t.Fatalf("range filter = %+v (err=%v)", byRange, err)
	}
}

func TestMemoryStoreUpdateTransactionDetails(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedCard(t, s, "c1", "BCA", false)
	fund(t, s, "c1", 10_000)

	desc := "Makan siang tim"
	cat := "Makan"
	if err := s.UpdateTransactionDetails(ctx, "fund-c1", TransactionDetails{Description: &desc, Category: &cat}); err != nil {
		t.Fatal(err)
	}
	tx, _ := s.GetTransaction(ctx, "fund-c1")
	if tx.Description != desc || tx.Category != cat {
		t.Fatalf("after update = %+v", tx)
	}
	if tx.Amount != 10_000 {
		t.Fatalf("amount changed: %d", tx.Amount)
	}

	if err := s.UpdateTransactionDetails(ctx, "ghost", TransactionDetails{Description: &desc}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update unknown transaction: %v", err)
	}
}

func TestMemoryStoreRewards(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedPocket(t, s, core.Pocket{ID: "reward", Name: "Pool Hadiah", Kind: core.PocketReward})
	seedPocket(t, s, core.Pocket{ID: "p1", Name: "Dana Darurat", Kind: core.PocketSaving})

	if err := s.SetMemberReward(ctx, "andi", 5_000); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMemberReward(ctx, "budi", 3_000); err != nil {
		t.Fatal(err)
	}
	if err := s.SetMemberReward(ctx, "andi", 4_000); err != nil {
		t.Fatal(err)
	}
	total, err := s.TotalRewards(ctx)
	if err != nil || total != 7_000 {
		t.Fatalf("TotalRewards = %d (err=%v), want 7000", total, err)
	}
	if err := s.SetMemberReward(ctx, "cici", -1); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("negative reward: %v", err)
	}

	if err := s.Apply(ctx, Mutation{PocketDeltas: []Delta{{ID: "p1", Amount: 1_000}}}); err != nil {
		t.Fatal(err)
	}
	pocketsTotal, err := s.PocketsTotal(ctx)
	if err != nil || pocketsTotal != 1_000 {
		t.Fatalf("PocketsTotal = %d (err=%v), want 1000 (reward pool excluded)", pocketsTotal, err)
	}
}
