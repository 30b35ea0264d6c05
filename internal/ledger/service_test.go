package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"dompet/internal/core"
	"dompet/internal/store"
)

type capturedEvents struct {
	transactions []core.Transaction
	closes       []*BudgetClosedEvent
	fail         bool
}

func (c *capturedEvents) PublishTransactionRecorded(ctx context.Context, tx core.Transaction) error {
	if c.fail {
		return errors.New("broker down")
	}
	c.transactions = append(c.transactions, tx)
	return nil
}

func (c *capturedEvents) PublishBudgetClosed(ctx context.Context, msg *BudgetClosedEvent) error {
	if c.fail {
		return errors.New("broker down")
	}
	c.closes = append(c.closes, msg)
	return nil
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *capturedEvents) {
	t.Helper()
	st := store.NewMemoryStore()
	events := &capturedEvents{}
	svc := NewService(st, events, nil)
	var seq int
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	svc.now = func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }
	return svc, st, events
}

func mustCreateCard(t *testing.T, svc *Service, name string, cash bool) core.Card {
	t.Helper()
	card, err := svc.CreateCard(context.Background(), CardParams{Name: name, IsCashAccount: cash})
	if err != nil {
		t.Fatalf("create card %s: %v", name, err)
	}
	return card
}

func mustIncome(t *testing.T, svc *Service, cardID string, amount int64) {
	t.Helper()
	_, err := svc.RecordIncome(context.Background(), IncomeParams{Amount: amount, CardID: cardID, Category: "Gaji"})
	if err != nil {
		t.Fatalf("record income: %v", err)
	}
}

func totalAssets(t *testing.T, st store.Store) int64 {
	t.Helper()
	total, err := st.TotalAssets(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return total
}

func TestRecordIncome(t *testing.T) {
	ctx := context.Background()
	svc, st, events := newTestService(t)
	card := mustCreateCard(t, svc, "BCA", false)

	tx, err := svc.RecordIncome(ctx, IncomeParams{
		Amount: 2_500_000, CardID: card.ID, Category: "Gaji", Description: "Gaji Maret",
		Ref: core.Ref{Kind: "project", ID: "alpha"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx.Type != core.TypeIncome || tx.Amount != 2_500_000 || tx.CardID != card.ID {
		t.Fatalf("transaction = %+v", tx)
	}
	got, _ := st.GetCard(ctx, card.ID)
	if got.Balance != 2_500_000 {
		t.Fatalf("card balance = %d", got.Balance)
	}
	if len(events.transactions) != 1 || events.transactions[0].ID != tx.ID {
		t.Fatalf("published events = %+v", events.transactions)
	}

	if _, err := svc.RecordIncome(ctx, IncomeParams{Amount: 0, CardID: card.ID}); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("zero amount: %v", err)
	}
	if _, err := svc.RecordIncome(ctx, IncomeParams{Amount: 100, CardID: "ghost"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("unknown card: %v", err)
	}
}

func TestRecordExpenseFromCard(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	card := mustCreateCard(t, svc, "BCA", false)
	mustIncome(t, svc, card.ID, 100_000)

	tx, err := svc.RecordExpense(ctx, ExpenseParams{
		Amount: 30_000, Source: core.CardSource(card.ID), Category: "Makan",
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx.CardID != card.ID || tx.PocketID != "" {
		t.Fatalf("transaction accounts = %+v", tx)
	}
	got, _ := st.GetCard(ctx, card.ID)
	if got.Balance != 70_000 {
		t.Fatalf("card balance = %d", got.Balance)
	}

	_, err = svc.RecordExpense(ctx, ExpenseParams{Amount: 70_001, Source: core.CardSource(card.ID)})
	var short *core.InsufficientFundsError
	if !errors.As(err, &short) || short.Entity != "card" || short.Shortfall != 1 {
		t.Fatalf("overdraw: %v", err)
	}
	got, _ = st.GetCard(ctx, card.ID)
	if got.Balance != 70_000 {
		t.Fatalf("rejected expense moved money: %d", got.Balance)
	}
}

func TestRecordExpenseFromPocketDebitsBothBalances(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	card := mustCreateCard(t, svc, "BCA", false)
	mustIncome(t, svc, card.ID, 100_000)
	pocket, err := svc.CreatePocket(ctx, PocketParams{Name: "Dana Darurat", Kind: core.PocketSaving, SourceCardID: card.ID})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transfer(ctx, TransferParams{
		Amount: 40_000, CardID: card.ID, PocketID: pocket.ID, Direction: Deposit,
	}); err != nil {
		t.Fatal(err)
	}

	tx, err := svc.RecordExpense(ctx, ExpenseParams{
		Amount: 15_000, Source: core.PocketSource(pocket.ID), Category: "Darurat",
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx.PocketID != pocket.ID || tx.CardID != card.ID {
		t.Fatalf("transaction should reference pocket and backing card: %+v", tx)
	}
	gotPocket, _ := st.GetPocket(ctx, pocket.ID)
	gotCard, _ := st.GetCard(ctx, card.ID)
	if gotPocket.Balance != 25_000 {
		t.Fatalf("pocket balance = %d, want 25000", gotPocket.Balance)
	}
	// Card was already down 40000 from the deposit; the pocket expense takes
	// another 15000 off the same card.
	if gotCard.Balance != 45_000 {
		t.Fatalf("card balance = %d, want 45000", gotCard.Balance)
	}

	// The pocket holds 25000; the card still covers 26000, so the rejection
	// must name the pocket.
	_, err = svc.RecordExpense(ctx, ExpenseParams{Amount: 26_000, Source: core.PocketSource(pocket.ID)})
	var short *core.InsufficientFundsError
	if !errors.As(err, &short) || short.Entity != "pocket" {
		t.Fatalf("pocket overdraw: %v", err)
	}
}

func TestRecordExpenseRejectsLockedAndRewardPockets(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	lockEnd := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	locked, err := svc.CreatePocket(ctx, PocketParams{Name: "Deposito", Kind: core.PocketLocked, LockEnd: lockEnd})
	if err != nil {
		t.Fatal(err)
	}
	reward, err := svc.CreatePocket(ctx, PocketParams{Name: "Pool Hadiah", Kind: core.PocketReward})
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.RecordExpense(ctx, ExpenseParams{Amount: 100, Source: core.PocketSource(locked.ID)})
	if !errors.Is(err, core.ErrPocketLocked) {
		t.Fatalf("locked pocket expense: %v", err)
	}
	_, err = svc.RecordExpense(ctx, ExpenseParams{Amount: 100, Source: core.PocketSource(reward.ID)})
	if !errors.Is(err, core.ErrRewardPocketReadOnly) {
		t.Fatalf("reward pocket expense: %v", err)
	}
}

func TestTransferDepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	card := mustCreateCard(t, svc, "BCA", false)
	mustIncome(t, svc, card.ID, 100_000)
	pocket, err := svc.CreatePocket(ctx, PocketParams{Name: "Liburan", Kind: core.PocketGoal, GoalAmount: 1_000_000})
	if err != nil {
		t.Fatal(err)
	}

	before := totalAssets(t, st)
	tx, err := svc.Transfer(ctx, TransferParams{
		Amount: 25_000, CardID: card.ID, PocketID: pocket.ID, Direction: Deposit,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx.Category != core.CategoryInternalTransfer || tx.Type != core.TypeExpense {
		t.Fatalf("transfer transaction = %+v", tx)
	}
	if tx.Description != "Setor ke Liburan" {
		t.Fatalf("default description = %q", tx.Description)
	}
	gotPocket, _ := st.GetPocket(ctx, pocket.ID)
	if gotPocket.Balance != 25_000 || gotPocket.SourceCardID != card.ID {
		t.Fatalf("pocket after deposit = %+v", gotPocket)
	}
	if after := totalAssets(t, st); after != before-25_000 {
		t.Fatalf("deposit moved assets: %d -> %d", before, after)
	}

	tx, err = svc.Transfer(ctx, TransferParams{
		Amount: 10_000, CardID: card.ID, PocketID: pocket.ID, Direction: Withdraw,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tx.Description != "Tarik dari Liburan" {
		t.Fatalf("default description = %q", tx.Description)
	}
	gotPocket, _ = st.GetPocket(ctx, pocket.ID)
	gotCard, _ := st.GetCard(ctx, card.ID)
	if gotPocket.Balance != 15_000 || gotCard.Balance != 85_000 {
		t.Fatalf("after withdraw: pocket=%d card=%d", gotPocket.Balance, gotCard.Balance)
	}

	_, err = svc.Transfer(ctx, TransferParams{
		Amount: 100_000, CardID: card.ID, PocketID: pocket.ID, Direction: Withdraw,
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("pocket overdraw on withdraw: %v", err)
	}
}

func TestTransferRejectsLockedWithdrawAndRewardPocket(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	card := mustCreateCard(t, svc, "BCA", false)
	mustIncome(t, svc, card.ID, 100_000)

	lockEnd := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	locked, err := svc.CreatePocket(ctx, PocketParams{Name: "Deposito", Kind: core.PocketLocked, LockEnd: lockEnd})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Transfer(ctx, TransferParams{
		Amount: 20_000, CardID: card.ID, PocketID: locked.ID, Direction: Deposit,
	}); err != nil {
		t.Fatalf("deposits into a locked pocket must be allowed: %v", err)
	}
	_, err = svc.Transfer(ctx, TransferParams{
		Amount: 5_000, CardID: card.ID, PocketID: locked.ID, Direction: Withdraw,
	})
	if !errors.Is(err, core.ErrPocketLocked) {
		t.Fatalf("locked withdraw: %v", err)
	}

	reward, err := svc.CreatePocket(ctx, PocketParams{Name: "Pool Hadiah", Kind: core.PocketReward})
	if err != nil {
		t.Fatal(err)
	}
	_, err = svc.Transfer(ctx, TransferParams{
		Amount: 5_000, CardID: card.ID, PocketID: reward.ID, Direction: Deposit,
	})
	if !errors.Is(err, core.ErrRewardPocketReadOnly) {
		t.Fatalf("reward deposit: %v", err)
	}
}

func TestCashTopUp(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := newTestService(t)
	bank := mustCreateCard(t, svc, "BCA", false)
	cash := mustCreateCard(t, svc, "Tunai", true)
	mustIncome(t, svc, bank.ID, 500_000)
	mustIncome(t, svc, cash.ID, 100_000)

	before := totalAssets(t, st)
	tx, err := svc.CashTopUp(ctx, 200_000, bank.ID, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	gotBank, _ := st.GetCard(ctx, bank.ID)
	gotCash, _ := st.GetCard(ctx, cash.ID)
	if gotBank.Balance != 300_000 || gotCash.Balance != 300_000 {
		t.Fatalf("after top up: bank=%d cash=%d", gotBank.Balance, gotCash.Balance)
	}
	if after := totalAssets(t, st); after != before {
		t.Fatalf("top up changed total assets: %d -> %d", before, after)
	}
	if tx.CardID != bank.ID || tx.Category != core.CategoryInternalTransfer {
		t.Fatalf("top up transaction = %+v", tx)
	}
	if tx.Description != "Top up tunai dari BCA" {
		t.Fatalf("description = %q", tx.Description)
	}

	if _, err := svc.CashTopUp(ctx, 1_000_000, bank.ID, time.Time{}); !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("overdraw top up: %v", err)
	}
	if _, err := svc.CashTopUp(ctx, 1_000, cash.ID, time.Time{}); !errors.Is(err, core.ErrSameCard) {
		t.Fatalf("top up from cash card: %v", err)
	}
}

func TestCashTopUpWithoutCashCard(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)
	bank := mustCreateCard(t, svc, "BCA", false)
	mustIncome(t, svc, bank.ID, 50_000)

	if _, err := svc.CashTopUp(ctx, 10_000, bank.ID, time.Time{}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("top up with no cash card: %v", err)
	}
}

func TestEventPublishFailureDoesNotFailOperation(t *testing.T) {
	ctx := context.Background()
	svc, st, events := newTestService(t)
	events.fail = true
	card := mustCreateCard(t, svc, "BCA", false)

	if _, err := svc.RecordIncome(ctx, IncomeParams{Amount: 1_000, CardID: card.ID}); err != nil {
		t.Fatalf("income failed because of broker: %v", err)
	}
	got, _ := st.GetCard(ctx, card.ID)
	if got.Balance != 1_000 {
		t.Fatalf("balance = %d", got.Balance)
	}
}

func TestBudgetPocketCreationRendersName(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	pocket, err := svc.CreatePocket(ctx, PocketParams{Name: "Anggaran Operasional", Kind: core.PocketBudget})
	if err != nil {
		t.Fatal(err)
	}
	if pocket.Name != "Anggaran Operasional Maret 2024" {
		t.Fatalf("budget pocket name = %q", pocket.Name)
	}
	if pocket.Period != (core.Period{Year: 2024, Month: time.March}) {
		t.Fatalf("budget pocket period = %+v", pocket.Period)
	}
}
