package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dompet/internal/core"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS cards (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    bank       TEXT NOT NULL DEFAULT '',
    is_cash    BOOLEAN NOT NULL DEFAULT FALSE,
    balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cards_cash ON cards (is_cash) WHERE is_cash;

CREATE TABLE IF NOT EXISTS pockets (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    kind           TEXT NOT NULL,
    balance        BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
    source_card_id TEXT,
    goal_amount    BIGINT NOT NULL DEFAULT 0,
    lock_end       TIMESTAMPTZ,
    period_year    INT NOT NULL DEFAULT 0,
    period_month   INT NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_pockets_budget ON pockets (kind) WHERE kind = 'budget';

CREATE TABLE IF NOT EXISTS transactions (
    id          TEXT PRIMARY KEY,
    date        TIMESTAMPTZ NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category    TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL CHECK (type IN ('income', 'expense')),
    amount      BIGINT NOT NULL CHECK (amount > 0),
    card_id     TEXT,
    pocket_id   TEXT,
    ref_kind    TEXT NOT NULL DEFAULT '',
    ref_id      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions (date);
CREATE INDEX IF NOT EXISTS idx_transactions_card ON transactions (card_id);
CREATE INDEX IF NOT EXISTS idx_transactions_pocket ON transactions (pocket_id);
CREATE INDEX IF NOT EXISTS idx_transactions_category ON transactions (category);

CREATE TABLE IF NOT EXISTS member_rewards (
    member     TEXT PRIMARY KEY,
    amount     BIGINT NOT NULL DEFAULT 0 CHECK (amount >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresStore persists the ledger in Postgres through a pgx pool. Apply
// runs inside one database transaction with row locks taken in a fixed
// order, so even a multi-process deployment cannot interleave two mutations
// or survive a crash with balances out of step with the log.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateCard(ctx context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.IsCashAccount {
		var n int
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cards WHERE is_cash`).Scan(&n); err != nil {
			return fmt.Errorf("count cash cards: %w", err)
		}
		if n > 0 {
			return core.ErrCashCardExists
		}
	}
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cards (id, name, bank, is_cash, balance, created_at) VALUES ($1, $2, $3, $4, 0, $5)`,
		c.ID, c.Name, c.Bank, c.IsCashAccount, createdAt)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (s *PostgresStore) getCard(ctx context.Context, q pgxQuerier, id string) (core.Card, error) {
	var c core.Card
	err := q.QueryRow(ctx,
		`SELECT id, name, bank, is_cash, balance, created_at FROM cards WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Bank, &c.IsCashAccount, &c.Balance, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Card{}, core.NewNotFound("card", id)
	}
	if err != nil {
		return core.Card{}, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetCard(ctx context.Context, id string) (core.Card, error) {
	return s.getCard(ctx, s.pool, id)
}

func (s *PostgresStore) CashCard(ctx context.Context) (core.Card, error) {
	var c core.Card
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, bank, is_cash, balance, created_at FROM cards WHERE is_cash`).
		Scan(&c.ID, &c.Name, &c.Bank, &c.IsCashAccount, &c.Balance, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Card{}, core.NewNotFound("card", "cash")
	}
	if err != nil {
		return core.Card{}, fmt.Errorf("get cash card: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListCards(ctx context.Context) ([]core.Card, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, bank, is_cash, balance, created_at FROM cards ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []core.Card
	for rows.Next() {
		var c core.Card
		if err := rows.Scan(&c.ID, &c.Name, &c.Bank, &c.IsCashAccount, &c.Balance, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteCard(ctx context.Context, id string) error {
	c, err := s.GetCard(ctx, id)
	if err != nil {
		return err
	}
	if c.IsCashAccount {
		return core.ErrCashCardProtected
	}
	var refs int
	err = s.pool.QueryRow(ctx,
		`SELECT (SELECT COUNT(*) FROM transactions WHERE card_id = $1) +
		        (SELECT COUNT(*) FROM pockets WHERE source_card_id = $1)`, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("count card references: %w", err)
	}
	if refs > 0 {
		return core.ErrCardInUse
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreatePocket(ctx context.Context, p core.Pocket) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Kind == core.PocketBudget {
		var n int
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pockets WHERE kind = 'budget'`).Scan(&n); err != nil {
			return fmt.Errorf("count budget pockets: %w", err)
		}
		if n > 0 {
			return core.ErrBudgetPocketExists
		}
	}
	if p.SourceCardID != "" {
		if _, err := s.GetCard(ctx, p.SourceCardID); err != nil {
			return err
		}
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pockets (id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at)
		 VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Name, string(p.Kind), pgNullString(p.SourceCardID), p.GoalAmount,
		pgNullTime(p.LockEnd), p.Period.Year, int(p.Period.Month), createdAt)
	if err != nil {
		return fmt.Errorf("insert pocket: %w", err)
	}
	return nil
}

func (s *PostgresStore) getPocket(ctx context.Context, q pgxQuerier, query string, args ...any) (core.Pocket, error) {
	var p core.Pocket
	var sourceCard *string
	var lockEnd *time.Time
	var periodMonth int
	err := q.QueryRow(ctx, query, args...).
		Scan(&p.ID, &p.Name, &p.Kind, &p.Balance, &sourceCard, &p.GoalAmount,
			&lockEnd, &p.Period.Year, &periodMonth, &p.CreatedAt)
	if err != nil {
		return core.Pocket{}, err
	}
	if sourceCard != nil {
		p.SourceCardID = *sourceCard
	}
	if lockEnd != nil {
		p.LockEnd = *lockEnd
	}
	p.Period.Month = time.Month(periodMonth)
	return p, nil
}

const pgPocketColumns = `id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at`

func (s *PostgresStore) GetPocket(ctx context.Context, id string) (core.Pocket, error) {
	p, err := s.getPocket(ctx, s.pool, `SELECT `+pgPocketColumns+` FROM pockets WHERE id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Pocket{}, core.NewNotFound("pocket", id)
	}
	if err != nil {
		return core.Pocket{}, fmt.Errorf("get pocket: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) BudgetPocket(ctx context.Context) (core.Pocket, error) {
	p, err := s.getPocket(ctx, s.pool, `SELECT `+pgPocketColumns+` FROM pockets WHERE kind = 'budget'`)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Pocket{}, core.NewNotFound("pocket", "budget")
	}
	if err != nil {
		return core.Pocket{}, fmt.Errorf("get budget pocket: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPockets(ctx context.Context) ([]core.Pocket, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgPocketColumns+` FROM pockets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pockets: %w", err)
	}
	defer rows.Close()

	var out []core.Pocket
	for rows.Next() {
		var p core.Pocket
		var sourceCard *string
		var lockEnd *time.Time
		var periodMonth int
		if err := rows.Scan(&p.ID, &p.Name, &p.Kind, &p.Balance, &sourceCard, &p.GoalAmount,
			&lockEnd, &p.Period.Year, &periodMonth, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pocket: %w", err)
		}
		if sourceCard != nil {
			p.SourceCardID = *sourceCard
		}
		if lockEnd != nil {
			p.LockEnd = *lockEnd
		}
		p.Period.Month = time.Month(periodMonth)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeletePocket(ctx context.Context, id string) error {
	p, err := s.GetPocket(ctx, id)
	if err != nil {
		return err
	}
	if p.Kind == core.PocketBudget {
		return core.Invariantf("budget pocket %s is recycled, never deleted", id)
	}
	if p.Balance != 0 {
		return core.ErrPocketNotEmpty
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM pockets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete pocket: %w", err)
	}
	return nil
}

// Apply locks the touched rows in deterministic order (cards before pockets,
// ids ascending) before validating balances, the same deadlock-avoidance
// discipline a transfer service needs even though the ledger expects a
// single writer.
func (s *PostgresStore) Apply(ctx context.Context, m Mutation) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin apply tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, d := range sortedDeltas(m.CardDeltas) {
		var name string
		var balance int64
		err := tx.QueryRow(ctx, `SELECT name, balance FROM cards WHERE id = $1 FOR UPDATE`, d.ID).Scan(&name, &balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NewNotFound("card", d.ID)
		}
		if err != nil {
			return fmt.Errorf("lock card: %w", err)
		}
		next := balance + d.Amount
		if next < 0 {
			return &core.InsufficientFundsError{Entity: "card", ID: d.ID, Name: name, Shortfall: -next}
		}
		if _, err := tx.Exec(ctx, `UPDATE cards SET balance = $1 WHERE id = $2`, next, d.ID); err != nil {
			return fmt.Errorf("update card balance: %w", err)
		}
	}
	for _, d := range sortedDeltas(m.PocketDeltas) {
		var name string
		var balance int64
		err := tx.QueryRow(ctx, `SELECT name, balance FROM pockets WHERE id = $1 FOR UPDATE`, d.ID).Scan(&name, &balance)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NewNotFound("pocket", d.ID)
		}
		if err != nil {
			return fmt.Errorf("lock pocket: %w", err)
		}
		next := balance + d.Amount
		if next < 0 {
			return &core.InsufficientFundsError{Entity: "pocket", ID: d.ID, Name: name, Shortfall: -next}
		}
		if _, err := tx.Exec(ctx, `UPDATE pockets SET balance = $1 WHERE id = $2`, next, d.ID); err != nil {
			return fmt.Errorf("update pocket balance: %w", err)
		}
	}
	for _, p := range m.NewPockets {
		if err := p.Validate(); err != nil {
			return err
		}
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO pockets (id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, p.Name, string(p.Kind), p.Balance, pgNullString(p.SourceCardID), p.GoalAmount,
			pgNullTime(p.LockEnd), p.Period.Year, int(p.Period.Month), createdAt)
		if err != nil {
			return fmt.Errorf("insert pocket: %w", err)
		}
	}
	for _, u := range m.PocketUpdates {
		p, err := s.getPocket(ctx, tx, `SELECT `+pgPocketColumns+` FROM pockets WHERE id = $1 FOR UPDATE`, u.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			return core.NewNotFound("pocket", u.ID)
		}
		if err != nil {
			return fmt.Errorf("lock pocket for update: %w", err)
		}
		applyPocketUpdate(&p, u)
		_, err = tx.Exec(ctx,
			`UPDATE pockets SET name = $1, source_card_id = $2, goal_amount = $3, lock_end = $4, period_year = $5, period_month = $6 WHERE id = $7`,
			p.Name, pgNullString(p.SourceCardID), p.GoalAmount, pgNullTime(p.LockEnd),
			p.Period.Year, int(p.Period.Month), p.ID)
		if err != nil {
			return fmt.Errorf("update pocket: %w", err)
		}
	}
	for _, t := range m.Transactions {
		if err := t.Validate(); err != nil {
			return err
		}
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO transactions (id, date, description, category, type, amount, card_id, pocket_id, ref_kind, ref_id, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			t.ID, t.Date, t.Description, t.Category, string(t.Type), t.Amount,
			pgNullString(t.CardID), pgNullString(t.PocketID), t.Ref.Kind, t.Ref.ID, createdAt)
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	var t core.Transaction
	var cardID, pocketID *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, date, description, category, type, amount, card_id, pocket_id, ref_kind, ref_id, created_at
		 FROM transactions WHERE id = $1`, id).
		Scan(&t.ID, &t.Date, &t.Description, &t.Category, &t.Type, &t.Amount,
			&cardID, &pocketID, &t.Ref.Kind, &t.Ref.ID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	if cardID != nil {
		t.CardID = *cardID
	}
	if pocketID != nil {
		t.PocketID = *pocketID
	}
	return t, nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT id, date, description, category, type, amount, card_id, pocket_id, ref_kind, ref_id, created_at
	          FROM transactions WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !f.From.IsZero() {
		query += ` AND date >= ` + arg(f.From)
	}
	if !f.To.IsZero() {
		query += ` AND date <= ` + arg(f.To)
	}
	if f.Category != "" {
		query += ` AND category = ` + arg(f.Category)
	}
	if f.CardID != "" {
		query += ` AND card_id = ` + arg(f.CardID)
	}
	if f.PocketID != "" {
		query += ` AND pocket_id = ` + arg(f.PocketID)
	}
	if f.Type != "" {
		query += ` AND type = ` + arg(string(f.Type))
	}
	if f.Ref.Kind != "" {
		query += ` AND ref_kind = ` + arg(f.Ref.Kind)
	}
	if f.Ref.ID != "" {
		query += ` AND ref_id = ` + arg(f.Ref.ID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var cardID, pocketID *string
		if err := rows.Scan(&t.ID, &t.Date, &t.Description, &t.Category, &t.Type, &t.Amount,
			&cardID, &pocketID, &t.Ref.Kind, &t.Ref.ID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if cardID != nil {
			t.CardID = *cardID
		}
		if pocketID != nil {
			t.PocketID = *pocketID
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateTransactionDetails(ctx context.Context, id string, d TransactionDetails) error {
	t, err := s.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if d.Description != nil {
		t.Description = *d.Description
	}
	if d.Category != nil {
		t.Category = *d.Category
	}
	if d.Date != nil {
		t.Date = *d.Date
	}
	if err := t.Validate(); err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE transactions SET description = $1, category = $2, date = $3 WHERE id = $4`,
		t.Description, t.Category, t.Date, id)
	if err != nil {
		return fmt.Errorf("update transaction details: %w", err)
	}
	return nil
}

func (s *PostgresStore) TotalAssets(ctx context.Context) (int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(balance), 0) FROM cards`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum card balances: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) PocketsTotal(ctx context.Context) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM pockets WHERE kind != 'reward'`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum pocket balances: %w", err)
	}
	return total, nil
}

func (s *PostgresStore) SetMemberReward(ctx context.Context, member string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO member_rewards (member, amount, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (member) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()`,
		member, amount)
	if err != nil {
		return fmt.Errorf("upsert member reward: %w", err)
	}
	return nil
}

func (s *PostgresStore) TotalRewards(ctx context.Context) (int64, error) {
	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM member_rewards`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum member rewards: %w", err)
	}
	return total, nil
}

type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sortedDeltas(deltas []Delta) []Delta {
	out := make([]Delta, len(deltas))
	copy(out, deltas)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func pgNullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func pgNullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
