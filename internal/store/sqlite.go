package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dompet/internal/core"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// SQLiteStore persists the ledger in a local SQLite database. Mutations run
// inside a single database transaction so a crash mid-operation cannot leave
// balances inconsistent with the transaction log.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// One writer at a time keeps the Apply transaction serial, matching the
	// single logical actor the ledger is designed for.
	db.SetMaxOpenConns(1)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) CreateCard(ctx context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.IsCashAccount {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards WHERE is_cash = 1`).Scan(&n); err != nil {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cards (id, name, bank, is_cash, balance, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		c.ID, c.Name, c.Bank, boolToInt(c.IsCashAccount), createdAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}

	slog.InfoContext(ctx, "Card created", "id", c.ID, "name", c.Name, "cash", c.IsCashAccount)
	return nil
}

func (s *SQLiteStore) GetCard(ctx context.Context, id string) (core.Card, error) {
	return scanCard(s.db.QueryRowContext(ctx,
		`SELECT id, name, bank, is_cash, balance, created_at FROM cards WHERE id = ?`, id), id)
}

func (s *SQLiteStore) CashCard(ctx context.Context) (core.Card, error) {
	return scanCard(s.db.QueryRowContext(ctx,
		`SELECT id, name, bank, is_cash, balance, created_at FROM cards WHERE is_cash = 1`), "cash")
}

func (s *SQLiteStore) ListCards(ctx context.Context) ([]core.Card, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, bank, is_cash, balance, created_at FROM cards ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var out []core.Card
	for rows.Next() {
		c, err := scanCardRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteCard(ctx context.Context, id string) error {
	c, err := s.GetCard(ctx, id)
	if err != nil {
		return err
	}
	if c.IsCashAccount {
		return core.ErrCashCardProtected
	}
	var refs int
	err = s.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM transactions WHERE card_id = ?) +
		        (SELECT COUNT(*) FROM pockets WHERE source_card_id = ?)`, id, id).Scan(&refs)
	if err != nil {
		return fmt.Errorf("count card references: %w", err)
	}
	if refs > 0 {
		return core.ErrCardInUse
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreatePocket(ctx context.Context, p core.Pocket) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.Kind == core.PocketBudget {
		var n int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pockets WHERE kind = 'budget'`).Scan(&n); err != nil {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pockets (id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, string(p.Kind), nullString(p.SourceCardID), p.GoalAmount,
		nullTime(p.LockEnd), p.Period.Year, int(p.Period.Month), createdAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert pocket: %w", err)
	}

	slog.InfoContext(ctx, "Pocket created", "id", p.ID, "name", p.Name, "kind", string(p.Kind))
	return nil
}

func (s *SQLiteStore) GetPocket(ctx context.Context, id string) (core.Pocket, error) {
	return scanPocket(s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at
		 FROM pockets WHERE id = ?`, id), id)
}

func (s *SQLiteStore) BudgetPocket(ctx context.Context) (core.Pocket, error) {
	return scanPocket(s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at
		 FROM pockets WHERE kind = 'budget'`), "budget")
}

func (s *SQLiteStore) ListPockets(ctx context.Context) ([]core.Pocket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at
		 FROM pockets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pockets: %w", err)
	}
	defer rows.Close()

	var out []core.Pocket
	for rows.Next() {
		p, err := scanPocketRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeletePocket(ctx context.Context, id string) error {
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
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pockets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete pocket: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Apply(ctx context.Context, m Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply tx: %w", err)
	}
	defer tx.Rollback()

	for _, d := range m.CardDeltas {
		var name string
		var balance int64
		err := tx.QueryRowContext(ctx, `SELECT name, balance FROM cards WHERE id = ?`, d.ID).Scan(&name, &balance)
		if errors.Is(err, sql.ErrNoRows) {
			return core.NewNotFound("card", d.ID)
		}
		if err != nil {
			return fmt.Errorf("read card balance: %w", err)
		}
		next := balance + d.Amount
		if next < 0 {
			return &core.InsufficientFundsError{Entity: "card", ID: d.ID, Name: name, Shortfall: -next}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET balance = ? WHERE id = ?`, next, d.ID); err != nil {
			return fmt.Errorf("update card balance: %w", err)
		}
	}
	for _, d := range m.PocketDeltas {
		var name string
		var balance int64
		err := tx.QueryRowContext(ctx, `SELECT name, balance FROM pockets WHERE id = ?`, d.ID).Scan(&name, &balance)
		if errors.Is(err, sql.ErrNoRows) {
			return core.NewNotFound("pocket", d.ID)
		}
		if err != nil {
			return fmt.Errorf("read pocket balance: %w", err)
		}
		next := balance + d.Amount
		if next < 0 {
			return &core.InsufficientFundsError{Entity: "pocket", ID: d.ID, Name: name, Shortfall: -next}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE pockets SET balance = ? WHERE id = ?`, next, d.ID); err != nil {
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
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pockets (id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.Name, string(p.Kind), p.Balance, nullString(p.SourceCardID), p.GoalAmount,
			nullTime(p.LockEnd), p.Period.Year, int(p.Period.Month), createdAt.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert pocket: %w", err)
		}
	}
	for _, u := range m.PocketUpdates {
		p, err := scanPocket(tx.QueryRowContext(ctx,
			`SELECT id, name, kind, balance, source_card_id, goal_amount, lock_end, period_year, period_month, created_at
			 FROM pockets WHERE id = ?`, u.ID), u.ID)
		if err != nil {
			return err
		}
		applyPocketUpdate(&p, u)
		_, err = tx.ExecContext(ctx,
			`UPDATE pockets SET name = ?, source_card_id = ?, goal_amount = ?, lock_end = ?, period_year = ?, period_month = ? WHERE id = ?`,
			p.Name, nullString(p.SourceCardID), p.GoalAmount, nullTime(p.LockEnd),
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
		_, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (id, date, description, category, type, amount, card_id, pocket_id, ref_kind, ref_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Date.Format(timeLayout), t.Description, t.Category, string(t.Type), t.Amount,
			nullString(t.CardID), nullString(t.PocketID), t.Ref.Kind, t.Ref.ID, createdAt.Format(timeLayout))
		if err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT id, date, description, category, type, amount, card_id, pocket_id, ref_kind, ref_id, created_at
		 FROM transactions WHERE id = ?`, id), id)
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	query := `SELECT id, date, description, category, type, amount, card_id, pocket_id, ref_kind, ref_id, created_at
	          FROM transactions WHERE 1=1`
	var args []any
	if !f.From.IsZero() {
		query += ` AND date >= ?`
		args = append(args, f.From.Format(timeLayout))
	}
	if !f.To.IsZero() {
		query += ` AND date <= ?`
		args = append(args, f.To.Format(timeLayout))
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.CardID != "" {
		query += ` AND card_id = ?`
		args = append(args, f.CardID)
	}
	if f.PocketID != "" {
		query += ` AND pocket_id = ?`
		args = append(args, f.PocketID)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Ref.Kind != "" {
		query += ` AND ref_kind = ?`
		args = append(args, f.Ref.Kind)
	}
	if f.Ref.ID != "" {
		query += ` AND ref_id = ?`
		args = append(args, f.Ref.ID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateTransactionDetails(ctx context.Context, id string, d TransactionDetails) error {
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
	_, err = s.db.ExecContext(ctx,
		`UPDATE transactions SET description = ?, category = ?, date = ? WHERE id = ?`,
		t.Description, t.Category, t.Date.Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("update transaction details: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TotalAssets(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(balance), 0) FROM cards`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum card balances: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) PocketsTotal(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(balance), 0) FROM pockets WHERE kind != 'reward'`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum pocket balances: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) SetMemberReward(ctx context.Context, member string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO member_rewards (member, amount, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(member) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
		member, amount, time.Now().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("upsert member reward: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TotalRewards(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount), 0) FROM member_rewards`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum member rewards: %w", err)
	}
	return total, nil
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner, id string) (core.Card, error) {
	c, err := scanCardRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Card{}, core.NewNotFound("card", id)
	}
	return c, err
}

func scanCardRow(row rowScanner) (core.Card, error) {
	var c core.Card
	var isCash int
	var createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.Bank, &isCash, &c.Balance, &createdAt); err != nil {
		return core.Card{}, err
	}
	c.IsCashAccount = isCash == 1
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func scanPocket(row rowScanner, id string) (core.Pocket, error) {
	p, err := scanPocketRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Pocket{}, core.NewNotFound("pocket", id)
	}
	return p, err
}

func scanPocketRow(row rowScanner) (core.Pocket, error) {
	var p core.Pocket
	var kind, createdAt string
	var sourceCard, lockEnd sql.NullString
	var periodMonth int
	if err := row.Scan(&p.ID, &p.Name, &kind, &p.Balance, &sourceCard, &p.GoalAmount,
		&lockEnd, &p.Period.Year, &periodMonth, &createdAt); err != nil {
		return core.Pocket{}, err
	}
	p.Kind = core.PocketKind(kind)
	p.SourceCardID = sourceCard.String
	p.Period.Month = time.Month(periodMonth)
	if lockEnd.Valid {
		p.LockEnd = parseTime(lockEnd.String)
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

func scanTransaction(row rowScanner, id string) (core.Transaction, error) {
	t, err := scanTransactionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	return t, err
}

func scanTransactionRow(row rowScanner) (core.Transaction, error) {
	var t core.Transaction
	var date, txType, createdAt string
	var cardID, pocketID sql.NullString
	if err := row.Scan(&t.ID, &date, &t.Description, &t.Category, &txType, &t.Amount,
		&cardID, &pocketID, &t.Ref.Kind, &t.Ref.ID, &createdAt); err != nil {
		return core.Transaction{}, err
	}
	t.Date = parseTime(date)
	t.Type = core.TransactionType(txType)
	t.CardID = cardID.String
	t.PocketID = pocketID.String
	t.CreatedAt = parseTime(createdAt)
	return t, nil
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format(timeLayout)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
