package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"dompet/internal/core"
	"dompet/internal/ledger"
)

// errBadRequest tags request-shape problems (malformed JSON, bad query
// parameters) so errorStatus can fold them into 400.
var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// amountField accepts money as either minor units or a decimal string, so
// clients may send {"amount_cents": 250000} or {"amount": "2500.00"}.
type amountField struct {
	AmountCents int64  `json:"amount_cents,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

func (a amountField) cents() (int64, error) {
	if a.Amount != "" {
		if a.AmountCents != 0 {
			return 0, fmt.Errorf("%w: set amount or amount_cents, not both", errBadRequest)
		}
		cents, err := core.ParseDecimalToCents(a.Amount)
		if err != nil {
			return 0, err
		}
		return cents, nil
	}
	return a.AmountCents, nil
}

// parseDate accepts RFC 3339 or a bare 2006-01-02 day.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", errBadRequest, s)
	}
	return t, nil
}

type refJSON struct {
	Kind string `json:"kind,omitempty"`
	ID   string `json:"id,omitempty"`
}

type cardJSON struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Bank          string    `json:"bank,omitempty"`
	IsCashAccount bool      `json:"is_cash_account"`
	BalanceCents  int64     `json:"balance_cents"`
	CreatedAt     time.Time `json:"created_at"`
}

type periodJSON struct {
	Year  int    `json:"year"`
	Month int    `json:"month"`
	Label string `json:"label"`
}

type pocketJSON struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Kind         string      `json:"kind"`
	BalanceCents int64       `json:"balance_cents"`
	SourceCardID string      `json:"source_card_id,omitempty"`
	GoalCents    int64       `json:"goal_amount_cents,omitempty"`
	LockEnd      *time.Time  `json:"lock_end,omitempty"`
	Period       *periodJSON `json:"period,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}

type transactionJSON struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Type        string    `json:"type"`
	AmountCents int64     `json:"amount_cents"`
	CardID      string    `json:"card_id,omitempty"`
	PocketID    string    `json:"pocket_id,omitempty"`
	Ref         *refJSON  `json:"ref,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type overviewJSON struct {
	TotalAssetsCents  int64        `json:"total_assets_cents"`
	PocketsTotalCents int64        `json:"pockets_total_cents"`
	Cards             []cardJSON   `json:"cards"`
	Pockets           []pocketJSON `json:"pockets"`
}

func toCardJSON(c core.Card) cardJSON {
	return cardJSON{
		ID:            c.ID,
		Name:          c.Name,
		Bank:          c.Bank,
		IsCashAccount: c.IsCashAccount,
		BalanceCents:  c.Balance,
		CreatedAt:     c.CreatedAt,
	}
}

func toPocketJSON(p core.Pocket) pocketJSON {
	out := pocketJSON{
		ID:           p.ID,
		Name:         p.Name,
		Kind:         string(p.Kind),
		BalanceCents: p.Balance,
		SourceCardID: p.SourceCardID,
		GoalCents:    p.GoalAmount,
		CreatedAt:    p.CreatedAt,
	}
	if !p.LockEnd.IsZero() {
		lockEnd := p.LockEnd
		out.LockEnd = &lockEnd
	}
	if !p.Period.IsZero() {
		out.Period = &periodJSON{
			Year:  p.Period.Year,
			Month: int(p.Period.Month),
			Label: p.Period.MonthName(),
		}
	}
	return out
}

func toTransactionJSON(tx core.Transaction) transactionJSON {
	out := transactionJSON{
		ID:          tx.ID,
		Date:        tx.Date,
		Description: tx.Description,
		Category:    tx.Category,
		Type:        string(tx.Type),
		AmountCents: tx.Amount,
		CardID:      tx.CardID,
		PocketID:    tx.PocketID,
		CreatedAt:   tx.CreatedAt,
	}
	if !tx.Ref.IsZero() {
		out.Ref = &refJSON{Kind: tx.Ref.Kind, ID: tx.Ref.ID}
	}
	return out
}

func toTransactionList(txs []core.Transaction) []transactionJSON {
	out := make([]transactionJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionJSON(tx))
	}
	return out
}

func overviewResponse(ov ledger.Overview) overviewJSON {
	out := overviewJSON{
		TotalAssetsCents:  ov.TotalAssets,
		PocketsTotalCents: ov.PocketsTotal,
		Cards:             make([]cardJSON, 0, len(ov.Cards)),
		Pockets:           make([]pocketJSON, 0, len(ov.Pockets)),
	}
	for _, c := range ov.Cards {
		out.Cards = append(out.Cards, toCardJSON(c))
	}
	for _, p := range ov.Pockets {
		out.Pockets = append(out.Pockets, toPocketJSON(p))
	}
	return out
}
