package events

import (
	"encoding/json"
	"time"

	"dompet/internal/core"
)

// Routing keys for published events.
const (
	KeyTransactionRecorded = "ledger.transaction.recorded"
	KeyBudgetClosed        = "ledger.budget.closed"
)

// TransactionRecorded announces a committed ledger operation. Consumers
// (notifications, exports, dashboards) fetch further detail themselves; the
// event carries only what routing and display need.
type TransactionRecorded struct {
	TransactionID string    `json:"transaction_id"`
	Type          string    `json:"type"`
	Category      string    `json:"category"`
	AmountCents   int64     `json:"amount_cents"`
	CardID        string    `json:"card_id,omitempty"`
	PocketID      string    `json:"pocket_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewTransactionRecorded builds the event for a committed transaction.
func NewTransactionRecorded(tx core.Transaction) *TransactionRecorded {
	return &TransactionRecorded{
		TransactionID: tx.ID,
		Type:          string(tx.Type),
		Category:      tx.Category,
		AmountCents:   tx.Amount,
		CardID:        tx.CardID,
		PocketID:      tx.PocketID,
		Timestamp:     time.Now(),
	}
}

func (m *TransactionRecorded) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func TransactionRecordedFromJSON(data []byte) (*TransactionRecorded, error) {
	var msg TransactionRecorded
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BudgetClosed announces a budget-cycle close.
type BudgetClosed struct {
	PocketID       string    `json:"pocket_id"`
	LeftoverCents  int64     `json:"leftover_cents"`
	SavingPocketID string    `json:"saving_pocket_id,omitempty"`
	NewPeriod      string    `json:"new_period"` // e.g. "2024-03"
	Timestamp      time.Time `json:"timestamp"`
}

func (m *BudgetClosed) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BudgetClosedFromJSON(data []byte) (*BudgetClosed, error) {
	var msg BudgetClosed
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
