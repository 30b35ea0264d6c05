package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dompet/internal/core"
	"dompet/internal/ledger"
	"dompet/internal/store"
)

func (s *Server) handleRecordIncome(w http.ResponseWriter, r *http.Request) {
	var req struct {
		amountField
		CardID      string  `json:"card_id"`
		Category    string  `json:"category,omitempty"`
		Description string  `json:"description,omitempty"`
		Date        string  `json:"date,omitempty"`
		Ref         refJSON `json:"ref,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.cents()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.svc.RecordIncome(r.Context(), ledger.IncomeParams{
		Amount:      amount,
		CardID:      req.CardID,
		Category:    req.Category,
		Description: req.Description,
		Date:        date,
		Ref:         core.Ref{Kind: req.Ref.Kind, ID: req.Ref.ID},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionJSON(tx))
}

func (s *Server) handleRecordExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		amountField
		CardID      string  `json:"card_id,omitempty"`
		PocketID    string  `json:"pocket_id,omitempty"`
		Category    string  `json:"category,omitempty"`
		Description string  `json:"description,omitempty"`
		Date        string  `json:"date,omitempty"`
		Ref         refJSON `json:"ref,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.cents()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var source core.ExpenseSource
	switch {
	case req.CardID != "" && req.PocketID != "":
		s.writeError(w, r, fmt.Errorf("%w: set card_id or pocket_id, not both", errBadRequest))
		return
	case req.CardID != "":
		source = core.CardSource(req.CardID)
	case req.PocketID != "":
		source = core.PocketSource(req.PocketID)
	default:
		s.writeError(w, r, core.ErrInvalidExpenseSource)
		return
	}

	tx, err := s.svc.RecordExpense(r.Context(), ledger.ExpenseParams{
		Amount:      amount,
		Source:      source,
		Category:    req.Category,
		Description: req.Description,
		Date:        date,
		Ref:         core.Ref{Kind: req.Ref.Kind, ID: req.Ref.ID},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionJSON(tx))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		amountField
		CardID      string `json:"card_id"`
		PocketID    string `json:"pocket_id"`
		Direction   string `json:"direction"`
		Description string `json:"description,omitempty"`
		Date        string `json:"date,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.cents()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.svc.Transfer(r.Context(), ledger.TransferParams{
		Amount:      amount,
		CardID:      req.CardID,
		PocketID:    req.PocketID,
		Direction:   ledger.TransferDirection(req.Direction),
		Description: req.Description,
		Date:        date,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionJSON(tx))
}

func (s *Server) handleCashTopUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		amountField
		SourceCardID string `json:"source_card_id"`
		Date         string `json:"date,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.cents()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tx, err := s.svc.CashTopUp(r.Context(), amount, req.SourceCardID, date)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionJSON(tx))
}

type budgetCloseJSON struct {
	PocketID      string           `json:"pocket_id"`
	LeftoverCents int64            `json:"leftover_cents"`
	SavingPocket  *pocketJSON      `json:"saving_pocket,omitempty"`
	Transaction   *transactionJSON `json:"transaction,omitempty"`
	NewName       string           `json:"new_name"`
	NewPeriod     periodJSON       `json:"new_period"`
}

func toBudgetCloseJSON(res *ledger.CloseResult) budgetCloseJSON {
	out := budgetCloseJSON{
		PocketID:      res.BudgetPocketID,
		LeftoverCents: res.Leftover,
		NewName:       res.NewName,
		NewPeriod: periodJSON{
			Year:  res.NewPeriod.Year,
			Month: int(res.NewPeriod.Month),
			Label: res.NewPeriod.MonthName(),
		},
	}
	if res.SavingPocket != nil {
		p := toPocketJSON(*res.SavingPocket)
		out.SavingPocket = &p
	}
	if res.Transaction != nil {
		tx := toTransactionJSON(*res.Transaction)
		out.Transaction = &tx
	}
	return out
}

func (s *Server) handleBudgetClose(w http.ResponseWriter, r *http.Request) {
	res, err := s.budget.Close(r.Context(), time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetCloseJSON(res))
}

func (s *Server) handleBudgetEvaluate(w http.ResponseWriter, r *http.Request) {
	res, err := s.budget.Evaluate(r.Context(), time.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"closed": false})
		return
	}
	writeJSON(w, http.StatusOK, toBudgetCloseJSON(res))
}

func (s *Server) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		Bank          string `json:"bank,omitempty"`
		IsCashAccount bool   `json:"is_cash_account,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	card, err := s.svc.CreateCard(r.Context(), ledger.CardParams{
		Name:          req.Name,
		Bank:          req.Bank,
		IsCashAccount: req.IsCashAccount,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCardJSON(card))
}

func (s *Server) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := s.svc.GetCard(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCardJSON(card))
}

func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.svc.ListCards(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]cardJSON, 0, len(cards))
	for _, c := range cards {
		out = append(out, toCardJSON(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeleteCard(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteCard(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreatePocket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		Kind         string `json:"kind"`
		SourceCardID string `json:"source_card_id,omitempty"`
		GoalCents    int64  `json:"goal_amount_cents,omitempty"`
		LockEnd      string `json:"lock_end,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	lockEnd, err := parseDate(req.LockEnd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pocket, err := s.svc.CreatePocket(r.Context(), ledger.PocketParams{
		Name:         req.Name,
		Kind:         core.PocketKind(req.Kind),
		SourceCardID: req.SourceCardID,
		GoalAmount:   req.GoalCents,
		LockEnd:      lockEnd,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPocketJSON(pocket))
}

func (s *Server) handleGetPocket(w http.ResponseWriter, r *http.Request) {
	pocket, err := s.svc.GetPocket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPocketJSON(pocket))
}

func (s *Server) handleListPockets(w http.ResponseWriter, r *http.Request) {
	pockets, err := s.svc.ListPockets(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]pocketJSON, 0, len(pockets))
	for _, p := range pockets {
		out = append(out, toPocketJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeletePocket(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeletePocket(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.svc.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := store.TransactionFilter{
		From:     from,
		To:       to,
		Category: q.Get("category"),
		CardID:   q.Get("card_id"),
		PocketID: q.Get("pocket_id"),
		Type:     core.TransactionType(q.Get("type")),
		Ref:      core.Ref{Kind: q.Get("ref_kind"), ID: q.Get("ref_id")},
	}
	txs, err := s.svc.ListTransactions(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionList(txs))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description *string `json:"description,omitempty"`
		Category    *string `json:"category,omitempty"`
		Date        *string `json:"date,omitempty"`
		// Amount or account fields in the payload are rejected by
		// DisallowUnknownFields before reaching the ledger.
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	details := store.TransactionDetails{
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Date != nil {
		date, err := parseDate(*req.Date)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		details.Date = &date
	}
	id := chi.URLParam(r, "id")
	if err := s.svc.UpdateTransactionDetails(r.Context(), id, details); err != nil {
		s.writeError(w, r, err)
		return
	}
	tx, err := s.svc.GetTransaction(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionJSON(tx))
}

func (s *Server) handleCategoryReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.svc.CategoryTotals(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleCashflowReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportRange(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.svc.CashflowByMonth(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleRefReport(w http.ResponseWriter, r *http.Request) {
	rows, err := s.svc.ResultByRef(r.Context(), r.URL.Query().Get("kind"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSetMemberReward(w http.ResponseWriter, r *http.Request) {
	member := chi.URLParam(r, "member")
	var req struct {
		amountField
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	amount, err := req.cents()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.svc.SetMemberReward(r.Context(), member, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": member, "amount_cents": amount})
}

func reportRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDate(q.Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
