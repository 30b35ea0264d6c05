package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"dompet/internal/core"
)

// MemoryStore keeps everything in maps. It backs tests and local development
// and is the reference implementation of the Apply contract: the mutation is
// validated against a staged copy of the balances and committed only when
// every step succeeded.
type MemoryStore struct {
	mu           sync.Mutex
	cards        map[string]core.Card
	pockets      map[string]core.Pocket
	transactions map[string]core.Transaction
	order        []string // transaction ids in append order
	rewards      map[string]int64
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards:        make(map[string]core.Card),
		pockets:      make(map[string]core.Pocket),
		transactions: make(map[string]core.Transaction),
		rewards:      make(map[string]int64),
		now:          time.Now,
	}
}

func (s *MemoryStore) CreateCard(ctx context.Context, c core.Card) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[c.ID]; ok {
		return core.Invariantf("card %s already exists", c.ID)
	}
	if c.IsCashAccount {
		for _, existing := range s.cards {
			if existing.IsCashAccount {
				return core.ErrCashCardExists
			}
		}
	}
	c.Balance = 0
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.cards[c.ID] = c
	return nil
}

func (s *MemoryStore) GetCard(ctx context.Context, id string) (core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return core.Card{}, core.NewNotFound("card", id)
	}
	return c, nil
}

func (s *MemoryStore) CashCard(ctx context.Context) (core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.cards {
		if c.IsCashAccount {
			return c, nil
		}
	}
	return core.Card{}, core.NewNotFound("card", "cash")
}

func (s *MemoryStore) ListCards(ctx context.Context) ([]core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Card, 0, len(s.cards))
	for _, c := range s.cards {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteCard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cards[id]
	if !ok {
		return core.NewNotFound("card", id)
	}
	if c.IsCashAccount {
		return core.ErrCashCardProtected
	}
	for _, tx := range s.transactions {
		if tx.CardID == id {
			return core.ErrCardInUse
		}
	}
	for _, p := range s.pockets {
		if p.SourceCardID == id {
			return core.ErrCardInUse
		}
	}
	delete(s.cards, id)
	return nil
}

func (s *MemoryStore) CreatePocket(ctx context.Context, p core.Pocket) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pockets[p.ID]; ok {
		return core.Invariantf("pocket %s already exists", p.ID)
	}
	if p.Kind == core.PocketBudget {
		for _, existing := range s.pockets {
			if existing.Kind == core.PocketBudget {
				return core.ErrBudgetPocketExists
			}
		}
	}
	if p.SourceCardID != "" {
		if _, ok := s.cards[p.SourceCardID]; !ok {
			return core.NewNotFound("card", p.SourceCardID)
		}
	}
	p.Balance = 0
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.pockets[p.ID] = p
	return nil
}

func (s *MemoryStore) GetPocket(ctx context.Context, id string) (core.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pockets[id]
	if !ok {
		return core.Pocket{}, core.NewNotFound("pocket", id)
	}
	return p, nil
}

func (s *MemoryStore) BudgetPocket(ctx context.Context) (core.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *core.Pocket
	for _, p := range s.pockets {
		if p.Kind == core.PocketBudget {
			if found != nil {
				return core.Pocket{}, core.Invariantf("multiple budget pockets: %s and %s", found.ID, p.ID)
			}
			q := p
			found = &q
		}
	}
	if found == nil {
		return core.Pocket{}, core.NewNotFound("pocket", "budget")
	}
	return *found, nil
}

func (s *MemoryStore) ListPockets(ctx context.Context) ([]core.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Pocket, 0, len(s.pockets))
	for _, p := range s.pockets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeletePocket(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pockets[id]
	if !ok {
		return core.NewNotFound("pocket", id)
	}
	if p.Kind == core.PocketBudget {
		return core.Invariantf("budget pocket %s is recycled, never deleted", id)
	}
	if p.Balance != 0 {
		return core.ErrPocketNotEmpty
	}
	delete(s.pockets, id)
	return nil
}

// Apply stages the mutation against copies of the touched records and only
// commits when the whole mutation validated cleanly.
func (s *MemoryStore) Apply(ctx context.Context, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stagedCards := make(map[string]core.Card)
	stagedPockets := make(map[string]core.Pocket)

	cardOf := func(id string) (core.Card, bool) {
		if c, ok := stagedCards[id]; ok {
			return c, true
		}
		c, ok := s.cards[id]
		return c, ok
	}
	pocketOf := func(id string) (core.Pocket, bool) {
		if p, ok := stagedPockets[id]; ok {
			return p, true
		}
		p, ok := s.pockets[id]
		return p, ok
	}

	for _, d := range m.CardDeltas {
		c, ok := cardOf(d.ID)
		if !ok {
			return core.NewNotFound("card", d.ID)
		}
		next := c.Balance + d.Amount
		if next < 0 {
			return &core.InsufficientFundsError{Entity: "card", ID: c.ID, Name: c.Name, Shortfall: -next}
		}
		c.Balance = next
		stagedCards[c.ID] = c
	}
	for _, d := range m.PocketDeltas {
		p, ok := pocketOf(d.ID)
		if !ok {
			return core.NewNotFound("pocket", d.ID)
		}
		next := p.Balance + d.Amount
		if next < 0 {
			return &core.InsufficientFundsError{Entity: "pocket", ID: p.ID, Name: p.Name, Shortfall: -next}
		}
		p.Balance = next
		stagedPockets[p.ID] = p
	}
	for _, p := range m.NewPockets {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, ok := pocketOf(p.ID); ok {
			return core.Invariantf("pocket %s already exists", p.ID)
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now()
		}
		stagedPockets[p.ID] = p
	}
	for _, u := range m.PocketUpdates {
		p, ok := pocketOf(u.ID)
		if !ok {
			return core.NewNotFound("pocket", u.ID)
		}
		applyPocketUpdate(&p, u)
		stagedPockets[p.ID] = p
	}
	newOrder := make([]string, 0, len(m.Transactions))
	for _, tx := range m.Transactions {
		if err := tx.Validate(); err != nil {
			return err
		}
		if _, ok := s.transactions[tx.ID]; ok {
			return core.Invariantf("transaction %s already exists", tx.ID)
		}
		newOrder = append(newOrder, tx.ID)
	}

	// Commit.
	for id, c := range stagedCards {
		s.cards[id] = c
	}
	for id, p := range stagedPockets {
		s.pockets[id] = p
	}
	for _, tx := range m.Transactions {
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = s.now()
		}
		s.transactions[tx.ID] = tx
	}
	s.order = append(s.order, newOrder...)
	return nil
}

func applyPocketUpdate(p *core.Pocket, u PocketUpdate) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Period != nil {
		p.Period = *u.Period
	}
	if u.SourceCardID != nil {
		p.SourceCardID = *u.SourceCardID
	}
	if u.GoalAmount != nil {
		p.GoalAmount = *u.GoalAmount
	}
	if u.LockEnd != nil {
		p.LockEnd = *u.LockEnd
	}
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	return tx, nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, id := range s.order {
		tx := s.transactions[id]
		if f.Matches(tx) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateTransactionDetails(ctx context.Context, id string, d TransactionDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[id]
	if !ok {
		return core.NewNotFound("transaction", id)
	}
	if d.Description != nil {
		tx.Description = *d.Description
	}
	if d.Category != nil {
		tx.Category = *d.Category
	}
	if d.Date != nil {
		tx.Date = *d.Date
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	s.transactions[id] = tx
	return nil
}

func (s *MemoryStore) TotalAssets(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, c := range s.cards {
		total += c.Balance
	}
	return total, nil
}

func (s *MemoryStore) PocketsTotal(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, p := range s.pockets {
		if p.Kind == core.PocketReward {
			continue
		}
		total += p.Balance
	}
	return total, nil
}

func (s *MemoryStore) SetMemberReward(ctx context.Context, member string, amount int64) error {
	if amount < 0 {
		return core.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rewards[member] = amount
	return nil
}

func (s *MemoryStore) TotalRewards(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int64
	for _, v := range s.rewards {
		total += v
	}
	return total, nil
}

func (s *MemoryStore) Close() error { return nil }
