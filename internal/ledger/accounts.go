package ledger

import (
	"context"
	"fmt"
	"time"

	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/metrics"
	"dompet/internal/store"
)

// CardParams describes a new card. Cards are always created with a zero
// balance; total assets only ever change through ledger operations, so an
// opening balance is recorded as income after creation.
type CardParams struct {
	Name          string
	Bank          string
	IsCashAccount bool
}

func (s *Service) CreateCard(ctx context.Context, p CardParams) (core.Card, error) {
	card := core.Card{
		ID:            s.newID(),
		Name:          p.Name,
		Bank:          p.Bank,
		IsCashAccount: p.IsCashAccount,
		CreatedAt:     s.now(),
	}
	if err := s.store.CreateCard(ctx, card); err != nil {
		return core.Card{}, err
	}
	return card, nil
}

func (s *Service) DeleteCard(ctx context.Context, id string) error {
	if err := s.store.DeleteCard(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Card deleted", log.FieldCardID, id)
	return nil
}

// PocketParams describes a new pocket. Like cards, pockets are born empty
// and funded by a deposit transfer.
type PocketParams struct {
	Name         string
	Kind         core.PocketKind
	SourceCardID string
	GoalAmount   int64
	LockEnd      time.Time
}

func (s *Service) CreatePocket(ctx context.Context, p PocketParams) (core.Pocket, error) {
	pocket := core.Pocket{
		ID:           s.newID(),
		Name:         p.Name,
		Kind:         p.Kind,
		SourceCardID: p.SourceCardID,
		GoalAmount:   p.GoalAmount,
		LockEnd:      p.LockEnd,
		CreatedAt:    s.now(),
	}
	if p.Kind == core.PocketBudget {
		pocket.Period = core.PeriodOf(s.now())
		pocket.Name = RenderBudgetName(p.Name, pocket.Period)
	}
	if err := s.store.CreatePocket(ctx, pocket); err != nil {
		return core.Pocket{}, err
	}
	return pocket, nil
}

func (s *Service) DeletePocket(ctx context.Context, id string) error {
	if err := s.store.DeletePocket(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Pocket deleted", log.FieldPocketID, id)
	return nil
}

func (s *Service) GetCard(ctx context.Context, id string) (core.Card, error) {
	return s.store.GetCard(ctx, id)
}

func (s *Service) ListCards(ctx context.Context) ([]core.Card, error) {
	return s.store.ListCards(ctx)
}

// GetPocket resolves a pocket, overlaying the derived balance for the
// reward pool.
func (s *Service) GetPocket(ctx context.Context, id string) (core.Pocket, error) {
	p, err := s.store.GetPocket(ctx, id)
	if err != nil {
		return core.Pocket{}, err
	}
	if p.Kind == core.PocketReward {
		total, err := s.store.TotalRewards(ctx)
		if err != nil {
			return core.Pocket{}, fmt.Errorf("derive reward balance: %w", err)
		}
		p.Balance = total
	}
	return p, nil
}

// ListPockets lists all pockets. The reward pool's stored balance is
// replaced by the live sum of member rewards.
func (s *Service) ListPockets(ctx context.Context) ([]core.Pocket, error) {
	pockets, err := s.store.ListPockets(ctx)
	if err != nil {
		return nil, err
	}
	for i, p := range pockets {
		if p.Kind == core.PocketReward {
			total, err := s.store.TotalRewards(ctx)
			if err != nil {
				return nil, fmt.Errorf("derive reward balance: %w", err)
			}
			pockets[i].Balance = total
		}
	}
	return pockets, nil
}

func (s *Service) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *Service) ListTransactions(ctx context.Context, f store.TransactionFilter) ([]core.Transaction, error) {
	return s.store.ListTransactions(ctx, f)
}

// UpdateTransactionDetails edits the descriptive fields of a logged
// transaction. Amounts and account references are immutable; there is no
// balance-recalculation path, so such edits are refused outright.
func (s *Service) UpdateTransactionDetails(ctx context.Context, id string, d store.TransactionDetails) error {
	return s.store.UpdateTransactionDetails(ctx, id, d)
}

// Overview is the account-listing read surface.
type Overview struct {
	TotalAssets  int64
	PocketsTotal int64
	Cards        []core.Card
	Pockets      []core.Pocket
}

// Overview aggregates current balances for the dashboard: total assets
// (sum of card balances), non-reward pocket total, and both listings.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	total, err := s.store.TotalAssets(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("total assets: %w", err)
	}
	pocketsTotal, err := s.store.PocketsTotal(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("pockets total: %w", err)
	}
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return Overview{}, err
	}
	pockets, err := s.ListPockets(ctx)
	if err != nil {
		return Overview{}, err
	}
	metrics.TotalAssetsCents.Set(float64(total))
	metrics.PocketsTotalCents.Set(float64(pocketsTotal))
	return Overview{
		TotalAssets:  total,
		PocketsTotal: pocketsTotal,
		Cards:        cards,
		Pockets:      pockets,
	}, nil
}

// SetMemberReward records a team member's reward balance, written by the
// external rewards domain. It feeds the derived reward-pool display only;
// no card or pocket balance moves.
func (s *Service) SetMemberReward(ctx context.Context, member string, amount int64) error {
	return s.store.SetMemberReward(ctx, member, amount)
}
