package core

// ExpenseSource identifies the account an expense is drawn from: either a
// card directly, or a pocket (which may in turn be backed by a card). It is
// resolved once at the API boundary so the ledger never has to parse
// prefixed identifier strings.
type ExpenseSource struct {
	kind sourceKind
	id   string
}

type sourceKind uint8

const (
	sourceCard sourceKind = iota + 1
	sourcePocket
)

// CardSource builds an ExpenseSource drawing directly from a card.
func CardSource(id string) ExpenseSource {
	return ExpenseSource{kind: sourceCard, id: id}
}

// PocketSource builds an ExpenseSource drawing from a pocket.
func PocketSource(id string) ExpenseSource {
	return ExpenseSource{kind: sourcePocket, id: id}
}

func (s ExpenseSource) IsCard() bool   { return s.kind == sourceCard }
func (s ExpenseSource) IsPocket() bool { return s.kind == sourcePocket }
func (s ExpenseSource) ID() string     { return s.id }

func (s ExpenseSource) Validate() error {
	if s.kind != sourceCard && s.kind != sourcePocket {
		return ErrInvalidExpenseSource
	}
	if s.id == "" {
		return ErrInvalidExpenseSource
	}
	return nil
}
