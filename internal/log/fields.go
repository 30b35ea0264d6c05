package log

// Common field names for structured logging.
const (
	FieldComponent   = "component"
	FieldOperation   = "operation"
	FieldError       = "error"
	FieldCardID      = "card_id"
	FieldPocketID    = "pocket_id"
	FieldTxID        = "transaction_id"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldPeriod      = "period"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
)

// Components defines standard component names.
const (
	ComponentApp    = "app"
	ComponentHTTP   = "http"
	ComponentLedger = "ledger"
	ComponentBudget = "budget"
	ComponentStore  = "store"
	ComponentEvents = "events"
	ComponentWorker = "worker"
)

// Operations defines standard operation names.
const (
	OpIncome   = "record_income"
	OpExpense  = "record_expense"
	OpTransfer = "transfer"
	OpTopUp    = "cash_top_up"
	OpClose    = "budget_close"
	OpEvaluate = "budget_evaluate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
