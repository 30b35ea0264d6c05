// Package backend selects and wires the storage and messaging stack from
// configuration: an in-memory store for development, SQLite for single-node
// deployments, Postgres for shared ones, each optionally paired with an
// AMQP event publisher.
package backend

import (
	"context"
	"fmt"
	"time"

	"dompet/internal/core"
	"dompet/internal/events"
	"dompet/internal/ledger"
	"dompet/internal/store"
)

// Type names a storage backend.
type Type string

const (
	MemoryBackend   Type = "memory"
	SQLiteBackend   Type = "sqlite"
	PostgresBackend Type = "postgres"
)

func (t Type) String() string { return string(t) }

// IsValid reports whether the backend type is one the factory can open.
func (t Type) IsValid() bool {
	switch t {
	case MemoryBackend, SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// Types returns every backend type the factory can open.
func Types() []Type {
	return []Type{MemoryBackend, SQLiteBackend, PostgresBackend}
}

// CleanupFunc releases the resources a backend holds open.
type CleanupFunc func() error

// Result bundles an opened store with its optional event publisher and the
// cleanup to run at shutdown.
type Result struct {
	Store   store.Store
	Events  *events.Client
	Cleanup CleanupFunc
}

// Publisher adapts the AMQP client to the ledger's event contract. It
// returns nil when no broker is connected, which the ledger treats as
// events disabled.
func (r *Result) Publisher() ledger.EventPublisher {
	if r.Events == nil {
		return nil
	}
	return &publisher{client: r.Events}
}

type publisher struct {
	client *events.Client
}

func (p *publisher) PublishTransactionRecorded(ctx context.Context, tx core.Transaction) error {
	return p.client.PublishTransactionRecorded(ctx, tx)
}

func (p *publisher) PublishBudgetClosed(ctx context.Context, ev *ledger.BudgetClosedEvent) error {
	return p.client.PublishBudgetClosed(ctx, &events.BudgetClosed{
		PocketID:       ev.PocketID,
		LeftoverCents:  ev.LeftoverCents,
		SavingPocketID: ev.SavingPocketID,
		NewPeriod:      fmt.Sprintf("%04d-%02d", ev.NewPeriod.Year, ev.NewPeriod.Month),
		Timestamp:      time.Now(),
	})
}
