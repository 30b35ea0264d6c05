package backend

import (
	"context"
	"fmt"

	"dompet/internal/config"
	"dompet/internal/events"
	"dompet/internal/log"
	"dompet/internal/store"
)

// Open builds the storage stack named by cfg.DataBackend. The AMQP client
// is best effort for every backend: a broker that is down at startup logs
// a warning and the ledger runs without event publishing.
func Open(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Result, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentStore)

	t := Type(cfg.DataBackend)
	switch t {
	case MemoryBackend:
		return assemble(store.NewMemoryStore(), nil, cfg, logger)
	case SQLiteBackend:
		if cfg.SQLiteDBPath == "" {
			return nil, fmt.Errorf("SQLITE_DB_PATH is required for the sqlite backend")
		}
		st, err := store.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("Opened SQLite store", "db_path", cfg.SQLiteDBPath)
		return assemble(st, st.Close, cfg, logger)
	case PostgresBackend:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		st, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info("Opened Postgres store")
		return assemble(st, st.Close, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported backend type %q (valid: %v)", cfg.DataBackend, Types())
	}
}

func assemble(st store.Store, closeStore func() error, cfg *config.Config, logger *log.Logger) (*Result, error) {
	res := &Result{Store: st}

	if cfg.AMQPURL != "" {
		client, err := events.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to connect to AMQP broker, continuing without events", log.FieldError, err)
		} else {
			logger.Info("Connected AMQP event publisher",
				"exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
			res.Events = client
		}
	}

	res.Cleanup = func() error {
		var firstErr error
		if res.Events != nil {
			if err := res.Events.Close(); err != nil {
				firstErr = fmt.Errorf("close events client: %w", err)
			}
		}
		if closeStore != nil {
			if err := closeStore(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close store: %w", err)
			}
		}
		return firstErr
	}
	return res, nil
}
