package observe

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"

	"github.com/instantcocoa/periscope/pkg/database"
	"github.com/instantcocoa/periscope/pkg/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Storage backend kinds.
const (
	BackendMemory     = "memory"
	BackendPostgres   = "postgres"
	BackendClickHouse = "clickhouse"
)

// BackendConfig selects and configures the storage backend.
type BackendConfig struct {
	Kind       string
	Postgres   *database.Config
	ClickHouse storage.ClickHouseConfig
	// Migrate applies the embedded schema migrations on a Postgres backend.
	Migrate bool
}

// Backend is an opened storage backend and its release function.
type Backend struct {
	storage.Backend
	close func() error
}

// Close releases the backend's connections.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend opens the configured backend. Postgres connections are
// retried until cfg.Postgres.ConnectTimeout elapses.
func OpenBackend(ctx context.Context, cfg BackendConfig, logger *slog.Logger) (*Backend, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", BackendMemory:
		logger.InfoContext(ctx, "using in-memory storage")
		return &Backend{Backend: storage.NewMemoryEngine()}, nil

	case BackendPostgres:
		pgCfg := cfg.Postgres
		if pgCfg == nil {
			pgCfg = database.DefaultConfig()
		}
		db, err := database.Connect(ctx, pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if cfg.Migrate {
			if err := Migrate(ctx, db, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		logger.InfoContext(ctx, "using postgres storage", "host", pgCfg.Host, "database", pgCfg.Database)
		return &Backend{Backend: storage.NewPostgresEngine(db, logger), close: db.Close}, nil

	case BackendClickHouse:
		chCfg := cfg.ClickHouse
		if chCfg.Dialect.Tables == nil && chCfg.Dialect.Columns == nil {
			chCfg.Dialect = ClickHouseDialect()
		}
		engine := storage.NewClickHouseEngine(chCfg, logger)
		if err := engine.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "clickhouse not reachable at startup", "url", chCfg.URL, "error", err)
		}
		logger.InfoContext(ctx, "using clickhouse storage", "url", chCfg.URL, "database", chCfg.Database)
		return &Backend{Backend: engine}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Kind)
	}
}

// Migrate applies the telemetry schema to a Postgres database.
func Migrate(ctx context.Context, db *database.DB, logger *slog.Logger) error {
	m := database.NewMigrator(db, "periscope").WithLogger(logger)
	if err := m.LoadMigrations(migrations, "migrations"); err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
