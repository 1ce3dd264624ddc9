package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/andrelandgraf/fullstackrecipes-sub001/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Chats     string
	Messages  string
	Parts     string
	Runs      string
	RunEvents string
	Recipes   string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Chats:     fmt.Sprintf("%schats", prefix),
		Messages:  fmt.Sprintf("%smessages", prefix),
		Parts:     fmt.Sprintf("%sparts", prefix),
		Runs:      fmt.Sprintf("%sruns", prefix),
		RunEvents: fmt.Sprintf("%srun_events", prefix),
		Recipes:   fmt.Sprintf("%srecipes", prefix),
	}
}

// CreateConnectionPool creates a new pgx connection pool.
//
// Table prefixes (dev_, test_, prod_) are interpolated into SQL before
// it reaches the database, so each environment gets its own prepared
// statements; this is safe with statement caching.
//
// Port 6543 is Supabase's transaction pooler (PgBouncer), which does
// not support prepared statements. When detected, the pool falls back
// to QueryExecModeCacheDescribe: still extended protocol (needed for
// JSONB encoding of map values) but PgBouncer compatible.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the appropriate query executor for the context.
// If a transaction is present in the context, it returns the
// transaction; otherwise the pool. This lets repositories participate
// in transactions automatically.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
