package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// PostgresStore wraps PostgreSQL persistence with Redis caching.
type PostgresStore struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

var _ DataStore = (*PostgresStore)(nil)

// NewPostgres creates a PostgreSQL store with connection pooling and a
// Redis cache, configured from POSTGRES_*/REDIS_* environment variables.
func NewPostgres() (*PostgresStore, error) {
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	user := getEnv("POSTGRES_USER", "polymarket")
	password := getEnv("POSTGRES_PASSWORD", "polymarket123")
	dbname := getEnv("POSTGRES_DB", "polymarket")

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?pool_max_conns=10&pool_min_conns=2",
		user, password, host, port, dbname)

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	// Keep slow queries from hanging the worker.
	config.ConnConfig.RuntimeParams["statement_timeout"] = "30000"
	config.ConnConfig.RuntimeParams["lock_timeout"] = "10000"

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	redisHost := getEnv("REDIS_HOST", "localhost")
	redisPort := getEnv("REDIS_PORT", "6379")
	redisPassword := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", redisHost, redisPort),
		Password:     redisPassword,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	store := &PostgresStore{pool: pool, redis: rdb}
	if err := store.initSchema(context.Background()); err != nil {
		store.Close()
		return nil, fmt.Errorf("postgres: init schema: %w", err)
	}
	return store, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS copy_trades (
		id BIGSERIAL PRIMARY KEY,
		original_trade_id TEXT NOT NULL,
		original_trader TEXT NOT NULL,
		market_id TEXT NOT NULL,
		token_id TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		side TEXT NOT NULL,
		intended_usdc DOUBLE PRECISION NOT NULL DEFAULT 0,
		price_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
		size_bought DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_reason TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_copy_trades_created ON copy_trades (created_at DESC);

	CREATE TABLE IF NOT EXISTS reconcile_outcomes (
		id BIGSERIAL PRIMARY KEY,
		wallet TEXT NOT NULL,
		market_id TEXT NOT NULL,
		token_id TEXT NOT NULL,
		outcome TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		size DOUBLE PRECISION NOT NULL DEFAULT 0,
		ref_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		exit_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error_reason TEXT NOT NULL DEFAULT '',
		order_id TEXT NOT NULL DEFAULT '',
		attempts INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_reconcile_outcomes_created ON reconcile_outcomes (created_at DESC);
	`)
	return err
}

// Close releases database connections.
func (s *PostgresStore) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// SaveCopyTrade inserts one copy-trade attempt.
func (s *PostgresStore) SaveCopyTrade(ctx context.Context, rec CopyTradeRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO copy_trades (
			original_trade_id, original_trader, market_id, token_id, outcome, title,
			side, intended_usdc, price_paid, size_bought, status, error_reason, order_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		rec.OriginalTradeID, rec.OriginalTrader, rec.MarketID, rec.TokenID, rec.Outcome, rec.Title,
		rec.Side, rec.IntendedUSDC, rec.PricePaid, rec.SizeBought, rec.Status, rec.ErrorReason, rec.OrderID, createdAt,
	)
	return err
}

// ListCopyTrades returns the most recent copy-trade attempts, newest first.
func (s *PostgresStore) ListCopyTrades(ctx context.Context, limit int) ([]CopyTradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT original_trade_id, original_trader, market_id, token_id, outcome, title,
		       side, intended_usdc, price_paid, size_bought, status, error_reason, order_id, created_at
		FROM copy_trades
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CopyTradeRecord
	for rows.Next() {
		var r CopyTradeRecord
		if err := rows.Scan(
			&r.OriginalTradeID, &r.OriginalTrader, &r.MarketID, &r.TokenID, &r.Outcome, &r.Title,
			&r.Side, &r.IntendedUSDC, &r.PricePaid, &r.SizeBought, &r.Status, &r.ErrorReason, &r.OrderID, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveReconcileOutcome inserts one reconciliation exit outcome.
func (s *PostgresStore) SaveReconcileOutcome(ctx context.Context, rec ReconcileRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reconcile_outcomes (
			wallet, market_id, token_id, outcome, title, size, ref_price, exit_price,
			status, error_reason, order_id, attempts, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		rec.Wallet, rec.MarketID, rec.TokenID, rec.Outcome, rec.Title, rec.Size, rec.RefPrice, rec.ExitPrice,
		rec.Status, rec.ErrorReason, rec.OrderID, rec.Attempts, createdAt,
	)
	return err
}

// ListReconcileOutcomes returns the most recent reconciliation outcomes,
// newest first.
func (s *PostgresStore) ListReconcileOutcomes(ctx context.Context, limit int) ([]ReconcileRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, market_id, token_id, outcome, title, size, ref_price, exit_price,
		       status, error_reason, order_id, attempts, created_at
		FROM reconcile_outcomes
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ReconcileRecord
	for rows.Next() {
		var r ReconcileRecord
		if err := rows.Scan(
			&r.Wallet, &r.MarketID, &r.TokenID, &r.Outcome, &r.Title, &r.Size, &r.RefPrice, &r.ExitPrice,
			&r.Status, &r.ErrorReason, &r.OrderID, &r.Attempts, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CacheDriftReport stores a rendered drift report in Redis with a TTL.
func (s *PostgresStore) CacheDriftReport(ctx context.Context, key string, reportJSON string, ttl time.Duration) error {
	return s.redis.Set(ctx, "drift_report:"+key, reportJSON, ttl).Err()
}

// GetCachedDriftReport fetches a cached drift report; the bool reports
// whether a fresh entry existed.
func (s *PostgresStore) GetCachedDriftReport(ctx context.Context, key string) (string, bool, error) {
	val, err := s.redis.Get(ctx, "drift_report:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
