package storage

import (
	"context"
	"time"
)

// CopyTradeRecord is one copy-trade attempt, persisted whatever the outcome.
type CopyTradeRecord struct {
	OriginalTradeID string    `json:"original_trade_id"`
	OriginalTrader  string    `json:"original_trader"`
	MarketID        string    `json:"market_id"`
	TokenID         string    `json:"token_id"`
	Outcome         string    `json:"outcome"`
	Title           string    `json:"title"`
	Side            string    `json:"side"`
	IntendedUSDC    float64   `json:"intended_usdc"`
	PricePaid       float64   `json:"price_paid"`
	SizeBought      float64   `json:"size_bought"`
	Status          string    `json:"status"` // executed, skipped, failed
	ErrorReason     string    `json:"error_reason,omitempty"`
	OrderID         string    `json:"order_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ReconcileRecord is the outcome of one stale-position exit attempt.
type ReconcileRecord struct {
	Wallet      string    `json:"wallet"`
	MarketID    string    `json:"market_id"`
	TokenID     string    `json:"token_id"`
	Outcome     string    `json:"outcome"`
	Title       string    `json:"title"`
	Size        float64   `json:"size"`
	RefPrice    float64   `json:"ref_price"`
	ExitPrice   float64   `json:"exit_price,omitempty"`
	Status      string    `json:"status"` // executed, skipped, failed
	ErrorReason string    `json:"error_reason,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
}

// DataStore is the persistence boundary for trade and reconciliation
// history. Implementations: PostgresStore (pgx + Redis cache), MockStore.
type DataStore interface {
	SaveCopyTrade(ctx context.Context, rec CopyTradeRecord) error
	ListCopyTrades(ctx context.Context, limit int) ([]CopyTradeRecord, error)

	SaveReconcileOutcome(ctx context.Context, rec ReconcileRecord) error
	ListReconcileOutcomes(ctx context.Context, limit int) ([]ReconcileRecord, error)

	// Drift report cache, keyed by the pair of wallets.
	CacheDriftReport(ctx context.Context, key string, reportJSON string, ttl time.Duration) error
	GetCachedDriftReport(ctx context.Context, key string) (string, bool, error)

	Close() error
}
