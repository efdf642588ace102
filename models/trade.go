package models

import "time"

// TradeDetail is one activity-feed record for a tracked trader.
type TradeDetail struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"` // trader wallet address
	TokenID         string    `json:"token_id"`
	ConditionID     string    `json:"condition_id"`
	Type            string    `json:"type"` // TRADE, REDEEM, SPLIT, MERGE
	Side            string    `json:"side"`
	Size            float64   `json:"size"`
	UsdcSize        float64   `json:"usdc_size"`
	Price           float64   `json:"price"`
	Outcome         string    `json:"outcome"`
	OutcomeIndex    int       `json:"outcome_index"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	TransactionHash string    `json:"transaction_hash"`
	Timestamp       time.Time `json:"timestamp"`
	DetectedAt      time.Time `json:"detected_at"`
	DetectionSource string    `json:"detection_source"` // poll, live_ws
}
