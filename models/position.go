package models

import (
	"fmt"
	"strconv"
)

// OpenValueThreshold is the current-value floor below which a position is
// treated as closed. Dust left over from rounding and resolved-worthless
// tokens both fall under it.
const OpenValueThreshold = 0.01

// Position is an immutable snapshot of one outcome-token holding, taken from
// the data API at the start of a pass. It is never mutated locally; a new
// pass fetches a new snapshot.
type Position struct {
	Wallet       string  `json:"wallet"`
	Asset        string  `json:"asset"` // CLOB token ID
	ConditionID  string  `json:"condition_id"`
	Title        string  `json:"title"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcome_index"`
	Size         float64 `json:"size"`
	AvgPrice     float64 `json:"avg_price"`
	CurPrice     float64 `json:"cur_price"`
	CurrentValue float64 `json:"current_value"`
	CashPnL      float64 `json:"cash_pnl"` // realized + unrealized
	NegRisk      bool    `json:"neg_risk"`
}

// IsOpen reports whether the position still represents live exposure.
// A position with size > 0 but negligible value is closed (resolved
// worthless or fully sold).
func (p Position) IsOpen() bool {
	return p.CurrentValue > OpenValueThreshold
}

// MarketKey returns the canonical market+outcome identity used for matching.
// The condition ID plus outcome index is immutable; question titles can be
// re-used across resolved and re-listed markets, so title|outcome is only a
// fallback for records that carry no condition ID.
func (p Position) MarketKey() string {
	if p.ConditionID != "" {
		return p.ConditionID + ":" + strconv.Itoa(p.OutcomeIndex)
	}
	return p.Title + "|" + p.Outcome
}

// Label returns a human-readable name for log lines.
func (p Position) Label() string {
	if p.Title != "" {
		return fmt.Sprintf("%s / %s", p.Title, p.Outcome)
	}
	return p.Asset
}
