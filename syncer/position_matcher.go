package syncer

import (
	"math"

	"polymarket-copytrader/models"
)

// MatchedPair holds the trader and bot snapshots of the same market+outcome.
type MatchedPair struct {
	Trader models.Position `json:"trader"`
	Bot    models.Position `json:"bot"`
}

// SpreadCents is the bot entry premium over the trader's entry, in
// price-cents (price x 100, rounded).
func (p MatchedPair) SpreadCents() int {
	return int(math.Round((p.Bot.AvgPrice - p.Trader.AvgPrice) * 100))
}

// SlippagePct is the entry spread as a percentage of the trader's entry
// price. Zero when the trader entry price is zero.
func (p MatchedPair) SlippagePct() float64 {
	if p.Trader.AvgPrice == 0 {
		return 0
	}
	return (p.Bot.AvgPrice - p.Trader.AvgPrice) / p.Trader.AvgPrice * 100
}

// SizeDelta is bot size minus trader size.
func (p MatchedPair) SizeDelta() float64 {
	return p.Bot.Size - p.Trader.Size
}

// PnLDelta is bot PnL minus trader PnL.
func (p MatchedPair) PnLDelta() float64 {
	return p.Bot.CashPnL - p.Trader.CashPnL
}

// MatchResult is the outcome of pairing the two portfolios.
type MatchResult struct {
	Matched    []MatchedPair     `json:"matched"`
	TraderOnly []models.Position `json:"trader_only"`
	BotOnly    []models.Position `json:"bot_only"`
}

// MatchPositions pairs trader and bot open positions by market key. Closed
// positions never participate. Matching is by market identity only; price
// and size differences do not prevent a match. Input order is preserved in
// every output list.
func MatchPositions(traderPositions, botPositions []models.Position) MatchResult {
	result := MatchResult{
		Matched:    []MatchedPair{},
		TraderOnly: []models.Position{},
		BotOnly:    []models.Position{},
	}

	botByKey := make(map[string]models.Position)
	for _, pos := range botPositions {
		if pos.IsOpen() {
			botByKey[pos.MarketKey()] = pos
		}
	}

	traderKeys := make(map[string]bool)
	for _, pos := range traderPositions {
		if !pos.IsOpen() {
			continue
		}
		key := pos.MarketKey()
		traderKeys[key] = true

		if bot, ok := botByKey[key]; ok {
			result.Matched = append(result.Matched, MatchedPair{Trader: pos, Bot: bot})
		} else {
			result.TraderOnly = append(result.TraderOnly, pos)
		}
	}

	for _, pos := range botPositions {
		if pos.IsOpen() && !traderKeys[pos.MarketKey()] {
			result.BotOnly = append(result.BotOnly, pos)
		}
	}

	return result
}

// DriftReport summarizes how far the bot portfolio has drifted from the
// trader's.
type DriftReport struct {
	MatchedCount    int     `json:"matched_count"`
	TraderOnlyCount int     `json:"trader_only_count"`
	BotOnlyCount    int     `json:"bot_only_count"`
	MatchRatePct    int     `json:"match_rate_pct"`
	AvgSlippagePct  float64 `json:"avg_slippage_pct"`
	TotalSizeDelta  float64 `json:"total_size_delta"`
	TotalPnLDelta   float64 `json:"total_pnl_delta"`
}

// Report computes aggregate drift statistics over the match result. Average
// slippage is the arithmetic mean of per-pair slippage percentages, not
// size-weighted.
func (r MatchResult) Report() DriftReport {
	report := DriftReport{
		MatchedCount:    len(r.Matched),
		TraderOnlyCount: len(r.TraderOnly),
		BotOnlyCount:    len(r.BotOnly),
	}

	traderOpen := len(r.Matched) + len(r.TraderOnly)
	if traderOpen > 0 {
		report.MatchRatePct = int(math.Round(float64(len(r.Matched)) / float64(traderOpen) * 100))
	}

	for _, pair := range r.Matched {
		report.AvgSlippagePct += pair.SlippagePct()
		report.TotalSizeDelta += pair.SizeDelta()
		report.TotalPnLDelta += pair.PnLDelta()
	}
	if len(r.Matched) > 0 {
		report.AvgSlippagePct /= float64(len(r.Matched))
	}

	return report
}
