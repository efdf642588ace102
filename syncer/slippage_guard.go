package syncer

import (
	"fmt"
	"math"
	"strconv"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
)

// Quote is one snapshot of the top of the book for a token.
type Quote struct {
	BestBid    float64
	BestAsk    float64
	BidSizeUSD float64 // USD notional available at the best bid
	AskSizeUSD float64 // USD notional available at the best ask
}

// QuoteFromBook extracts the top-of-book quote from a sorted order book.
// An empty side leaves its price and depth at zero.
func QuoteFromBook(book *api.OrderBook) Quote {
	var q Quote
	if len(book.Asks) > 0 {
		price, _ := strconv.ParseFloat(book.Asks[0].Price, 64)
		size, _ := strconv.ParseFloat(book.Asks[0].Size, 64)
		q.BestAsk = price
		q.AskSizeUSD = price * size
	}
	if len(book.Bids) > 0 {
		price, _ := strconv.ParseFloat(book.Bids[0].Price, 64)
		size, _ := strconv.ParseFloat(book.Bids[0].Size, 64)
		q.BestBid = price
		q.BidSizeUSD = price * size
	}
	return q
}

// GuardVerdict is the guard's decision for one order attempt.
type GuardVerdict int

const (
	// Proceed: the quote is within tolerance and the book is deep enough.
	Proceed GuardVerdict = iota
	// RetryAfterWait: violated, wait and re-check with a fresh quote.
	RetryAfterWait
	// Abort: violated terminally; no order for this task.
	Abort
)

func (v GuardVerdict) String() string {
	switch v {
	case Proceed:
		return "proceed"
	case RetryAfterWait:
		return "retry_after_wait"
	case Abort:
		return "abort"
	}
	return "unknown"
}

// GuardDecision pairs the verdict with the live price it was taken against
// and, for non-proceed verdicts, the reason.
type GuardDecision struct {
	Verdict   GuardVerdict
	LivePrice float64
	Reason    string
}

// CheckGuard decides whether one order attempt may go to the exchange.
//
// The live price is the best ask for a BUY and the best bid for a SELL.
// Drift is measured in the adverse direction only: a BUY that got cheaper or
// a SELL that got richer never violates tolerance. Both boundaries are
// inclusive on the proceed side — drift exactly at maxSlippagePct and depth
// exactly at minBookSizeUSD pass.
//
// attempt is the number of RetryAfterWait verdicts already taken for this
// task; once it reaches MaxRetries a violation aborts instead of retrying.
func CheckGuard(referencePrice float64, side api.Side, quote Quote, cfg config.GuardConfig, attempt int) GuardDecision {
	livePrice := quote.BestAsk
	depthUSD := quote.AskSizeUSD
	if side == api.SideSell {
		livePrice = quote.BestBid
		depthUSD = quote.BidSizeUSD
	}

	var reason string

	// Boundary comparisons carry a small epsilon so a quote sitting exactly
	// at the limit still proceeds despite float representation noise.
	const eps = 1e-9

	// No reference price means no tolerance to measure against; depth is
	// still enforced.
	if referencePrice > 0 && livePrice > 0 {
		drift := (livePrice - referencePrice) / referencePrice * 100
		adverse := drift > 0 // BUY: price rose
		if side == api.SideSell {
			adverse = drift < 0 // SELL: price fell
		}
		if adverse && math.Abs(drift) > cfg.MaxSlippagePct+eps {
			reason = fmt.Sprintf("slippage %.2f%% exceeds %.2f%% (ref=%.4f live=%.4f)",
				math.Abs(drift), cfg.MaxSlippagePct, referencePrice, livePrice)
		}
	}

	if reason == "" && depthUSD < cfg.MinBookSizeUSD-eps {
		reason = fmt.Sprintf("book depth $%.2f below $%.2f minimum", depthUSD, cfg.MinBookSizeUSD)
	}

	if reason == "" {
		return GuardDecision{Verdict: Proceed, LivePrice: livePrice}
	}

	if cfg.Action == config.GuardActionSkip {
		return GuardDecision{Verdict: Abort, LivePrice: livePrice, Reason: reason}
	}

	if attempt >= cfg.MaxRetries {
		return GuardDecision{Verdict: Abort, LivePrice: livePrice, Reason: "max retries exhausted: " + reason}
	}
	return GuardDecision{Verdict: RetryAfterWait, LivePrice: livePrice, Reason: reason}
}
