package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
)

// CopyTrader mirrors a tracked trader's fills into the bot wallet. Trades
// arrive from the polled activity feed and, when wired, the live websocket;
// both funnel into the same guarded execution loop the reconciler uses.
type CopyTrader struct {
	store  storage.DataStore
	data   api.DataClientInterface
	clob   api.ClobClientInterface
	loop   *ExecutionLoop
	cfg    config.CopyConfig
	trader string

	running bool
	stopCh  chan struct{}

	// Trades already handled or in flight, keyed by trade ID. Bounded:
	// once seenLimit is exceeded the oldest entries are evicted. Anything
	// that old re-surfacing from the feed is dropped by the staleness
	// check instead.
	seen      map[string]bool
	seenOrder []string
	seenLimit int
	seenMu    sync.Mutex
}

// defaultSeenLimit covers hours of a busy trader's activity at the default
// poll interval.
const defaultSeenLimit = 4096

// NewCopyTrader creates a copy trader following one trader address.
func NewCopyTrader(
	store storage.DataStore,
	data api.DataClientInterface,
	clob api.ClobClientInterface,
	guard config.GuardConfig,
	cfg config.CopyConfig,
	traderAddress string,
	scheduler Scheduler,
) *CopyTrader {
	return &CopyTrader{
		store:     store,
		data:      data,
		clob:      clob,
		loop:      NewExecutionLoop(clob, guard, scheduler),
		cfg:       cfg,
		trader:    traderAddress,
		stopCh:    make(chan struct{}),
		seen:      make(map[string]bool),
		seenLimit: defaultSeenLimit,
	}
}

// Start begins polling the activity feed.
func (ct *CopyTrader) Start(ctx context.Context) error {
	if ct.running {
		return fmt.Errorf("copy trader already running")
	}

	log.Infof("[CopyTrader] Initializing CLOB API credentials...")
	if _, err := ct.clob.DeriveAPICreds(ctx); err != nil {
		return fmt.Errorf("derive API creds: %w", err)
	}

	ct.running = true
	go ct.run(ctx)

	log.Infof("[CopyTrader] Started: trader=%s multiplier=%.2f minOrder=$%.2f interval=%dms",
		ct.trader, ct.cfg.Multiplier, ct.cfg.MinOrderUSDC, ct.cfg.PollIntervalMS)
	return nil
}

// Stop halts the poll loop.
func (ct *CopyTrader) Stop() {
	if ct.running {
		close(ct.stopCh)
		ct.running = false
		log.Infof("[CopyTrader] Stopped")
	}
}

func (ct *CopyTrader) run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(ct.cfg.PollIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ct.stopCh:
			return
		case <-ticker.C:
			if err := ct.pollOnce(ctx); err != nil {
				log.Warnf("[CopyTrader] Poll error: %v", err)
			}
		}
	}
}

func (ct *CopyTrader) pollOnce(ctx context.Context) error {
	trades, err := ct.data.GetActivity(ctx, ct.trader, 50)
	if err != nil {
		return fmt.Errorf("fetch activity: %w", err)
	}

	for _, trade := range trades {
		trade.DetectionSource = "poll"
		ct.HandleTrade(ctx, trade)
	}
	return nil
}

// HandleTrade copies one detected trade. Safe to call from both the poll
// loop and the live websocket callback; duplicates are dropped here.
func (ct *CopyTrader) HandleTrade(ctx context.Context, trade models.TradeDetail) {
	if !ct.claim(trade.ID) {
		return
	}

	if trade.Type != "" && trade.Type != "TRADE" {
		return
	}
	if maxAge := time.Duration(ct.cfg.MaxTradeAgeMin) * time.Minute; maxAge > 0 && time.Since(trade.Timestamp) > maxAge {
		log.Debugf("[CopyTrader] Skipping stale trade %s (age %s)", trade.ID, time.Since(trade.Timestamp).Round(time.Second))
		return
	}
	if trade.Side != string(api.SideBuy) && trade.Side != string(api.SideSell) {
		return
	}

	if err := ct.copyTrade(ctx, trade); err != nil {
		log.Errorf("[CopyTrader] Error copying trade %s: %v", trade.ID, err)
	}
}

// claim marks a trade as handled; reports false when it already was.
func (ct *CopyTrader) claim(tradeID string) bool {
	ct.seenMu.Lock()
	defer ct.seenMu.Unlock()
	if ct.seen[tradeID] {
		return false
	}
	ct.seen[tradeID] = true
	ct.seenOrder = append(ct.seenOrder, tradeID)
	for len(ct.seenOrder) > ct.seenLimit {
		delete(ct.seen, ct.seenOrder[0])
		ct.seenOrder = ct.seenOrder[1:]
	}
	return true
}

func (ct *CopyTrader) copyTrade(ctx context.Context, trade models.TradeDetail) error {
	negRisk := ct.resolveNegRisk(ctx, trade)

	intendedUSDC := trade.UsdcSize * ct.cfg.Multiplier
	if intendedUSDC < ct.cfg.MinOrderUSDC {
		intendedUSDC = ct.cfg.MinOrderUSDC
	}

	size := ct.copySize(ctx, trade, intendedUSDC)

	// Copies are fill-or-kill: a partially filled limit order would leave
	// the bot holding an unguarded remainder.
	instr := OrderInstruction{
		TokenID:        trade.TokenID,
		Side:           api.Side(trade.Side),
		Size:           size,
		ReferencePrice: trade.Price,
		NegRisk:        negRisk,
		OrderType:      api.OrderTypeFOK,
		Label:          trade.Title + " / " + trade.Outcome,
	}

	log.Infof("[CopyTrader] Copying %s: %s %.2f @ ref %.4f (trader spent $%.2f, we target $%.2f)",
		instr.Label, instr.Side, instr.Size, instr.ReferencePrice, trade.UsdcSize, intendedUSDC)

	outcome := ct.loop.Execute(ctx, instr)
	ct.record(ctx, trade, instr, intendedUSDC, outcome)

	if outcome.Status != TaskExecuted {
		log.Warnf("[CopyTrader] %s not copied (%s): %s", instr.Label, outcome.Status, outcome.Reason)
	}
	return nil
}

// copySize converts the trader's fill into the bot's order size. Buys are
// sized by walking the live ask book with the intended USDC, so a thin top
// level does not produce an unfillable quantity; the trader's price is only
// the fallback when the book cannot be fetched. Sells mirror the trader's
// size scaled by the multiplier.
func (ct *CopyTrader) copySize(ctx context.Context, trade models.TradeDetail, intendedUSDC float64) float64 {
	size := trade.Size * ct.cfg.Multiplier
	if trade.Price > 0 {
		if scaled := intendedUSDC / trade.Price; scaled > size {
			size = scaled
		}
	}

	if api.Side(trade.Side) != api.SideBuy {
		return size
	}

	book, err := ct.clob.GetOrderBook(ctx, trade.TokenID)
	if err != nil {
		log.Debugf("[CopyTrader] Book fetch for sizing failed, using price-based size: %v", err)
		return size
	}
	if fillSize, avgPrice, filledUSDC := api.CalculateOptimalFill(book, api.SideBuy, intendedUSDC); filledUSDC > 0 {
		log.Debugf("[CopyTrader] Sized buy from book: %.2f tokens @ ~%.4f for $%.2f", fillSize, avgPrice, filledUSDC)
		return fillSize
	}
	return size
}

// resolveNegRisk looks up whether the market settles through the negative
// risk exchange. On lookup failure assume the regular exchange.
func (ct *CopyTrader) resolveNegRisk(ctx context.Context, trade models.TradeDetail) bool {
	if trade.ConditionID == "" {
		return false
	}
	market, err := ct.clob.GetMarket(ctx, trade.ConditionID)
	if err != nil {
		log.Debugf("[CopyTrader] Market lookup failed for %s: %v", trade.ConditionID, err)
		return false
	}
	// Double-check the token belongs to this market when outcomes are listed.
	for _, token := range market.Tokens {
		if strings.EqualFold(token.Outcome, trade.Outcome) {
			return market.NegRisk
		}
	}
	return market.NegRisk
}

func (ct *CopyTrader) record(ctx context.Context, trade models.TradeDetail, instr OrderInstruction, intendedUSDC float64, outcome TaskOutcome) {
	if ct.store == nil {
		return
	}
	rec := storage.CopyTradeRecord{
		OriginalTradeID: trade.ID,
		OriginalTrader:  trade.UserID,
		MarketID:        trade.ConditionID,
		TokenID:         instr.TokenID,
		Outcome:         trade.Outcome,
		Title:           trade.Title,
		Side:            string(instr.Side),
		IntendedUSDC:    intendedUSDC,
		PricePaid:       outcome.Price,
		SizeBought:      instr.Size,
		Status:          string(outcome.Status),
		ErrorReason:     outcome.Reason,
		OrderID:         outcome.OrderID,
	}
	if err := ct.store.SaveCopyTrade(ctx, rec); err != nil {
		log.Warnf("[CopyTrader] Failed to persist copy trade %s: %v", trade.ID, err)
	}
}
