package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
)

func copyCfg() config.CopyConfig {
	return config.CopyConfig{
		Multiplier:     0.05,
		MinOrderUSDC:   1.0,
		PollIntervalMS: 2000,
		MaxTradeAgeMin: 5,
	}
}

func newTestCopyTrader(store storage.DataStore, clob *api.MockClobClient) *CopyTrader {
	return NewCopyTrader(store, api.NewMockDataClient(), clob, guardCfg(), copyCfg(), testTrader, &fakeScheduler{})
}

func traderBuy(id string) models.TradeDetail {
	return models.TradeDetail{
		ID:          id,
		UserID:      testTrader,
		ConditionID: "0xaaa",
		TokenID:     "tok-1",
		Type:        "TRADE",
		Side:        "BUY",
		Size:        100,
		UsdcSize:    40,
		Price:       0.40,
		Title:       "Test Market",
		Outcome:     "Yes",
		Timestamp:   time.Now(),
	}
}

func TestHandleTradeCopiesBuy(t *testing.T) {
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.40", Size: "500"}},
		Bids: []api.OrderBookLevel{{Price: "0.39", Size: "500"}},
	}
	store := storage.NewMockStore()
	ct := newTestCopyTrader(store, clob)

	ct.HandleTrade(context.Background(), traderBuy("t1"))

	require.Len(t, clob.PlaceOrderCalls, 1)
	call := clob.PlaceOrderCalls[0]
	assert.Equal(t, api.SideBuy, call.Side)
	assert.Equal(t, "tok-1", call.TokenID)
	// Copies go out fill-or-kill so a partial fill never lingers.
	assert.Equal(t, api.OrderTypeFOK, call.OrderType)
	// $40 * 0.05 = $2 at 0.40 -> 5 tokens.
	assert.InDelta(t, 5.0, call.Size, 1e-9)

	require.Len(t, store.CopyTrades, 1)
	rec := store.CopyTrades[0]
	assert.Equal(t, "executed", rec.Status)
	assert.Equal(t, "t1", rec.OriginalTradeID)
	assert.Equal(t, "0xaaa", rec.MarketID)
	assert.InDelta(t, 2.0, rec.IntendedUSDC, 1e-9)
}

func TestHandleTradeBuySizedFromBookDepth(t *testing.T) {
	clob := api.NewMockClobClient()
	// Thin top level: the intended $20 walks into the second ask level.
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.40", Size: "20"}, {Price: "0.50", Size: "100"}},
		Bids: []api.OrderBookLevel{{Price: "0.39", Size: "500"}},
	}
	store := storage.NewMockStore()
	ct := newTestCopyTrader(store, clob)

	trade := traderBuy("t1")
	trade.UsdcSize = 400 // * 0.05 = $20 intended
	ct.HandleTrade(context.Background(), trade)

	require.Len(t, clob.PlaceOrderCalls, 1)
	// 20 tokens at 0.40 ($8) plus 24 at 0.50 ($12), not a naive $20/0.40 = 50.
	assert.InDelta(t, 44.0, clob.PlaceOrderCalls[0].Size, 1e-9)
}

func TestHandleTradeDeduplicates(t *testing.T) {
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.40", Size: "500"}},
		Bids: []api.OrderBookLevel{{Price: "0.39", Size: "500"}},
	}
	ct := newTestCopyTrader(storage.NewMockStore(), clob)

	trade := traderBuy("t1")
	ct.HandleTrade(context.Background(), trade)
	ct.HandleTrade(context.Background(), trade) // live WS reports the same fill

	assert.Len(t, clob.PlaceOrderCalls, 1)
}

func TestHandleTradeSkipsNonTrade(t *testing.T) {
	clob := api.NewMockClobClient()
	ct := newTestCopyTrader(storage.NewMockStore(), clob)

	redeem := traderBuy("t1")
	redeem.Type = "REDEEM"
	ct.HandleTrade(context.Background(), redeem)

	assert.Empty(t, clob.PlaceOrderCalls)
	assert.Zero(t, clob.Calls["GetOrderBook"])
}

func TestHandleTradeSkipsStale(t *testing.T) {
	clob := api.NewMockClobClient()
	ct := newTestCopyTrader(storage.NewMockStore(), clob)

	old := traderBuy("t1")
	old.Timestamp = time.Now().Add(-10 * time.Minute)
	ct.HandleTrade(context.Background(), old)

	assert.Empty(t, clob.PlaceOrderCalls)
}

func TestHandleTradeMinOrderFloor(t *testing.T) {
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.50", Size: "500"}},
		Bids: []api.OrderBookLevel{{Price: "0.49", Size: "500"}},
	}
	store := storage.NewMockStore()
	ct := newTestCopyTrader(store, clob)

	small := traderBuy("t1")
	small.UsdcSize = 5 // 5 * 0.05 = $0.25, below the $1 floor
	small.Size = 10
	small.Price = 0.50
	ct.HandleTrade(context.Background(), small)

	require.Len(t, store.CopyTrades, 1)
	assert.InDelta(t, 1.0, store.CopyTrades[0].IntendedUSDC, 1e-9)
}

func TestClaimEvictsOldestWhenFull(t *testing.T) {
	ct := newTestCopyTrader(storage.NewMockStore(), api.NewMockClobClient())
	ct.seenLimit = 2

	require.True(t, ct.claim("t1"))
	require.True(t, ct.claim("t2"))
	require.True(t, ct.claim("t3"))

	assert.Len(t, ct.seen, 2)
	assert.False(t, ct.claim("t3"))
	// t1 was evicted; if it ever resurfaced from the feed the staleness
	// check would drop it before execution.
	assert.True(t, ct.claim("t1"))
}

func TestHandleTradeGuardSkipRecorded(t *testing.T) {
	clob := api.NewMockClobClient()
	// Ask 10% above the trader's price: adverse for a BUY copy.
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.44", Size: "500"}},
		Bids: []api.OrderBookLevel{{Price: "0.43", Size: "500"}},
	}
	store := storage.NewMockStore()
	ct := NewCopyTrader(store, api.NewMockDataClient(), clob,
		config.GuardConfig{MaxSlippagePct: 1.0, MaxRetries: 2, MinBookSizeUSD: 5, Action: config.GuardActionSkip},
		copyCfg(), testTrader, &fakeScheduler{})

	ct.HandleTrade(context.Background(), traderBuy("t1"))

	assert.Empty(t, clob.PlaceOrderCalls)
	require.Len(t, store.CopyTrades, 1)
	assert.Equal(t, "skipped", store.CopyTrades[0].Status)
	assert.Contains(t, store.CopyTrades[0].ErrorReason, "slippage")
}
