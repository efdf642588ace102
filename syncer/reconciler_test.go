package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
)

const (
	testTrader = "0xtrader"
	testBot    = "0xbot"
)

func newTestReconciler(data *api.MockDataClient, clob *api.MockClobClient, store storage.DataStore) *Reconciler {
	return NewReconciler(
		data, clob, store,
		guardCfg(),
		config.ReconcileConfig{TaskPauseMS: 250},
		testTrader, testBot,
		&fakeScheduler{},
	)
}

func stalePos(asset, conditionID string, size, curPrice float64) models.Position {
	return models.Position{
		Wallet:       testBot,
		Asset:        asset,
		ConditionID:  conditionID,
		Title:        "Market " + conditionID,
		Outcome:      "Yes",
		Size:         size,
		AvgPrice:     0.40,
		CurPrice:     curPrice,
		CurrentValue: size * curPrice,
	}
}

func TestReconcileNoStalePositions(t *testing.T) {
	data := api.NewMockDataClient()
	clob := api.NewMockClobClient()
	rec := newTestReconciler(data, clob, nil)

	shared := stalePos("tok-1", "0xaaa", 10, 0.5)
	outcomes, err := rec.Reconcile(context.Background(),
		[]models.Position{shared}, []models.Position{shared})

	require.NoError(t, err)
	assert.Empty(t, outcomes)
	// No orders and no balance fetch when there is nothing to unwind.
	assert.Empty(t, clob.PlaceOrderCalls)
	assert.Zero(t, data.Calls["USDCBalance"])
}

func TestReconcileSellsFullSize(t *testing.T) {
	data := api.NewMockDataClient()
	data.Balance = 100
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.51", Size: "100"}},
		Bids: []api.OrderBookLevel{{Price: "0.50", Size: "100"}},
	}
	store := storage.NewMockStore()
	rec := newTestReconciler(data, clob, store)

	bot := []models.Position{stalePos("tok-1", "0xaaa", 30, 0.5)}
	outcomes, err := rec.Reconcile(context.Background(), nil, bot)

	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, TaskExecuted, outcomes[0].Outcome.Status)

	require.Len(t, clob.PlaceOrderCalls, 1)
	call := clob.PlaceOrderCalls[0]
	assert.Equal(t, api.SideSell, call.Side)
	assert.Equal(t, 30.0, call.Size)
	assert.Equal(t, "tok-1", call.TokenID)
	// Exits rest on the book as limit orders rather than crossing it.
	assert.Equal(t, api.OrderTypeGTC, call.OrderType)

	assert.Equal(t, 1, data.Calls["USDCBalance"])
	require.Len(t, store.ReconcileOutcomes, 1)
	assert.Equal(t, "executed", store.ReconcileOutcomes[0].Status)
}

func TestReconcileContinuesAfterMidTaskFailure(t *testing.T) {
	data := api.NewMockDataClient()
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.51", Size: "100"}},
		Bids: []api.OrderBookLevel{{Price: "0.50", Size: "100"}},
	}
	store := storage.NewMockStore()
	rec := newTestReconciler(data, clob, store)

	bot := []models.Position{
		stalePos("tok-1", "0xaaa", 10, 0.5),
		stalePos("tok-2", "0xbbb", 20, 0.5),
		stalePos("tok-3", "0xccc", 30, 0.5),
	}

	// Task 1 succeeds; during the pause after it, arm a submission failure
	// so task 2 blows up. Task 3 must still run.
	sched := &hookScheduler{}
	sched.onSleep = func(n int) {
		if n == 1 {
			clob.ErrorOnNext["PlaceLimitOrder"] = errors.New("exchange down")
		}
	}
	rec = NewReconciler(data, clob, store, guardCfg(),
		config.ReconcileConfig{TaskPauseMS: 250}, testTrader, testBot, sched)

	outcomes, err := rec.Reconcile(context.Background(), nil, bot)

	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.Equal(t, TaskExecuted, outcomes[0].Outcome.Status)
	assert.Equal(t, TaskFailed, outcomes[1].Outcome.Status)
	assert.Contains(t, outcomes[1].Outcome.Reason, "exchange down")
	assert.Equal(t, TaskExecuted, outcomes[2].Outcome.Status)

	// Stale positions processed in input order.
	assert.Equal(t, "tok-1", outcomes[0].Position.Asset)
	assert.Equal(t, "tok-2", outcomes[1].Position.Asset)
	assert.Equal(t, "tok-3", outcomes[2].Position.Asset)

	assert.Len(t, store.ReconcileOutcomes, 3)
}

// hookScheduler invokes a callback with the 1-based sleep count, letting a
// test change state between reconciliation tasks.
type hookScheduler struct {
	n       int
	onSleep func(n int)
}

func (h *hookScheduler) Sleep(ctx context.Context, d time.Duration) error {
	h.n++
	if h.onSleep != nil {
		h.onSleep(h.n)
	}
	return ctx.Err()
}

func TestReconcileReferencePriceFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		pos     models.Position
		wantRef float64
	}{
		{
			name:    "current price preferred",
			pos:     models.Position{Asset: "t", Size: 5, AvgPrice: 0.40, CurPrice: 0.55, CurrentValue: 2.75},
			wantRef: 0.55,
		},
		{
			name:    "avg price fallback",
			pos:     models.Position{Asset: "t", Size: 5, AvgPrice: 0.40, CurrentValue: 2.0},
			wantRef: 0.40,
		},
		{
			name:    "neutral midpoint fallback",
			pos:     models.Position{Asset: "t", Size: 5, CurrentValue: 2.0},
			wantRef: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instr := exitInstruction(tt.pos)
			assert.Equal(t, tt.wantRef, instr.ReferencePrice)
			assert.Equal(t, api.SideSell, instr.Side)
			assert.Equal(t, tt.pos.Size, instr.Size)
		})
	}
}

func TestRunFatalOnPositionFetchFailure(t *testing.T) {
	data := api.NewMockDataClient()
	data.ErrorOnNext["GetOpenPositions"] = errors.New("feed unreachable")
	rec := newTestReconciler(data, api.NewMockClobClient(), nil)

	_, err := rec.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "trader positions")
}

func TestReconcileBalanceFetchFailureNotFatal(t *testing.T) {
	data := api.NewMockDataClient()
	data.ErrorOnNext["USDCBalance"] = errors.New("rpc timeout")
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.51", Size: "100"}},
		Bids: []api.OrderBookLevel{{Price: "0.50", Size: "100"}},
	}
	rec := newTestReconciler(data, clob, nil)

	outcomes, err := rec.Reconcile(context.Background(), nil,
		[]models.Position{stalePos("tok-1", "0xaaa", 10, 0.5)})

	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, TaskExecuted, outcomes[0].Outcome.Status)
}

func TestReconcileCancelledBetweenTasks(t *testing.T) {
	data := api.NewMockDataClient()
	clob := api.NewMockClobClient()
	clob.OrderBook = &api.OrderBook{
		Asks: []api.OrderBookLevel{{Price: "0.51", Size: "100"}},
		Bids: []api.OrderBookLevel{{Price: "0.50", Size: "100"}},
	}
	sched := &fakeScheduler{err: context.Canceled}
	rec := NewReconciler(data, clob, nil, guardCfg(),
		config.ReconcileConfig{TaskPauseMS: 250}, testTrader, testBot, sched)

	bot := []models.Position{
		stalePos("tok-1", "0xaaa", 10, 0.5),
		stalePos("tok-2", "0xbbb", 20, 0.5),
	}
	outcomes, err := rec.Reconcile(context.Background(), nil, bot)

	// Cancellation during the inter-task pause halts the pass cleanly,
	// keeping the outcomes gathered so far.
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, outcomes, 1)
	assert.Len(t, clob.PlaceOrderCalls, 1)
}
