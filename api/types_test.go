package api

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumericUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want float64
	}{
		{"plain number", `12.5`, 12.5},
		{"quoted number", `"12.5"`, 12.5},
		{"integer", `7`, 7},
		{"null", `null`, 0},
		{"empty string", `""`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n Numeric
			require.NoError(t, json.Unmarshal([]byte(tt.json), &n))
			assert.Equal(t, tt.want, n.Float64())
		})
	}

	var n Numeric
	assert.Error(t, json.Unmarshal([]byte(`"not a number"`), &n))
}

func TestOpenPositionToModel(t *testing.T) {
	pos := OpenPosition{
		ProxyWallet:  "0xwallet",
		Asset:        "tok-1",
		ConditionID:  "0xaaa",
		Size:         100,
		AvgPrice:     0.40,
		CurPrice:     0.55,
		CurrentValue: 55,
		Title:        "Test Market",
		Outcome:      "Yes",
		OutcomeIndex: 1,
		NegativeRisk: true,
	}

	m := pos.ToModel()
	assert.Equal(t, "0xwallet", m.Wallet)
	assert.Equal(t, "tok-1", m.Asset)
	assert.Equal(t, 55.0, m.CurrentValue)
	assert.Equal(t, 1, m.OutcomeIndex)
	assert.True(t, m.NegRisk)
	assert.Equal(t, "0xaaa:1", m.MarketKey())
}

func TestOpenPositionToModelValueFallback(t *testing.T) {
	// Some payloads omit currentValue; derive it from size * current price.
	pos := OpenPosition{Asset: "tok-1", Size: 100, CurPrice: 0.55}
	assert.InDelta(t, 55.0, pos.ToModel().CurrentValue, 1e-9)

	// Negative values clamp to zero so the position reads as closed.
	neg := OpenPosition{Asset: "tok-1", Size: 100, CurrentValue: -3}
	assert.Equal(t, 0.0, neg.ToModel().CurrentValue)
}

func TestCalculateOptimalFill(t *testing.T) {
	book := &OrderBook{
		Asks: []OrderBookLevel{
			{Price: "0.50", Size: "100"}, // $50 of depth
			{Price: "0.52", Size: "100"}, // $52 of depth
		},
		Bids: []OrderBookLevel{
			{Price: "0.49", Size: "100"},
		},
	}

	// $76 buys the whole first level plus half of the second.
	size, avgPrice, filled := CalculateOptimalFill(book, SideBuy, 76)
	assert.InDelta(t, 150.0, size, 1e-9)
	assert.InDelta(t, 76.0/150.0, avgPrice, 1e-9)
	assert.InDelta(t, 76.0, filled, 1e-9)

	// More USDC than total ask depth: fill everything available.
	size, _, filled = CalculateOptimalFill(book, SideBuy, 1000)
	assert.InDelta(t, 200.0, size, 1e-9)
	assert.InDelta(t, 102.0, filled, 1e-9)

	// Sells walk the bid side.
	size, avgPrice, _ = CalculateOptimalFill(book, SideSell, 24.5)
	assert.InDelta(t, 50.0, size, 1e-9)
	assert.InDelta(t, 0.49, avgPrice, 1e-9)
}
