package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"polymarket-copytrader/models"
)

// Numeric handles Polymarket numbers that may arrive as strings or numbers.
type Numeric float64

func (n *Numeric) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || strings.EqualFold(string(data), "null") {
		*n = 0
		return nil
	}

	// Handle quoted numbers.
	if data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*n = Numeric(f)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Numeric(f)
	return nil
}

func (n Numeric) Float64() float64 {
	return float64(n)
}

// OpenPosition is one holding returned by the data API positions endpoint.
type OpenPosition struct {
	ProxyWallet  string  `json:"proxyWallet"`
	Asset        string  `json:"asset"` // CLOB token ID
	ConditionID  string  `json:"conditionId"`
	Size         Numeric `json:"size"`
	AvgPrice     Numeric `json:"avgPrice"`
	CurPrice     Numeric `json:"curPrice"`
	CurrentValue Numeric `json:"currentValue"`
	CashPnL      Numeric `json:"cashPnl"`
	RealizedPNL  Numeric `json:"realizedPnl"`
	Title        string  `json:"title"`
	Slug         string  `json:"slug"`
	Outcome      string  `json:"outcome"`
	OutcomeIndex int     `json:"outcomeIndex"`
	EventSlug    string  `json:"eventSlug"`
	NegativeRisk bool    `json:"negativeRisk"`
}

// ToModel converts the API payload into the domain snapshot.
func (p OpenPosition) ToModel() models.Position {
	value := p.CurrentValue.Float64()
	if value == 0 {
		value = p.Size.Float64() * p.CurPrice.Float64()
	}
	if value < 0 {
		value = 0
	}
	return models.Position{
		Wallet:       p.ProxyWallet,
		Asset:        p.Asset,
		ConditionID:  p.ConditionID,
		Title:        p.Title,
		Outcome:      p.Outcome,
		OutcomeIndex: p.OutcomeIndex,
		Size:         p.Size.Float64(),
		AvgPrice:     p.AvgPrice.Float64(),
		CurPrice:     p.CurPrice.Float64(),
		CurrentValue: value,
		CashPnL:      p.CashPnL.Float64(),
		NegRisk:      p.NegativeRisk,
	}
}

// DataActivity is one record from the data API activity endpoint.
type DataActivity struct {
	ProxyWallet     string  `json:"proxyWallet"`
	Type            string  `json:"type"` // TRADE, REDEEM, SPLIT, MERGE
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Size            Numeric `json:"size"`
	UsdcSize        Numeric `json:"usdcSize"`
	Price           Numeric `json:"price"`
	Timestamp       int64   `json:"timestamp"`
	Title           string  `json:"title"`
	Slug            string  `json:"slug"`
	Outcome         string  `json:"outcome"`
	OutcomeIndex    int     `json:"outcomeIndex"`
	TransactionHash string  `json:"transactionHash"`
}
