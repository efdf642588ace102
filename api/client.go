package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"polymarket-copytrader/models"
)

const defaultDataAPIURL = "https://data-api.polymarket.com"

// Client talks to the Polymarket data API (positions and activity feeds).
// It is read-only; order placement goes through ClobClient.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a data API client. An empty baseURL selects production.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultDataAPIURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetOpenPositions returns the wallet's position snapshot. Closed positions
// (negligible current value) are included; callers filter as needed.
func (c *Client) GetOpenPositions(ctx context.Context, address string) ([]models.Position, error) {
	values := url.Values{}
	values.Set("user", address)
	values.Set("sizeThreshold", "0")
	values.Set("limit", "500")

	var raw []OpenPosition
	if err := c.getJSON(ctx, "/positions?"+values.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetch positions for %s: %w", address, err)
	}

	positions := make([]models.Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, p.ToModel())
	}
	return positions, nil
}

// GetActivity returns the wallet's most recent activity records, newest first.
func (c *Client) GetActivity(ctx context.Context, address string, limit int) ([]models.TradeDetail, error) {
	if limit <= 0 {
		limit = 100
	}
	values := url.Values{}
	values.Set("user", address)
	values.Set("limit", strconv.Itoa(limit))

	var raw []DataActivity
	if err := c.getJSON(ctx, "/activity?"+values.Encode(), &raw); err != nil {
		return nil, fmt.Errorf("fetch activity for %s: %w", address, err)
	}

	trades := make([]models.TradeDetail, 0, len(raw))
	for _, a := range raw {
		trades = append(trades, models.TradeDetail{
			ID:              a.TransactionHash + ":" + a.Asset,
			UserID:          a.ProxyWallet,
			TokenID:         a.Asset,
			ConditionID:     a.ConditionID,
			Type:            a.Type,
			Side:            a.Side,
			Size:            a.Size.Float64(),
			UsdcSize:        a.UsdcSize.Float64(),
			Price:           a.Price.Float64(),
			Outcome:         a.Outcome,
			OutcomeIndex:    a.OutcomeIndex,
			Title:           a.Title,
			Slug:            a.Slug,
			TransactionHash: a.TransactionHash,
			Timestamp:       time.Unix(a.Timestamp, 0),
		})
	}
	return trades, nil
}

// USDCBalance returns the wallet's available USDC, read on-chain.
func (c *Client) USDCBalance(ctx context.Context, address string) (float64, error) {
	return GetOnChainUSDCBalance(ctx, address)
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
