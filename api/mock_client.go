package api

import (
	"context"
	"sync"

	"polymarket-copytrader/models"
)

// ClobClientInterface defines the methods needed from a CLOB client.
// This interface enables dependency injection for testing.
type ClobClientInterface interface {
	SetFunder(address string)
	SetSignatureType(sigType int)
	DeriveAPICreds(ctx context.Context) (*APICreds, error)

	GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error)
	GetMarket(ctx context.Context, conditionID string) (*MarketInfo, error)

	PlaceLimitOrder(ctx context.Context, tokenID string, side Side, size float64, price float64, negRisk bool) (*OrderResponse, error)
	PlaceOrderFOK(ctx context.Context, tokenID string, side Side, size float64, price float64, negRisk bool) (*OrderResponse, error)
}

// DataClientInterface defines the methods needed from the data API client.
type DataClientInterface interface {
	GetOpenPositions(ctx context.Context, address string) ([]models.Position, error)
	GetActivity(ctx context.Context, address string, limit int) ([]models.TradeDetail, error)
	USDCBalance(ctx context.Context, address string) (float64, error)
}

var _ ClobClientInterface = (*ClobClient)(nil)
var _ ClobClientInterface = (*MockClobClient)(nil)
var _ DataClientInterface = (*Client)(nil)
var _ DataClientInterface = (*MockDataClient)(nil)

// MockClobClient is a mock CLOB client for testing.
type MockClobClient struct {
	mu sync.RWMutex

	// Response data
	OrderBook     *OrderBook
	OrderBooks    map[string]*OrderBook // per-token; falls back to OrderBook
	MarketInfo    *MarketInfo
	OrderResponse *OrderResponse
	APICreds      *APICreds

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error

	// Detailed call tracking for verification
	PlaceOrderCalls []PlaceOrderCall
}

// PlaceOrderCall records one order placement.
type PlaceOrderCall struct {
	TokenID   string
	Side      Side
	Size      float64
	Price     float64
	NegRisk   bool
	OrderType OrderType
}

// NewMockClobClient creates a new mock CLOB client.
func NewMockClobClient() *MockClobClient {
	return &MockClobClient{
		Calls:           make(map[string]int),
		ErrorOnNext:     make(map[string]error),
		OrderBooks:      make(map[string]*OrderBook),
		PlaceOrderCalls: []PlaceOrderCall{},
		APICreds: &APICreds{
			APIKey:        "test-api-key",
			APISecret:     "test-api-secret",
			APIPassphrase: "test-passphrase",
		},
	}
}

func (m *MockClobClient) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockClobClient) SetFunder(address string) {
	m.trackCall("SetFunder")
}

func (m *MockClobClient) SetSignatureType(sigType int) {
	m.trackCall("SetSignatureType")
}

func (m *MockClobClient) DeriveAPICreds(ctx context.Context) (*APICreds, error) {
	if err := m.trackCall("DeriveAPICreds"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.APICreds, nil
}

func (m *MockClobClient) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	if err := m.trackCall("GetOrderBook"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if book, ok := m.OrderBooks[tokenID]; ok {
		return book, nil
	}
	if m.OrderBook != nil {
		return m.OrderBook, nil
	}
	return &OrderBook{
		Asks: []OrderBookLevel{
			{Price: "0.50", Size: "100"},
		},
		Bids: []OrderBookLevel{
			{Price: "0.49", Size: "100"},
		},
	}, nil
}

// SetOrderBookForToken installs a per-token book response.
func (m *MockClobClient) SetOrderBookForToken(tokenID string, book *OrderBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OrderBooks[tokenID] = book
}

func (m *MockClobClient) GetMarket(ctx context.Context, conditionID string) (*MarketInfo, error) {
	if err := m.trackCall("GetMarket"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.MarketInfo != nil {
		return m.MarketInfo, nil
	}
	return &MarketInfo{
		ConditionID: conditionID,
		NegRisk:     false,
	}, nil
}

func (m *MockClobClient) PlaceLimitOrder(ctx context.Context, tokenID string, side Side, size float64, price float64, negRisk bool) (*OrderResponse, error) {
	if err := m.trackCall("PlaceLimitOrder"); err != nil {
		return nil, err
	}
	m.recordOrder(tokenID, side, size, price, negRisk, OrderTypeGTC)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.OrderResponse != nil {
		return m.OrderResponse, nil
	}
	return &OrderResponse{
		Success: true,
		OrderID: "mock-limit-order-id",
		Status:  "live",
	}, nil
}

func (m *MockClobClient) PlaceOrderFOK(ctx context.Context, tokenID string, side Side, size float64, price float64, negRisk bool) (*OrderResponse, error) {
	if err := m.trackCall("PlaceOrderFOK"); err != nil {
		return nil, err
	}
	m.recordOrder(tokenID, side, size, price, negRisk, OrderTypeFOK)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.OrderResponse != nil {
		return m.OrderResponse, nil
	}
	return &OrderResponse{
		Success: true,
		OrderID: "mock-fok-order-id",
		Status:  "matched",
	}, nil
}

func (m *MockClobClient) recordOrder(tokenID string, side Side, size, price float64, negRisk bool, orderType OrderType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlaceOrderCalls = append(m.PlaceOrderCalls, PlaceOrderCall{
		TokenID:   tokenID,
		Side:      side,
		Size:      size,
		Price:     price,
		NegRisk:   negRisk,
		OrderType: orderType,
	})
}

// MockDataClient is a mock data API client for testing.
type MockDataClient struct {
	mu sync.RWMutex

	// Response data
	PositionsByWallet map[string][]models.Position
	Activity          []models.TradeDetail
	Balance           float64

	// Call tracking
	Calls map[string]int

	// Error injection
	ErrorOnNext map[string]error
}

// NewMockDataClient creates a new mock data API client.
func NewMockDataClient() *MockDataClient {
	return &MockDataClient{
		PositionsByWallet: make(map[string][]models.Position),
		Calls:             make(map[string]int),
		ErrorOnNext:       make(map[string]error),
	}
}

func (m *MockDataClient) trackCall(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockDataClient) GetOpenPositions(ctx context.Context, address string) ([]models.Position, error) {
	if err := m.trackCall("GetOpenPositions"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.PositionsByWallet[address], nil
}

func (m *MockDataClient) GetActivity(ctx context.Context, address string, limit int) ([]models.TradeDetail, error) {
	if err := m.trackCall("GetActivity"); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Activity, nil
}

func (m *MockDataClient) USDCBalance(ctx context.Context, address string) (float64, error) {
	if err := m.trackCall("USDCBalance"); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Balance, nil
}
