package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"polymarket-copytrader/models"
)

const liveDataWSURL = "wss://ws-live-data.polymarket.com"

// LiveTradeHandler is called for each trade detected on the live feed.
type LiveTradeHandler func(trade models.TradeDetail)

// LiveWSClient streams trader activity from the Polymarket live-data
// websocket. It reports trades seconds before the data API reflects them,
// which is what makes low-latency copying possible.
type LiveWSClient struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	onTrade LiveTradeHandler

	// Followed addresses (lowercase, 0x-prefixed).
	followedAddrs   map[string]bool
	followedAddrsMu sync.RWMutex

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewLiveWSClient creates a live feed client.
func NewLiveWSClient(onTrade LiveTradeHandler) *LiveWSClient {
	return &LiveWSClient{
		onTrade:       onTrade,
		followedAddrs: make(map[string]bool),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// SetFollowedAddresses replaces the set of trader wallets to stream.
func (c *LiveWSClient) SetFollowedAddresses(addrs []string) {
	c.followedAddrsMu.Lock()
	defer c.followedAddrsMu.Unlock()

	c.followedAddrs = make(map[string]bool, len(addrs))
	for _, addr := range addrs {
		c.followedAddrs[normalizeAddr(addr)] = true
	}
	log.Infof("[LiveWS] Streaming activity for %d addresses", len(c.followedAddrs))
}

func normalizeAddr(addr string) string {
	normalized := strings.ToLower(strings.TrimSpace(addr))
	if !strings.HasPrefix(normalized, "0x") {
		normalized = "0x" + normalized
	}
	return normalized
}

// Start connects and begins streaming. Returns an error only when the
// initial connection fails; later drops are handled by reconnecting.
func (c *LiveWSClient) Start(ctx context.Context) error {
	if c.running {
		return fmt.Errorf("LiveWS client already running")
	}

	if err := c.connect(); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}
	if err := c.subscribe(); err != nil {
		c.conn.Close()
		return fmt.Errorf("subscription failed: %w", err)
	}

	c.running = true
	go c.readLoop(ctx)

	log.Infof("[LiveWS] Started")
	return nil
}

// Stop shuts the client down.
func (c *LiveWSClient) Stop() {
	if !c.running {
		return
	}
	c.running = false
	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()

	select {
	case <-c.doneCh:
	case <-time.After(5 * time.Second):
		log.Warnf("[LiveWS] Shutdown timeout")
	}
	log.Infof("[LiveWS] Stopped")
}

func (c *LiveWSClient) connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(liveDataWSURL, nil)
	if err != nil {
		return err
	}

	c.conn = conn
	log.Infof("[LiveWS] Connected")
	return nil
}

func (c *LiveWSClient) subscribe() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}

	c.followedAddrsMu.RLock()
	addrs := make([]string, 0, len(c.followedAddrs))
	for addr := range c.followedAddrs {
		addrs = append(addrs, addr)
	}
	c.followedAddrsMu.RUnlock()

	subMsg := map[string]interface{}{
		"action": "subscribe",
		"subscriptions": []map[string]interface{}{
			{
				"topic":   "activity",
				"type":    "trades",
				"filters": strings.Join(addrs, ","),
			},
		},
	}
	if err := c.conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("subscribe write failed: %w", err)
	}

	log.Infof("[LiveWS] Subscribed to trade activity")
	return nil
}

func (c *LiveWSClient) readLoop(ctx context.Context) {
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.reconnect(ctx)
			continue
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			log.Warnf("[LiveWS] Read error: %v, reconnecting...", err)
			c.reconnect(ctx)
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *LiveWSClient) reconnect(ctx context.Context) {
	log.Infof("[LiveWS] Reconnecting in 2s...")

	select {
	case <-ctx.Done():
		return
	case <-c.stopCh:
		return
	case <-time.After(2 * time.Second):
	}

	if err := c.connect(); err != nil {
		log.Warnf("[LiveWS] Reconnection failed: %v", err)
		return
	}
	if err := c.subscribe(); err != nil {
		log.Warnf("[LiveWS] Resubscription failed: %v", err)
	}
}

func (c *LiveWSClient) handleMessage(data []byte) {
	var msg struct {
		Topic   string       `json:"topic"`
		Type    string       `json:"type"`
		Payload DataActivity `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Topic != "activity" || msg.Type != "trades" {
		return
	}

	trade := msg.Payload
	if trade.TransactionHash == "" {
		return
	}

	// The subscription filter is best effort; drop anything from wallets we
	// don't follow.
	c.followedAddrsMu.RLock()
	followed := c.followedAddrs[normalizeAddr(trade.ProxyWallet)]
	c.followedAddrsMu.RUnlock()
	if !followed {
		return
	}

	if c.onTrade == nil {
		return
	}

	c.onTrade(models.TradeDetail{
		ID:              trade.TransactionHash + ":" + trade.Asset,
		UserID:          trade.ProxyWallet,
		TokenID:         trade.Asset,
		ConditionID:     trade.ConditionID,
		Type:            trade.Type,
		Side:            trade.Side,
		Size:            trade.Size.Float64(),
		UsdcSize:        trade.UsdcSize.Float64(),
		Price:           trade.Price.Float64(),
		Outcome:         trade.Outcome,
		OutcomeIndex:    trade.OutcomeIndex,
		Title:           trade.Title,
		Slug:            trade.Slug,
		TransactionHash: trade.TransactionHash,
		Timestamp:       time.Unix(trade.Timestamp, 0),
		DetectedAt:      time.Now(),
		DetectionSource: "live_ws",
	})
}
