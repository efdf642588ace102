package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"polymarket-copytrader/api"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
	"polymarket-copytrader/syncer"
)

const driftCacheTTL = 1 * time.Minute

// Handler handles HTTP requests.
type Handler struct {
	data          api.DataClientInterface
	store         storage.DataStore
	copyTrader    *syncer.CopyTrader
	traderAddress string
	botAddress    string
}

// NewHandler creates a new handler.
func NewHandler(data api.DataClientInterface, store storage.DataStore, copyTrader *syncer.CopyTrader, traderAddress, botAddress string) *Handler {
	return &Handler{
		data:          data,
		store:         store,
		copyTrader:    copyTrader,
		traderAddress: traderAddress,
		botAddress:    botAddress,
	}
}

// driftResponse is the drift dashboard payload.
type driftResponse struct {
	Trader     string               `json:"trader"`
	Bot        string               `json:"bot"`
	Report     syncer.DriftReport   `json:"report"`
	Matched    []syncer.MatchedPair `json:"matched"`
	TraderOnly []models.Position    `json:"trader_only"`
	BotOnly    []models.Position    `json:"bot_only"`
}

// GetDrift compares the two portfolios and reports matched pairs, unmatched
// sets, and aggregate drift statistics. Results are cached briefly. An
// optional wallet query parameter swaps in a different trader to compare
// against.
func (h *Handler) GetDrift(c *gin.Context) {
	ctx := c.Request.Context()

	traderAddress := h.traderAddress
	if wallet := c.GetString("validatedWallet"); wallet != "" {
		traderAddress = wallet
	}
	cacheKey := traderAddress + ":" + h.botAddress

	if h.store != nil {
		if cached, ok, err := h.store.GetCachedDriftReport(ctx, cacheKey); err == nil && ok {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			return
		}
	}

	traderPositions, err := h.data.GetOpenPositions(ctx, traderAddress)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load trader positions"})
		return
	}
	botPositions, err := h.data.GetOpenPositions(ctx, h.botAddress)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to load bot positions"})
		return
	}

	result := syncer.MatchPositions(traderPositions, botPositions)
	resp := driftResponse{
		Trader:     traderAddress,
		Bot:        h.botAddress,
		Report:     result.Report(),
		Matched:    result.Matched,
		TraderOnly: result.TraderOnly,
		BotOnly:    result.BotOnly,
	}

	if h.store != nil {
		if payload, err := json.Marshal(resp); err == nil {
			if err := h.store.CacheDriftReport(ctx, cacheKey, string(payload), driftCacheTTL); err != nil {
				log.Debugf("[Handlers] Drift cache write failed: %v", err)
			}
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetReconcileOutcomes lists recent reconciliation exit outcomes.
func (h *Handler) GetReconcileOutcomes(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not available"})
		return
	}
	limit := parseLimit(c, 100)

	outcomes, err := h.store.ListReconcileOutcomes(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load reconcile outcomes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

// GetCopyTrades lists recent copy-trade attempts.
func (h *Handler) GetCopyTrades(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "persistence not available"})
		return
	}
	limit := parseLimit(c, 100)

	trades, err := h.store.ListCopyTrades(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load copy trades"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}

// ExecuteCopyTrade accepts a trade payload and pushes it through the copy
// pipeline. Internal hook for manual replays and integration tests.
func (h *Handler) ExecuteCopyTrade(c *gin.Context) {
	if h.copyTrader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "copy trader not running"})
		return
	}

	var trade models.TradeDetail
	if err := c.ShouldBindJSON(&trade); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid trade payload: " + err.Error()})
		return
	}
	if trade.ID == "" || trade.TokenID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trade id and token_id are required"})
		return
	}
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now()
	}
	trade.DetectionSource = "manual"

	h.copyTrader.HandleTrade(c.Request.Context(), trade)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "trade_id": trade.ID})
}

// Health is a liveness probe.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseLimit(c *gin.Context, def int) int {
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 1000 {
			return l
		}
	}
	return def
}
