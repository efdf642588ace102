package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"polymarket-copytrader/api"
	"polymarket-copytrader/middleware"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
)

const (
	testTrader = "0xtrader"
	testBot    = "0xbot"
)

func newTestRouter(data api.DataClientInterface, store storage.DataStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(data, store, nil, testTrader, testBot)

	r := gin.New()
	r.GET("/api/drift", middleware.ValidateWallet(), h.GetDrift)
	r.GET("/api/reconcile/outcomes", h.GetReconcileOutcomes)
	r.GET("/api/copytrades", h.GetCopyTrades)
	r.POST("/api/internal/execute-copy-trade", h.ExecuteCopyTrade)
	r.GET("/health", h.Health)
	return r
}

func openPosition(conditionID string, outcomeIndex int, avgPrice float64) models.Position {
	return models.Position{
		Asset:        "tok-" + conditionID,
		ConditionID:  conditionID,
		OutcomeIndex: outcomeIndex,
		Title:        "Market " + conditionID,
		Outcome:      "Yes",
		Size:         10,
		AvgPrice:     avgPrice,
		CurPrice:     avgPrice,
		CurrentValue: 10 * avgPrice,
	}
}

func TestGetDriftReportsMatchedAndStale(t *testing.T) {
	data := api.NewMockDataClient()
	data.PositionsByWallet[testTrader] = []models.Position{
		openPosition("0xaaa", 0, 0.40),
		openPosition("0xbbb", 0, 0.60),
	}
	data.PositionsByWallet[testBot] = []models.Position{
		openPosition("0xaaa", 0, 0.42),
		openPosition("0xccc", 0, 0.30), // stale
	}
	store := storage.NewMockStore()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/drift", nil)
	newTestRouter(data, store).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Trader string `json:"trader"`
		Report struct {
			MatchedCount    int `json:"matched_count"`
			TraderOnlyCount int `json:"trader_only_count"`
			BotOnlyCount    int `json:"bot_only_count"`
			MatchRatePct    int `json:"match_rate_pct"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testTrader, resp.Trader)
	assert.Equal(t, 1, resp.Report.MatchedCount)
	assert.Equal(t, 1, resp.Report.TraderOnlyCount)
	assert.Equal(t, 1, resp.Report.BotOnlyCount)
	assert.Equal(t, 50, resp.Report.MatchRatePct)

	// The computed report is cached for subsequent requests.
	assert.Equal(t, 1, store.Calls["CacheDriftReport"])
}

func TestGetDriftServedFromCache(t *testing.T) {
	data := api.NewMockDataClient()
	store := storage.NewMockStore()
	require.NoError(t, store.CacheDriftReport(context.Background(), testTrader+":"+testBot, `{"cached":true}`, 0))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/drift", nil)
	newTestRouter(data, store).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cached":true}`, w.Body.String())
	assert.Zero(t, data.Calls["GetOpenPositions"])
}

func TestGetDriftWalletOverride(t *testing.T) {
	other := "0x1111111111111111111111111111111111111111"
	data := api.NewMockDataClient()
	data.PositionsByWallet[other] = []models.Position{openPosition("0xddd", 0, 0.50)}
	data.PositionsByWallet[testBot] = []models.Position{openPosition("0xddd", 0, 0.50)}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/drift?wallet="+other, nil)
	newTestRouter(data, storage.NewMockStore()).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Trader string `json:"trader"`
		Report struct {
			MatchedCount int `json:"matched_count"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, other, resp.Trader)
	assert.Equal(t, 1, resp.Report.MatchedCount)
}

func TestGetDriftRejectsMalformedWallet(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/drift?wallet=zzz", nil)
	newTestRouter(api.NewMockDataClient(), storage.NewMockStore()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDriftUpstreamFailure(t *testing.T) {
	data := api.NewMockDataClient()
	data.ErrorOnNext["GetOpenPositions"] = assert.AnError

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/drift", nil)
	newTestRouter(data, storage.NewMockStore()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestGetReconcileOutcomesLimit(t *testing.T) {
	store := storage.NewMockStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveReconcileOutcome(context.Background(), storage.ReconcileRecord{
			Wallet: testBot, TokenID: "tok", Status: "executed",
		}))
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reconcile/outcomes?limit=2", nil)
	newTestRouter(api.NewMockDataClient(), store).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestListEndpointsWithoutStore(t *testing.T) {
	// Running without persistence is supported; the list endpoints must
	// answer 503 instead of dereferencing a nil store.
	router := newTestRouter(api.NewMockDataClient(), nil)

	for _, path := range []string{"/api/reconcile/outcomes", "/api/copytrades"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestGetDriftWithoutStoreSkipsCache(t *testing.T) {
	data := api.NewMockDataClient()
	data.PositionsByWallet[testTrader] = []models.Position{openPosition("0xaaa", 0, 0.40)}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/drift", nil)
	newTestRouter(data, nil).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExecuteCopyTradeRejectsInvalidPayload(t *testing.T) {
	// No copy trader wired: the handler reports unavailable before parsing.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/internal/execute-copy-trade",
		bytes.NewBufferString(`{"id": "t1"}`))
	req.Header.Set("Content-Type", "application/json")
	newTestRouter(api.NewMockDataClient(), storage.NewMockStore()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	newTestRouter(api.NewMockDataClient(), storage.NewMockStore()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
