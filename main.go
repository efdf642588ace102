package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/handlers"
	"polymarket-copytrader/middleware"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
	"polymarket-copytrader/syncer"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using environment variables")
	}

	cfgPath := os.Getenv("COPYTRADER_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	traderAddress := os.Getenv("TRADER_ADDRESS")
	if traderAddress == "" {
		log.Fatal("TRADER_ADDRESS not set: need a trader wallet to follow")
	}

	auth, err := api.NewAuth()
	if err != nil {
		log.Fatalf("Failed to init auth: %v", err)
	}

	clobClient, err := api.NewClobClient(os.Getenv("POLYMARKET_CLOB_URL"), auth)
	if err != nil {
		log.Fatalf("Failed to init CLOB client: %v", err)
	}

	// Proxy/funder wallets sign with the EOA key but trade from the funder
	// address (signature type 1 for email/magic wallets, 2 for browser proxies).
	botAddress := auth.GetAddress().Hex()
	if funder := os.Getenv("POLYMARKET_FUNDER_ADDRESS"); funder != "" {
		clobClient.SetFunder(funder)
		clobClient.SetSignatureType(getEnvInt("POLYMARKET_SIGNATURE_TYPE", 1))
		botAddress = funder
	}
	if override := os.Getenv("BOT_ADDRESS"); override != "" {
		botAddress = override
	}

	dataClient := api.NewClient(os.Getenv("POLYMARKET_DATA_API_URL"))

	var store storage.DataStore
	if pg, err := storage.NewPostgres(); err != nil {
		log.Warnf("Storage unavailable, running without persistence: %v", err)
	} else {
		store = pg
		defer pg.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	copyTrader := syncer.NewCopyTrader(store, dataClient, clobClient, cfg.Guard, cfg.Copy, traderAddress, nil)
	if err := copyTrader.Start(ctx); err != nil {
		log.Fatalf("Failed to start copy trader: %v", err)
	}
	defer copyTrader.Stop()

	// Live feed beats the poll loop by seconds; the poll loop remains as a
	// safety net. Dedupe happens inside HandleTrade.
	liveWS := api.NewLiveWSClient(func(trade models.TradeDetail) {
		copyTrader.HandleTrade(ctx, trade)
	})
	liveWS.SetFollowedAddresses([]string{traderAddress})
	if err := liveWS.Start(ctx); err != nil {
		log.Warnf("Live websocket unavailable, relying on polling: %v", err)
	} else {
		defer liveWS.Stop()
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.Use(middleware.BasicAuth())
	r.Use(middleware.ValidateQueryParams())

	h := handlers.NewHandler(dataClient, store, copyTrader, traderAddress, botAddress)

	r.GET("/health", h.Health)
	r.GET("/api/drift", middleware.ValidateWallet(), h.GetDrift)
	r.GET("/api/reconcile/outcomes", h.GetReconcileOutcomes)
	r.GET("/api/copytrades", h.GetCopyTrades)
	r.POST("/api/internal/execute-copy-trade", h.ExecuteCopyTrade)

	port := os.Getenv("PORT")
	if port == "" {
		port = strconv.Itoa(cfg.Server.Port)
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMS) * time.Millisecond,
	}

	go func() {
		log.Infof("Server starting on http://localhost:%s (trader=%s bot=%s)", port, traderAddress, botAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutMS)*time.Millisecond)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Server shutdown: %v", err)
	}
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
