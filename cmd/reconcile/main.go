package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/storage"
	"polymarket-copytrader/syncer"
)

// One-shot reconciliation pass: compare the trader's portfolio against the
// bot's and sell off any bot position the trader has already exited.
func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := godotenv.Load(); err != nil {
		log.Info("[Reconcile] No .env file found, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(os.Getenv("COPYTRADER_CONFIG"))
	if err != nil {
		log.Fatalf("[Reconcile] Failed to load config: %v", err)
	}

	traderAddress := os.Getenv("TRADER_ADDRESS")
	if traderAddress == "" {
		log.Fatal("[Reconcile] TRADER_ADDRESS not set")
	}

	auth, err := api.NewAuth()
	if err != nil {
		log.Fatalf("[Reconcile] Failed to init auth: %v", err)
	}

	clobClient, err := api.NewClobClient(os.Getenv("POLYMARKET_CLOB_URL"), auth)
	if err != nil {
		log.Fatalf("[Reconcile] Failed to init CLOB client: %v", err)
	}

	botAddress := auth.GetAddress().Hex()
	if funder := os.Getenv("POLYMARKET_FUNDER_ADDRESS"); funder != "" {
		clobClient.SetFunder(funder)
		if v := os.Getenv("POLYMARKET_SIGNATURE_TYPE"); v != "" {
			if sigType, err := strconv.Atoi(v); err == nil {
				clobClient.SetSignatureType(sigType)
			}
		} else {
			clobClient.SetSignatureType(1)
		}
		botAddress = funder
	}
	if override := os.Getenv("BOT_ADDRESS"); override != "" {
		botAddress = override
	}

	if _, err := clobClient.DeriveAPICreds(ctx); err != nil {
		log.Fatalf("[Reconcile] Failed to derive API credentials: %v", err)
	}

	dataClient := api.NewClient(os.Getenv("POLYMARKET_DATA_API_URL"))

	var store storage.DataStore
	if pg, err := storage.NewPostgres(); err != nil {
		log.Warnf("[Reconcile] Storage unavailable, outcomes will not be persisted: %v", err)
	} else {
		store = pg
		defer pg.Close()
	}

	rec := syncer.NewReconciler(dataClient, clobClient, store,
		cfg.Guard, cfg.Reconcile, traderAddress, botAddress, nil)

	outcomes, err := rec.Run(ctx)
	if err != nil {
		log.Fatalf("[Reconcile] Pass failed: %v", err)
	}

	executed, skipped, failed := 0, 0, 0
	for _, o := range outcomes {
		switch o.Outcome.Status {
		case syncer.TaskExecuted:
			executed++
			log.Infof("[Reconcile] SOLD %s: %.2f @ %.4f (order %s)",
				o.Position.Label(), o.Position.Size, o.Outcome.Price, o.Outcome.OrderID)
		case syncer.TaskSkipped:
			skipped++
			log.Warnf("[Reconcile] SKIPPED %s: %s", o.Position.Label(), o.Outcome.Reason)
		case syncer.TaskFailed:
			failed++
			log.Errorf("[Reconcile] FAILED %s: %s", o.Position.Label(), o.Outcome.Reason)
		}
	}

	log.Infof("[Reconcile] Done: %d stale positions, %d sold, %d skipped, %d failed",
		len(outcomes), executed, skipped, failed)
}
