package syncer

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
	"polymarket-copytrader/models"
	"polymarket-copytrader/storage"
)

// Reconciler walks bot-only (stale) positions and unwinds them. The trader
// has already exited these markets; holding them is unhedged drift.
type Reconciler struct {
	data      api.DataClientInterface
	loop      *ExecutionLoop
	store     storage.DataStore
	scheduler Scheduler

	cfg           config.ReconcileConfig
	traderAddress string
	botAddress    string
}

// ReconcileOutcome pairs one stale position with how its exit went.
type ReconcileOutcome struct {
	Position models.Position `json:"position"`
	Outcome  TaskOutcome     `json:"outcome"`
}

// NewReconciler creates a reconciliation driver. store may be nil when
// persistence is not wanted (one-shot batch runs against a dry database).
func NewReconciler(
	data api.DataClientInterface,
	clob api.ClobClientInterface,
	store storage.DataStore,
	guard config.GuardConfig,
	cfg config.ReconcileConfig,
	traderAddress, botAddress string,
	scheduler Scheduler,
) *Reconciler {
	if scheduler == nil {
		scheduler = NewScheduler()
	}
	return &Reconciler{
		data:          data,
		loop:          NewExecutionLoop(clob, guard, scheduler),
		store:         store,
		scheduler:     scheduler,
		cfg:           cfg,
		traderAddress: traderAddress,
		botAddress:    botAddress,
	}
}

// Run fetches both portfolios and reconciles them. The position fetches are
// the only fatal failure mode; everything downstream degrades to per-task
// outcomes.
func (r *Reconciler) Run(ctx context.Context) ([]ReconcileOutcome, error) {
	traderPositions, err := r.data.GetOpenPositions(ctx, r.traderAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch trader positions: %w", err)
	}
	botPositions, err := r.data.GetOpenPositions(ctx, r.botAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch bot positions: %w", err)
	}

	return r.Reconcile(ctx, traderPositions, botPositions)
}

// Reconcile finds stale bot positions in the given snapshots and drives a
// full-size SELL for each through the guarded execution loop, sequentially.
// Per-task failures are recorded and do not stop the pass.
func (r *Reconciler) Reconcile(ctx context.Context, traderPositions, botPositions []models.Position) ([]ReconcileOutcome, error) {
	result := MatchPositions(traderPositions, botPositions)

	if len(result.BotOnly) == 0 {
		log.Infof("[Reconciler] No stale positions; nothing to unwind")
		return []ReconcileOutcome{}, nil
	}

	log.Infof("[Reconciler] Found %d stale positions to exit", len(result.BotOnly))

	// Balance is read once per pass, then credited locally with sell
	// proceeds; a fetch failure only costs us the log line.
	balance, err := r.data.USDCBalance(ctx, r.botAddress)
	if err != nil {
		log.Warnf("[Reconciler] Balance fetch failed: %v", err)
	} else {
		log.Infof("[Reconciler] Bot balance: $%.2f", balance)
	}

	outcomes := make([]ReconcileOutcome, 0, len(result.BotOnly))

	for i, pos := range result.BotOnly {
		instr := exitInstruction(pos)
		log.Infof("[Reconciler] Task %d/%d: SELL %.2f of %s (ref %.4f)",
			i+1, len(result.BotOnly), instr.Size, instr.Label, instr.ReferencePrice)

		outcome := r.loop.Execute(ctx, instr)
		outcomes = append(outcomes, ReconcileOutcome{Position: pos, Outcome: outcome})

		switch outcome.Status {
		case TaskExecuted:
			proceeds := outcome.Price * instr.Size
			balance += proceeds
			log.Infof("[Reconciler] %s exited at %.4f (+$%.2f, balance ~$%.2f)",
				instr.Label, outcome.Price, proceeds, balance)
		default:
			log.Warnf("[Reconciler] %s not exited (%s): %s", instr.Label, outcome.Status, outcome.Reason)
		}

		r.record(ctx, pos, instr, outcome)

		// Fixed pause after every task, success or not, to stay under the
		// exchange's rate limits.
		if err := r.scheduler.Sleep(ctx, time.Duration(r.cfg.TaskPauseMS)*time.Millisecond); err != nil {
			log.Infof("[Reconciler] Pass cancelled after %d/%d tasks", i+1, len(result.BotOnly))
			return outcomes, err
		}
	}

	return outcomes, nil
}

// exitInstruction synthesizes the full-size SELL for a stale position.
// Reference price prefers the live mark, then the entry price, then a
// neutral midpoint when no signal exists at all.
func exitInstruction(pos models.Position) OrderInstruction {
	refPrice := pos.CurPrice
	if refPrice <= 0 {
		refPrice = pos.AvgPrice
	}
	if refPrice <= 0 {
		refPrice = 0.5
	}
	return OrderInstruction{
		TokenID:        pos.Asset,
		Side:           api.SideSell,
		Size:           pos.Size,
		ReferencePrice: refPrice,
		NegRisk:        pos.NegRisk,
		Label:          pos.Label(),
	}
}

func (r *Reconciler) record(ctx context.Context, pos models.Position, instr OrderInstruction, outcome TaskOutcome) {
	if r.store == nil {
		return
	}
	rec := storage.ReconcileRecord{
		Wallet:      r.botAddress,
		MarketID:    pos.ConditionID,
		TokenID:     pos.Asset,
		Outcome:     pos.Outcome,
		Title:       pos.Title,
		Size:        instr.Size,
		RefPrice:    instr.ReferencePrice,
		ExitPrice:   outcome.Price,
		Status:      string(outcome.Status),
		ErrorReason: outcome.Reason,
		OrderID:     outcome.OrderID,
		Attempts:    outcome.Attempts,
	}
	if err := r.store.SaveReconcileOutcome(ctx, rec); err != nil {
		log.Warnf("[Reconciler] Failed to persist outcome for %s: %v", pos.Label(), err)
	}
}
