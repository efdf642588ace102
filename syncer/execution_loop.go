package syncer

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"polymarket-copytrader/api"
	"polymarket-copytrader/config"
)

// OrderInstruction is one order the loop should try to get onto the
// exchange: a copy of a trader's fill, or a full exit of a stale position.
type OrderInstruction struct {
	TokenID        string
	Side           api.Side
	Size           float64
	ReferencePrice float64
	NegRisk        bool
	OrderType      api.OrderType // empty means GTC
	Label          string        // human-readable market name for logs
}

// TaskStatus classifies how a task ended.
type TaskStatus string

const (
	TaskExecuted TaskStatus = "executed" // order submitted and accepted
	TaskSkipped  TaskStatus = "skipped"  // guard aborted; no order submitted
	TaskFailed   TaskStatus = "failed"   // quote fetch or submission failed
)

// TaskOutcome reports what happened to one instruction.
type TaskOutcome struct {
	Status   TaskStatus `json:"status"`
	Reason   string     `json:"reason,omitempty"`
	OrderID  string     `json:"order_id,omitempty"`
	Attempts int        `json:"attempts"`
	Price    float64    `json:"price,omitempty"`
}

// ExecutionLoop drives the slippage guard across bounded attempts and
// submits at most one order per task.
type ExecutionLoop struct {
	clob      api.ClobClientInterface
	guard     config.GuardConfig
	scheduler Scheduler
}

// NewExecutionLoop creates an execution loop.
func NewExecutionLoop(clob api.ClobClientInterface, guard config.GuardConfig, scheduler Scheduler) *ExecutionLoop {
	if scheduler == nil {
		scheduler = NewScheduler()
	}
	return &ExecutionLoop{clob: clob, guard: guard, scheduler: scheduler}
}

// Execute runs one instruction through the guard until it proceeds, aborts,
// or the context is cancelled. A fresh quote is fetched before every guard
// check; the order goes to the exchange exactly once, and a submission
// failure is terminal for the task — no resubmission.
func (l *ExecutionLoop) Execute(ctx context.Context, instr OrderInstruction) TaskOutcome {
	attempts := 0

	for {
		if err := ctx.Err(); err != nil {
			return TaskOutcome{Status: TaskSkipped, Reason: "cancelled: " + err.Error(), Attempts: attempts}
		}

		book, err := l.clob.GetOrderBook(ctx, instr.TokenID)
		if err != nil {
			return TaskOutcome{
				Status:   TaskFailed,
				Reason:   fmt.Sprintf("fetch quote: %v", err),
				Attempts: attempts,
			}
		}

		decision := CheckGuard(instr.ReferencePrice, instr.Side, QuoteFromBook(book), l.guard, attempts)

		switch decision.Verdict {
		case Proceed:
			return l.submit(ctx, instr, decision.LivePrice, attempts)

		case RetryAfterWait:
			attempts++
			log.Infof("[ExecLoop] %s: %s, waiting %dms (attempt %d/%d)",
				instr.Label, decision.Reason, l.guard.WaitMS, attempts, l.guard.MaxRetries)
			if err := l.scheduler.Sleep(ctx, time.Duration(l.guard.WaitMS)*time.Millisecond); err != nil {
				return TaskOutcome{Status: TaskSkipped, Reason: "cancelled: " + err.Error(), Attempts: attempts}
			}

		case Abort:
			log.Warnf("[ExecLoop] %s: aborted: %s", instr.Label, decision.Reason)
			return TaskOutcome{Status: TaskSkipped, Reason: decision.Reason, Attempts: attempts}
		}
	}
}

func (l *ExecutionLoop) submit(ctx context.Context, instr OrderInstruction, price float64, attempts int) TaskOutcome {
	var resp *api.OrderResponse
	var err error
	if instr.OrderType == api.OrderTypeFOK {
		resp, err = l.clob.PlaceOrderFOK(ctx, instr.TokenID, instr.Side, instr.Size, price, instr.NegRisk)
	} else {
		resp, err = l.clob.PlaceLimitOrder(ctx, instr.TokenID, instr.Side, instr.Size, price, instr.NegRisk)
	}
	if err != nil {
		log.Errorf("[ExecLoop] %s: submission failed: %v", instr.Label, err)
		return TaskOutcome{
			Status:   TaskFailed,
			Reason:   fmt.Sprintf("submit order: %v", err),
			Attempts: attempts,
			Price:    price,
		}
	}
	if !resp.Success {
		log.Errorf("[ExecLoop] %s: exchange rejected order: %s", instr.Label, resp.ErrorMsg)
		return TaskOutcome{
			Status:   TaskFailed,
			Reason:   "exchange rejected: " + resp.ErrorMsg,
			Attempts: attempts,
			Price:    price,
		}
	}

	log.Infof("[ExecLoop] %s: %s %.2f @ %.4f submitted (order %s, status %s)",
		instr.Label, instr.Side, instr.Size, price, resp.OrderID, resp.Status)
	return TaskOutcome{
		Status:   TaskExecuted,
		OrderID:  resp.OrderID,
		Attempts: attempts,
		Price:    price,
	}
}
