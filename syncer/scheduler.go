package syncer

import (
	"context"
	"time"
)

// Scheduler abstracts the pauses taken between guard retries and between
// reconciliation tasks, so tests can run without real waits and so every
// suspension point honors cancellation.
type Scheduler interface {
	// Sleep blocks for d or until ctx is cancelled, returning ctx.Err() in
	// the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type timerScheduler struct{}

// NewScheduler returns the real timer-backed scheduler.
func NewScheduler() Scheduler {
	return timerScheduler{}
}

func (timerScheduler) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
