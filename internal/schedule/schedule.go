package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RunAt executes fn at runAt in a new goroutine unless ctx is cancelled first.
// The returned channel is closed once fn returned or was skipped.
func RunAt(ctx context.Context, runAt time.Time, execute func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if !sleepUntil(ctx, runAt) {
			return
		}
		execute(ctx)
	}()
	return done
}

func sleepUntil(ctx context.Context, t time.Time) bool {
	timer := time.NewTimer(time.Until(t))
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Every calls execute at each tick of cron until ctx is cancelled. Ticks are
// computed in UTC. A tick that passes while execute is still running is
// skipped. Errors from execute are logged and do not stop the schedule.
func Every(ctx context.Context, cron string, execute func(ctx context.Context) error) error {
	if err := ValidateCron(cron); err != nil {
		return err
	}

	for {
		next, err := NextRunTimeAfter(cron, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to schedule %q: %w", cron, err)
		}

		slog.Debug("waiting for next run", "cron", cron, "runAt", next)
		if !sleepUntil(ctx, next) {
			return nil
		}

		if err := execute(ctx); err != nil {
			slog.Error("scheduled run failed", "cron", cron, "runAt", next, "error", err)
		}
	}
}
