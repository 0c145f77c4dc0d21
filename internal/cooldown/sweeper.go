package cooldown

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultSweepCron runs the sweeper every five minutes.
const DefaultSweepCron = "*/5 * * * *"

// RunSweeper drops expired entries from s on the cron schedule expr until
// ctx is cancelled. It returns an error only for an invalid expression.
func RunSweeper(ctx context.Context, s *Store, expr string) error {
	if expr == "" {
		expr = DefaultSweepCron
	}
	if !gronx.IsValid(expr) {
		return fmt.Errorf("invalid cooldown sweep cron expression: %q", expr)
	}

	slog.Info("cooldown.sweeper.started", "cron", expr)
	for {
		next, err := gronx.NextTickAfter(expr, time.Now(), false)
		if err != nil {
			slog.Error("cooldown.sweeper.next_tick", "cron", expr, "error", err)
			next = time.Now().Add(time.Minute)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("cooldown.sweeper.stopped")
			return nil
		case <-timer.C:
		}

		if n := s.Sweep(); n > 0 {
			slog.Debug("cooldown.sweeper.swept", "removed", n, "remaining", s.Len())
		}
	}
}
