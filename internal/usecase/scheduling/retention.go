package scheduling

import (
	"context"
	"log/slog"
	"time"
)

// HistoryPruner deletes history entries older than a cutoff.
type HistoryPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HistoryRetention returns a task that deletes history entries older than
// maxAge on the given schedule.
func HistoryRetention(pruner HistoryPruner, maxAge time.Duration, schedule string, logger *slog.Logger) Task {
	return Task{
		Name:     "history_retention",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			n, err := pruner.PruneBefore(ctx, time.Now().Add(-maxAge))
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("history pruned", "removed", n, "max_age", maxAge)
			}
			return nil
		},
	}
}
