package store

import (
	"context"
	"log/slog"
	"time"
)

// pruneInterval is how often the prune worker sweeps.
const pruneInterval = time.Hour

// StartPruneWorker launches a background sweep that deletes device records
// idle longer than ttl. onSweep, if set, runs after each sweep so in-memory
// state keyed by device can be trimmed on the same cadence. The worker stops
// when ctx is cancelled.
func StartPruneWorker(ctx context.Context, repo Repository, ttl time.Duration, onSweep func()) {
	go func() {
		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := repo.DeleteInactive(ctx, ttl)
				if err != nil {
					slog.Error("Device prune sweep failed", "error", err)
					continue
				}
				if deleted > 0 {
					slog.Info("Pruned inactive devices", "deleted", deleted)
				}
				if onSweep != nil {
					onSweep()
				}
			}
		}
	}()
}
