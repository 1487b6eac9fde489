package workers

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is the slice of the presence registry the reaper needs.
type Sweeper interface {
	Sweep(ctx context.Context) []string
}

// Reaper periodically evicts registry entries whose underlying connection
// no longer exists. Eviction goes through the registry's compare-and-remove
// path, and one shared presence broadcast covers the whole batch, so a big
// sweep never turns into a broadcast storm.
type Reaper struct {
	log      *slog.Logger
	registry Sweeper
	interval time.Duration
}

func NewReaper(log *slog.Logger, registry Sweeper, interval time.Duration) *Reaper {
	return &Reaper{log: log, registry: registry, interval: interval}
}

func (w *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping reaper")
			return nil
		case <-ticker.C:
			if evicted := w.registry.Sweep(ctx); len(evicted) > 0 {
				w.log.Info("Reaped stale presence entries", "users", evicted)
			}
		}
	}
}
