package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically reclaims sessions whose connection has gone away
// without the reactor noticing.
type Sweeper struct {
	dir      *Directory
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(dir *Directory, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{dir: dir, interval: interval, logger: logger}
}

// Run blocks until ctx is canceled.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	sw.logger.Info("Session sweeper started", "interval", sw.interval.String())

	for {
		select {
		case <-ctx.Done():
			sw.logger.Info("Session sweeper shutting down")
			return nil
		case <-ticker.C:
			if n := sw.dir.Sweep(); n > 0 {
				sw.logger.Warn("Reclaimed orphaned sessions", "count", n)
			}
		}
	}
}
