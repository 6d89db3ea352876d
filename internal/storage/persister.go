package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// finalSaveTimeout bounds the snapshot taken at shutdown.
const finalSaveTimeout = 10 * time.Second

// Persister periodically saves the source to a backend whenever it changed.
type Persister struct {
	source   Source
	backend  Snapshotter
	interval time.Duration
	logger   *slog.Logger
}

func NewPersister(source Source, backend Snapshotter, interval time.Duration, logger *slog.Logger) *Persister {
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		source:   source,
		backend:  backend,
		interval: interval,
		logger:   logger,
	}
}

// Run saves on every tick the source was dirty, and once more when ctx is
// canceled.
func (p *Persister) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Snapshot task started", "interval", p.interval.String())

	for {
		select {
		case <-ctx.Done():
			saveCtx, cancel := context.WithTimeout(context.Background(), finalSaveTimeout)
			defer cancel()
			if err := p.Flush(saveCtx); err != nil {
				p.logger.Error("Final snapshot failed", slog.String("error", err.Error()))
				return err
			}
			p.logger.Info("Snapshot task shutting down")
			return nil
		case <-ticker.C:
			if err := p.Flush(ctx); err != nil {
				p.logger.Error("Snapshot failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush saves a snapshot if anything changed since the last successful one.
func (p *Persister) Flush(ctx context.Context) error {
	if !p.source.TakeDirty() {
		return nil
	}

	start := time.Now()
	snap, err := p.source.Snapshot()
	if err == nil {
		err = p.backend.Save(ctx, snap)
	}
	if err != nil {
		// Try again on the next tick.
		p.source.MarkDirty()
		return fmt.Errorf("save snapshot: %w", err)
	}

	p.logger.Info("Snapshot saved",
		"users_bytes", len(snap.Users),
		"posts_bytes", len(snap.Posts),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
