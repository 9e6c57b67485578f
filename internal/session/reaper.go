package session

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reaper periodically closes sessions older than the registry's maximum age
type Reaper struct {
	registry *Registry
	interval time.Duration
	logger   *zap.Logger
}

func NewReaper(registry *Registry, interval time.Duration, logger *zap.Logger) *Reaper {
	return &Reaper{
		registry: registry,
		interval: interval,
		logger:   logger.Named("reaper"),
	}
}

// Run sweeps on every tick until ctx is done
func (rp *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if closed := rp.registry.Sweep(now); len(closed) > 0 {
				rp.logger.Info("expired sessions closed", zap.Int("count", len(closed)))
			}
		}
	}
}
