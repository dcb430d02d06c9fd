package engine

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler sweeps every settlement on a fixed interval so idle towns keep
// their journal and stats current even when nobody is looking at them.
type Scheduler struct {
	Service  *Service
	Interval time.Duration // Time between sweeps (default 1 minute)

	// OnSweep is called after every sweep with the aggregated totals.
	OnSweep func(ctx context.Context, stats Stats)

	sweeps uint64
}

// NewScheduler creates a scheduler with default settings.
func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{
		Service:  svc,
		Interval: time.Minute,
	}
}

// Run sweeps until ctx is cancelled.
func (sc *Scheduler) Run(ctx context.Context) {
	interval := sc.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	slog.Info("scheduler started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "sweeps", sc.sweeps)
			return
		case <-ticker.C:
			sc.step(ctx)
		}
	}
}

// step runs one sweep.
func (sc *Scheduler) step(ctx context.Context) {
	start := time.Now()
	stats, err := sc.Service.Sweep(ctx)
	if err != nil {
		slog.Warn("sweep interrupted", "error", err)
		return
	}
	sc.sweeps++

	slog.Debug("sweep complete",
		"settlements", stats.Settlements,
		"population", stats.Population,
		"elapsed", time.Since(start),
	)
	if sc.OnSweep != nil {
		sc.OnSweep(ctx, stats)
	}
}
