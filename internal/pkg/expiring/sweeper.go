package expiring

import (
	"context"
	"log/slog"
	"time"
)

// Target is a named store the sweep loop covers.
type Target struct {
	Name  string
	Store Sweeper
}

// SweepLoop evicts expired entries from every target on a fixed interval.
type SweepLoop struct {
	interval time.Duration
	targets  []Target
	nowF     func() time.Time
}

func NewSweepLoop(interval time.Duration, targets ...Target) *SweepLoop {
	return &SweepLoop{interval: interval, targets: targets, nowF: time.Now}
}

// Run blocks until ctx is cancelled.
func (l *SweepLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single pass over all targets. Errors are logged per target so one
// failing backend does not stop the others from being cleaned.
func (l *SweepLoop) SweepOnce(ctx context.Context) int {
	now := l.nowF()
	total := 0
	for _, t := range l.targets {
		n, err := t.Store.Sweep(ctx, now)
		if err != nil {
			slog.Warn("sweep failed", "store", t.Name, "err", err)
		}
		if n > 0 {
			slog.Info("swept expired entries", "store", t.Name, "count", n)
		}
		total += n
	}
	return total
}
