// Package scheduler runs the periodic sweeps that finish time-driven moderation:
// expired mutes and scheduled permanent bans.
package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"guild-warden/internal/crash"
	"guild-warden/internal/logger"
)

// Stats is a snapshot of one scheduler's counters
type Stats struct {
	Ticks     int64 `json:"ticks"`
	Processed int64 `json:"processed"`
	Failures  int64 `json:"failures"`
	LastTick  int64 `json:"last_tick"`
}

type counters struct {
	ticks     atomic.Int64
	processed atomic.Int64
	failures  atomic.Int64
	lastTick  atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Ticks:     c.ticks.Load(),
		Processed: c.processed.Load(),
		Failures:  c.failures.Load(),
		LastTick:  c.lastTick.Load(),
	}
}

// sweep handles everything due at now
type sweep func(ctx context.Context, now time.Time) (processed, failed int, err error)

// run calls fn every interval until ctx is cancelled
func run(ctx context.Context, name string, interval time.Duration, now func() time.Time, c *counters, fn sweep) {
	logger.Infof("%s scheduler started, interval %s", name, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("%s scheduler stopped", name)
			return
		case <-ticker.C:
			tick(ctx, name, now(), c, fn)
		}
	}
}

func tick(ctx context.Context, name string, now time.Time, c *counters, fn sweep) {
	defer crash.RecoverWithStack(name + "-scheduler")

	c.ticks.Add(1)
	c.lastTick.Store(now.Unix())
	processed, failed, err := fn(ctx, now)
	c.processed.Add(int64(processed))
	c.failures.Add(int64(failed))
	if err != nil {
		logger.Errorf("%s sweep failed: %v", name, err)
		return
	}
	if processed > 0 || failed > 0 {
		logger.Debugf("%s sweep: %d processed, %d failed", name, processed, failed)
	}
}
