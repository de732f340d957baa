package handler

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"guild-warden/internal/logger"
)

// Stats counts what the dispatcher handled
type Stats struct {
	memberEvents atomic.Int64
	commands     atomic.Int64
	controls     atomic.Int64
	forms        atomic.Int64
	errors       atomic.Int64
	dropped      atomic.Int64
	active       atomic.Int64
	startTime    time.Time
}

func newStats() *Stats {
	return &Stats{startTime: time.Now()}
}

func (s *Stats) count(ev Event) {
	switch ev.(type) {
	case MemberJoined, MemberLeft:
		s.memberEvents.Add(1)
	case CommandInvoked:
		s.commands.Add(1)
	case ControlActivated:
		s.controls.Add(1)
	case FormSubmitted:
		s.forms.Add(1)
	}
}

// Snapshot returns the counters together with runtime figures
func (s *Stats) Snapshot() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime_seconds":      int64(time.Since(s.startTime).Seconds()),
		"total_member_events": s.memberEvents.Load(),
		"total_commands":      s.commands.Load(),
		"total_controls":      s.controls.Load(),
		"total_forms":         s.forms.Load(),
		"total_errors":        s.errors.Load(),
		"total_dropped":       s.dropped.Load(),
		"active_handlers":     s.active.Load(),
		"memory_usage_mb":     bToMb(m.Alloc),
		"total_alloc_mb":      bToMb(m.TotalAlloc),
		"sys_memory_mb":       bToMb(m.Sys),
		"gc_runs":             m.NumGC,
		"goroutines":          runtime.NumGoroutine(),
	}
}

// LogProcessingStats logs the counters every interval until ctx is done
func (s *Stats) LogProcessingStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stats := s.Snapshot()
		logger.Infof("Processing stats: %+v", stats)

		handled := s.memberEvents.Load() + s.commands.Load() + s.controls.Load() + s.forms.Load()
		if errs := s.errors.Load(); handled > 0 && float64(errs)/float64(handled) > 0.1 {
			logger.Warningf("High error rate: %.2f%% (%d errors out of %d events)",
				float64(errs)/float64(handled)*100, errs, handled)
		}
	}
}

// DetailedStatus renders the counters for the debug endpoint
func (s *Stats) DetailedStatus() string {
	stats := s.Snapshot()
	return fmt.Sprintf(`
=== guild-warden Processing Status ===
Uptime: %d seconds
Member Events: %d
Commands: %d
Controls: %d
Forms: %d
Errors: %d
Dropped: %d
Active Handlers: %d
Memory Usage: %d MB
Total Allocated: %d MB
System Memory: %d MB
GC Runs: %d
Goroutines: %d
======================================`,
		stats["uptime_seconds"],
		stats["total_member_events"],
		stats["total_commands"],
		stats["total_controls"],
		stats["total_forms"],
		stats["total_errors"],
		stats["total_dropped"],
		stats["active_handlers"],
		stats["memory_usage_mb"],
		stats["total_alloc_mb"],
		stats["sys_memory_mb"],
		stats["gc_runs"],
		stats["goroutines"],
	)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
