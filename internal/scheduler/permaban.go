package scheduler

import (
	"context"
	"time"

	"guild-warden/internal/crash"
	"guild-warden/internal/logger"
	"guild-warden/internal/models"
)

type permabanPopper interface {
	PopDue(ctx context.Context, now int64) ([]models.ScheduledPermaban, error)
}

type permabanExecutor interface {
	ExecutePermaban(ctx context.Context, p models.ScheduledPermaban) error
}

// PermabanExecution carries out the permanent bans that follow a declined appeal
type PermabanExecution struct {
	permabans permabanPopper
	svc       permabanExecutor
	interval  time.Duration
	now       func() time.Time
	stats     counters
}

func NewPermabanExecution(permabans permabanPopper, svc permabanExecutor, interval time.Duration) *PermabanExecution {
	return &PermabanExecution{permabans: permabans, svc: svc, interval: interval, now: time.Now}
}

func (s *PermabanExecution) Run(ctx context.Context) {
	run(ctx, "permaban", s.interval, s.now, &s.stats, s.sweep)
}

func (s *PermabanExecution) Tick(ctx context.Context, now time.Time) {
	tick(ctx, "permaban", now, &s.stats, s.sweep)
}

func (s *PermabanExecution) Stats() Stats {
	return s.stats.snapshot()
}

func (s *PermabanExecution) sweep(ctx context.Context, now time.Time) (int, int, error) {
	due, err := s.permabans.PopDue(ctx, now.Unix())
	if err != nil {
		return 0, 0, err
	}

	failed := 0
	for _, p := range due {
		err := crash.Guard("permaban", func() error {
			return s.svc.ExecutePermaban(ctx, p)
		})
		if err != nil {
			failed++
			logger.Errorf("Scheduled ban of %d in guild %d failed: %v", p.UserID, p.GuildID, err)
		}
	}
	return len(due) - failed, failed, nil
}
