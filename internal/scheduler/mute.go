package scheduler

import (
	"context"
	"time"

	"guild-warden/internal/crash"
	"guild-warden/internal/logger"
	"guild-warden/internal/models"
)

type mutePopper interface {
	PopDue(ctx context.Context, now int64) ([]models.MuteRecord, error)
}

type muteExpirer interface {
	ExpireMute(ctx context.Context, rec models.MuteRecord) error
}

// MuteExpiry lifts mutes whose end time has passed. A record that could not be
// lifted is put back by the service for a later sweep.
type MuteExpiry struct {
	mutes    mutePopper
	svc      muteExpirer
	interval time.Duration
	now      func() time.Time
	stats    counters
}

func NewMuteExpiry(mutes mutePopper, svc muteExpirer, interval time.Duration) *MuteExpiry {
	return &MuteExpiry{mutes: mutes, svc: svc, interval: interval, now: time.Now}
}

// Run sweeps every interval until ctx is done
func (s *MuteExpiry) Run(ctx context.Context) {
	run(ctx, "mute-expiry", s.interval, s.now, &s.stats, s.sweep)
}

// Tick runs one sweep at now
func (s *MuteExpiry) Tick(ctx context.Context, now time.Time) {
	tick(ctx, "mute-expiry", now, &s.stats, s.sweep)
}

func (s *MuteExpiry) Stats() Stats {
	return s.stats.snapshot()
}

func (s *MuteExpiry) sweep(ctx context.Context, now time.Time) (int, int, error) {
	due, err := s.mutes.PopDue(ctx, now.Unix())
	if err != nil {
		return 0, 0, err
	}

	failed := 0
	for _, rec := range due {
		err := crash.Guard("mute-expiry", func() error {
			return s.svc.ExpireMute(ctx, rec)
		})
		if err != nil {
			failed++
			logger.Warningf("Expiring mute of %d in guild %d failed: %v", rec.UserID, rec.GuildID, err)
		}
	}
	return len(due) - failed, failed, nil
}
