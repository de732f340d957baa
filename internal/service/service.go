// Package service holds the moderation workflow: quarantine bans, appeals,
// rejoin escalation, mutes and the one-shot staff actions.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/config"
	"guild-warden/internal/gateway"
	"guild-warden/internal/keylock"
	"guild-warden/internal/logger"
	"guild-warden/internal/notify"
	"guild-warden/internal/storage"
)

const (
	// MaxAppealsTotal counts the Discord appeal and the website appeal
	MaxAppealsTotal = 2
	// discordAppealLimit is how many of them can be filed through the bot
	discordAppealLimit = 1
	// appealTextLimit matches the form's input limit
	appealTextLimit = 1500
	// maxPermabanAttempts bounds re-scheduling after transient ban failures
	maxPermabanAttempts = 3
	// maxMuteAttempts bounds re-queueing of mutes whose roles could not be given back
	maxMuteAttempts = 3

	maxTimeoutMinutes = 10080
)

// Moderation runs every workflow operation against the store and the platform.
// Operations on the same member are serialized through the locker.
type Moderation struct {
	store  *storage.Store
	gw     gateway.Gateway
	locks  keylock.Locker
	modlog notify.Sink
	cfg    config.ModerationConfig
	now    func() time.Time
}

type Option func(*Moderation)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Moderation) {
		m.now = now
	}
}

func NewModeration(store *storage.Store, gw gateway.Gateway, locks keylock.Locker, modlog notify.Sink, cfg config.ModerationConfig, opts ...Option) *Moderation {
	if modlog == nil {
		modlog = notify.Discard{}
	}
	m := &Moderation{
		store:  store,
		gw:     gw,
		locks:  locks,
		modlog: modlog,
		cfg:    cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the moderation settings in use
func (m *Moderation) Config() config.ModerationConfig {
	return m.cfg
}

func (m *Moderation) lock(ctx context.Context, guildID, userID snowflake.ID) (func(), error) {
	unlock, err := m.locks.Lock(ctx, keylock.MemberKey(guildID, userID))
	if err != nil {
		return nil, fmt.Errorf("lock member %d/%d: %w", guildID, userID, err)
	}
	return unlock, nil
}

// notifyMember sends a DM; members with closed DMs are expected and only logged at debug
func (m *Moderation) notifyMember(ctx context.Context, userID snowflake.ID, content string, controls ...gateway.Control) {
	err := m.gw.SendDirectMessage(ctx, userID, content, controls...)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrDeliveryBlocked):
		logger.Debugf("DM to %d blocked", userID)
	default:
		logger.Warningf("Failed to DM %d: %v", userID, err)
	}
}

func (m *Moderation) guildName(ctx context.Context, guildID snowflake.ID) string {
	g, err := m.gw.Guild(ctx, guildID)
	if err != nil || g.Name == "" {
		return guildID.String()
	}
	return g.Name
}

func (m *Moderation) findTextChannel(ctx context.Context, guildID snowflake.ID, name string) (*gateway.Channel, error) {
	channels, err := m.gw.TextChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, c := range channels {
		if c.Name == name {
			found := c
			return &found, nil
		}
	}
	return nil, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func idField(id snowflake.ID) string {
	return fmt.Sprintf("%s (`%d`)", gateway.Mention(id), id)
}
