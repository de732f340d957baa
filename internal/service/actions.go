package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/gateway"
	"guild-warden/internal/logger"
	"guild-warden/internal/models"
	"guild-warden/internal/notify"
)

// Warn sends the member a warning and records it in the mod-log
func (m *Moderation) Warn(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, reason string) error {
	if !m.IsStaff(staff) {
		return ErrNotStaff
	}
	reason = orDefault(strings.TrimSpace(reason), models.Text("no_reason"))

	target, err := m.gw.ResolveMember(ctx, guildID, targetID)
	if err != nil {
		return err
	}

	m.notifyMember(ctx, targetID, models.Text("dm_warned", m.guildName(ctx, guildID), staff.Display(), reason))
	m.modlog.Post(ctx, notify.Entry{GuildID: guildID, Title: models.Text("log_warned")}.
		With("Member", target.Display()).
		With("By", staff.Display()).
		With("Reason", reason))
	return nil
}

// Kick DMs the member first, since the bot shares no server with it afterwards
func (m *Moderation) Kick(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, reason string) error {
	if !m.IsStaff(staff) {
		return ErrNotStaff
	}
	reason = orDefault(strings.TrimSpace(reason), models.Text("no_reason"))

	unlock, err := m.lock(ctx, guildID, targetID)
	if err != nil {
		return err
	}
	defer unlock()

	target, err := m.gw.ResolveMember(ctx, guildID, targetID)
	if err != nil {
		return err
	}

	m.notifyMember(ctx, targetID, models.Text("dm_kicked", m.guildName(ctx, guildID), staff.Display(), reason))
	if err := m.gw.ExecuteKick(ctx, guildID, targetID, fmt.Sprintf("Kicked by %s (%d): %s", staff.Username, staff.UserID, reason)); err != nil {
		return err
	}

	m.modlog.Post(ctx, notify.Entry{GuildID: guildID, Title: models.Text("log_kicked")}.
		With("Member", target.Display()).
		With("By", staff.Display()).
		With("Reason", reason))
	logger.Infof("Member %d kicked from guild %d by %d", targetID, guildID, staff.UserID)
	return nil
}

// Timeout uses the platform's own timeout. minutes is clamped to 1..10080 and the applied value is returned.
func (m *Moderation) Timeout(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, minutes int, reason string) (int, error) {
	if staff == nil || !staff.Can(gateway.PermissionModerateMembers) {
		return 0, ErrNotStaff
	}
	reason = orDefault(strings.TrimSpace(reason), models.Text("no_reason"))
	minutes = min(max(minutes, 1), maxTimeoutMinutes)

	target, err := m.gw.ResolveMember(ctx, guildID, targetID)
	if err != nil {
		return 0, err
	}

	until := m.now().Add(time.Duration(minutes) * time.Minute)
	if err := m.gw.ExecuteTimeout(ctx, guildID, targetID, until, fmt.Sprintf("Timed out by %s (%d): %s", staff.Username, staff.UserID, reason)); err != nil {
		return 0, err
	}

	m.notifyMember(ctx, targetID, models.Text("dm_timed_out", m.guildName(ctx, guildID), staff.Display(), minutes, reason))
	m.modlog.Post(ctx, notify.Entry{GuildID: guildID, Title: models.Text("log_timed_out")}.
		With("Member", target.Display()).
		With("By", staff.Display()).
		With("Minutes", fmt.Sprint(minutes)).
		With("Reason", reason))
	return minutes, nil
}
