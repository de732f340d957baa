package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/duration"
	"guild-warden/internal/gateway"
	"guild-warden/internal/logger"
	"guild-warden/internal/models"
	"guild-warden/internal/notify"
)

const mutedDeny = gateway.PermissionSendMessages |
	gateway.PermissionAddReactions |
	gateway.PermissionSendMessagesInThreads |
	gateway.PermissionCreatePublicThreads |
	gateway.PermissionCreatePrivateThreads

// IssueMute strips the target's roles and gives it the Muted role until the duration elapses.
// It returns the mute length in seconds.
func (m *Moderation) IssueMute(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, length, reason string) (int64, error) {
	if !m.IsStaff(staff) {
		return 0, ErrNotStaff
	}
	minimum := int64(m.cfg.MinMute / time.Second)
	seconds, ok := duration.Parse(length)
	if !ok || seconds < minimum {
		return 0, precondition("invalid duration", "invalid_duration", minimum)
	}
	reason = orDefault(strings.TrimSpace(reason), models.Text("no_reason"))

	unlock, err := m.lock(ctx, guildID, targetID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	r, err := m.botRank(ctx, guildID)
	if err != nil {
		return 0, err
	}
	if !r.canManageRoles() {
		return 0, &PrivilegeError{Missing: "Manage Roles"}
	}
	target, err := m.gw.ResolveMember(ctx, guildID, targetID)
	if err != nil {
		return 0, err
	}

	muted, err := m.ensureMutedRole(ctx, guildID)
	if err != nil {
		return 0, err
	}
	if r, err = m.botRank(ctx, guildID); err != nil {
		return 0, err
	}

	// a quarantine keeps its own snapshot and its marker
	snapshot := models.RoleList(r.removable(target, muted.ID, r.roleID(m.cfg.BannedRole)))
	existing, err := m.store.Mutes.Get(ctx, guildID, targetID)
	if err != nil {
		return 0, err
	}
	saved := snapshot
	if existing != nil {
		saved = existing.Roles.Merge(snapshot)
	}

	if err := m.store.Mutes.Upsert(ctx, &models.MuteRecord{
		GuildID: guildID,
		UserID:  targetID,
		EndsAt:  m.now().Unix() + seconds,
		Roles:   saved,
		Reason:  reason,
		MutedBy: staff.UserID,
	}); err != nil {
		return 0, err
	}

	auditReason := fmt.Sprintf("Muted by %s (%d) for %s: %s", staff.Username, staff.UserID, duration.Format(seconds), reason)
	var roleErrs []error
	for _, id := range snapshot {
		if err := m.gw.RemoveRole(ctx, guildID, targetID, id, auditReason); err != nil {
			roleErrs = append(roleErrs, err)
		}
	}
	if err := m.gw.AssignRole(ctx, guildID, targetID, muted.ID, auditReason); err != nil {
		roleErrs = append(roleErrs, err)
	}
	if len(roleErrs) > 0 {
		return 0, fmt.Errorf("failed to set roles: %w", errors.Join(roleErrs...))
	}

	m.notifyMember(ctx, targetID, models.Text("dm_muted", m.guildName(ctx, guildID), staff.Display(), duration.Format(seconds), reason))
	m.modlog.Post(ctx, notify.Entry{GuildID: guildID, Title: models.Text("log_muted")}.
		With("Member", target.Display()).
		With("By", staff.Display()).
		With("Duration", duration.Format(seconds)).
		With("Reason", reason))

	logger.Infof("Member %d muted in guild %d for %ds by %d", targetID, guildID, seconds, staff.UserID)
	return seconds, nil
}

// ensureMutedRole creates the Muted role if needed and takes its right to talk in every text channel
func (m *Moderation) ensureMutedRole(ctx context.Context, guildID snowflake.ID) (*gateway.Role, error) {
	muted, err := m.gw.EnsureRole(ctx, guildID, m.cfg.MutedRole)
	if err != nil {
		return nil, err
	}
	channels, err := m.gw.TextChannels(ctx, guildID)
	if err != nil {
		logger.Warningf("Cannot list channels of guild %d to silence %s: %v", guildID, m.cfg.MutedRole, err)
		return muted, nil
	}
	for _, c := range channels {
		m.setPermission(ctx, c.ID, muted.ID, gateway.Overwrite{Deny: mutedDeny})
	}
	return muted, nil
}

// Unmute lifts an active mute before it runs out
func (m *Moderation) Unmute(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID) error {
	if !m.IsStaff(staff) {
		return ErrNotStaff
	}

	unlock, err := m.lock(ctx, guildID, targetID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := m.store.Mutes.Get(ctx, guildID, targetID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrNotMuted
	}
	if _, err := m.store.Mutes.Delete(ctx, guildID, targetID); err != nil {
		return err
	}

	member, err := m.gw.ResolveMember(ctx, guildID, targetID)
	if err != nil {
		return err
	}
	if err := m.lift(ctx, member, rec, "Unmuted by "+staff.Username); err != nil {
		return err
	}

	m.notifyMember(ctx, targetID, models.Text("dm_unmuted_manual", m.guildName(ctx, guildID)))
	m.modlog.Post(ctx, notify.Entry{GuildID: guildID, Title: models.Text("log_unmuted")}.
		With("Member", member.Display()).
		With("By", staff.Display()))
	return nil
}

// ExpireMute restores a member whose mute ran out. The record is already removed from the store.
// A failed restore puts the record back for the next sweep, at most maxMuteAttempts times.
func (m *Moderation) ExpireMute(ctx context.Context, rec models.MuteRecord) error {
	unlock, err := m.lock(ctx, rec.GuildID, rec.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	member, err := m.gw.ResolveMember(ctx, rec.GuildID, rec.UserID)
	if errors.Is(err, gateway.ErrTargetNotFound) {
		logger.Infof("Expired mute of %d in guild %d skipped, member is gone", rec.UserID, rec.GuildID)
		return nil
	}
	if err == nil {
		err = m.lift(ctx, member, &rec, "Mute expired")
	}
	if err != nil {
		return m.retryMute(ctx, rec, err)
	}

	m.notifyMember(ctx, rec.UserID, models.Text("dm_unmuted", m.guildName(ctx, rec.GuildID)))
	m.modlog.Post(ctx, notify.Entry{GuildID: rec.GuildID, Title: models.Text("log_unmuted")}.
		With("Member", member.Display()).
		With("Reason", "Mute expired"))
	logger.Infof("Mute of %d in guild %d expired", rec.UserID, rec.GuildID)
	return nil
}

func (m *Moderation) retryMute(ctx context.Context, rec models.MuteRecord, cause error) error {
	current, err := m.store.Mutes.Get(ctx, rec.GuildID, rec.UserID)
	if err != nil {
		return errors.Join(cause, err)
	}
	if current != nil {
		// muted again in the meantime, the new mute carries both snapshots
		current.Roles = current.Roles.Merge(rec.Roles)
		return errors.Join(cause, m.store.Mutes.Upsert(ctx, current))
	}
	if rec.Attempts+1 >= maxMuteAttempts {
		logger.Errorf("Expired mute of %d in guild %d dropped after %d attempts: %v", rec.UserID, rec.GuildID, rec.Attempts+1, cause)
		m.modlog.Post(ctx, notify.Entry{GuildID: rec.GuildID, Title: models.Text("log_unmute_failed")}.
			With("User", idField(rec.UserID)).
			With("Error", cause.Error()))
		return cause
	}
	rec.Attempts++
	rec.EndsAt = m.now().Unix() + int64(m.cfg.MuteSweepInterval/time.Second)
	logger.Warningf("Expired mute of %d in guild %d not lifted (attempt %d), retrying at %d: %v", rec.UserID, rec.GuildID, rec.Attempts, rec.EndsAt, cause)
	return errors.Join(cause, m.store.Mutes.Upsert(ctx, &rec))
}

// lift takes the Muted role away. While the member is quarantined the saved roles
// move to the quarantine record instead of being given back.
func (m *Moderation) lift(ctx context.Context, member *gateway.Member, rec *models.MuteRecord, reason string) error {
	r, err := m.botRank(ctx, member.GuildID)
	if err != nil {
		return err
	}
	q, err := m.store.Quarantines.Get(ctx, member.GuildID, member.UserID)
	if err != nil {
		return err
	}
	if q != nil {
		if err := m.store.Quarantines.SetRoles(ctx, member.GuildID, member.UserID, q.Roles.Merge(rec.Roles)); err != nil {
			return err
		}
		m.restoreRoles(ctx, r, member, r.roleByName(m.cfg.MutedRole), nil, reason)
		logger.Infof("Mute of quarantined %d in guild %d lifted, roles kept for the appeal", member.UserID, member.GuildID)
		return nil
	}
	restored := m.restoreRoles(ctx, r, member, r.roleByName(m.cfg.MutedRole), rec.Roles, reason)
	logger.Debugf("Restored %d of %d roles of %d", len(restored), len(rec.Roles), member.UserID)
	return nil
}
