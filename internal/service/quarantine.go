package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/gateway"
	"guild-warden/internal/logger"
	"guild-warden/internal/models"
	"guild-warden/internal/notify"
)

// AppealForm is the form the member fills in after pressing the appeal button
type AppealForm struct {
	ID        string
	Title     string
	FieldID   string
	Label     string
	MaxLength int
}

// IssueBan quarantines target: its roles are saved and stripped and it only sees the quarantine channel
func (m *Moderation) IssueBan(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, reason string) error {
	if !m.IsStaff(staff) {
		return ErrNotStaff
	}
	reason = orDefault(strings.TrimSpace(reason), models.Text("no_reason"))

	unlock, err := m.lock(ctx, guildID, targetID)
	if err != nil {
		return err
	}
	defer unlock()

	r, err := m.botRank(ctx, guildID)
	if err != nil {
		return err
	}
	if !r.canManageRoles() {
		return &PrivilegeError{Missing: "Manage Roles"}
	}

	target, err := m.gw.ResolveMember(ctx, guildID, targetID)
	if err != nil {
		return err
	}

	banned, err := m.ensureQuarantineSpace(ctx, guildID)
	if err != nil {
		return err
	}
	if r, err = m.botRank(ctx, guildID); err != nil {
		return err
	}

	// an active mute keeps its own snapshot and its marker
	snapshot := models.RoleList(r.removable(target, banned.ID, r.roleID(m.cfg.MutedRole)))
	existing, err := m.store.Quarantines.Get(ctx, guildID, targetID)
	if err != nil {
		return err
	}
	saved := snapshot
	if existing != nil {
		saved = existing.Roles.Merge(snapshot)
	}

	now := m.now().Unix()
	if err := m.store.Quarantines.Upsert(ctx, &models.QuarantineRecord{
		GuildID:   guildID,
		UserID:    targetID,
		Roles:     saved,
		BannedBy:  staff.UserID,
		BanReason: reason,
		CreatedAt: now,
	}); err != nil {
		return err
	}

	auditReason := fmt.Sprintf("Quarantine-banned by %s (%d): %s", staff.Username, staff.UserID, reason)
	var roleErrs []error
	for _, id := range snapshot {
		if err := m.gw.RemoveRole(ctx, guildID, targetID, id, auditReason); err != nil {
			roleErrs = append(roleErrs, err)
		}
	}
	if err := m.gw.AssignRole(ctx, guildID, targetID, banned.ID, auditReason); err != nil {
		roleErrs = append(roleErrs, err)
	}
	if len(roleErrs) > 0 {
		logger.Warningf("Quarantine of %d in guild %d left roles inconsistent: %v", targetID, guildID, roleErrs)
		return fmt.Errorf("failed to set roles: %w", errors.Join(roleErrs...))
	}

	days := int(m.cfg.AppealWindow / (24 * time.Hour))
	m.notifyMember(ctx, targetID,
		models.Text("dm_banned", m.guildName(ctx, guildID), reason, staff.Display(), days),
		gateway.Control{
			ID:    Binding{Action: ActionOpen, GuildID: guildID, UserID: targetID}.ID(),
			Label: models.Text("control_appeal"),
			Style: gateway.StyleSuccess,
		})

	m.modlog.Post(ctx, notify.Entry{GuildID: guildID, Title: models.Text("log_quarantine_ban")}.
		With("Member", target.Display()).
		With("By", staff.Display()).
		With("Reason", reason).
		With("Action", fmt.Sprintf("Roles removed, %s role applied, restricted to #%s", m.cfg.BannedRole, m.cfg.QuarantineChannel)))

	logger.Infof("Member %d quarantine-banned in guild %d by %d, %d roles saved", targetID, guildID, staff.UserID, len(saved))
	return nil
}

// ensureQuarantineSpace makes sure the Banned role exists and can only see the quarantine channel.
// Per-channel permission failures are logged and skipped.
func (m *Moderation) ensureQuarantineSpace(ctx context.Context, guildID snowflake.ID) (*gateway.Role, error) {
	banned, err := m.gw.EnsureRole(ctx, guildID, m.cfg.BannedRole)
	if err != nil {
		return nil, err
	}
	quarantine, err := m.gw.EnsureTextChannel(ctx, guildID, m.cfg.QuarantineChannel)
	if err != nil {
		return nil, err
	}

	m.setPermission(ctx, quarantine.ID, guildID, gateway.Overwrite{Deny: gateway.PermissionViewChannel})
	m.setPermission(ctx, quarantine.ID, banned.ID, gateway.Overwrite{
		Allow: gateway.PermissionViewChannel,
		Deny:  gateway.PermissionSendMessages | gateway.PermissionAddReactions | gateway.PermissionSendMessagesInThreads,
	})

	channels, err := m.gw.TextChannels(ctx, guildID)
	if err != nil {
		logger.Warningf("Cannot list channels of guild %d to hide them from %s: %v", guildID, m.cfg.BannedRole, err)
		return banned, nil
	}
	for _, c := range channels {
		if c.ID == quarantine.ID {
			continue
		}
		m.setPermission(ctx, c.ID, banned.ID, gateway.Overwrite{Deny: gateway.PermissionViewChannel | gateway.PermissionSendMessages})
	}
	return banned, nil
}

func (m *Moderation) setPermission(ctx context.Context, channelID, roleID snowflake.ID, ow gateway.Overwrite) {
	if err := m.gw.SetChannelPermission(ctx, channelID, roleID, ow); err != nil {
		logger.Warningf("Failed to set permissions of role %d on channel %d: %v", roleID, channelID, err)
	}
}

func (m *Moderation) checkAppealEligible(rec *models.QuarantineRecord, now int64) error {
	if now-rec.CreatedAt > int64(m.cfg.AppealWindow/time.Second) {
		return ErrAppealWindowExpired
	}
	if rec.AppealCount >= discordAppealLimit {
		return ErrAppealAlreadyUsed
	}
	return nil
}

// OpenAppeal answers the appeal button and returns the form to show
func (m *Moderation) OpenAppeal(ctx context.Context, guildID, actorID, userID snowflake.ID) (*AppealForm, error) {
	if actorID != userID {
		return nil, ErrNotYourControl
	}
	rec, err := m.store.Quarantines.Get(ctx, guildID, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	now := m.now().Unix()
	if err := m.checkAppealEligible(rec, now); err != nil {
		return nil, err
	}

	return &AppealForm{
		ID:        Binding{Action: ActionForm, GuildID: guildID, UserID: userID, IssuedAt: now}.ID(),
		Title:     models.Text("form_title"),
		FieldID:   AppealFormField,
		Label:     models.Text("form_field"),
		MaxLength: appealTextLimit,
	}, nil
}

// SubmitAppeal files the member's one Discord appeal and posts it for staff
func (m *Moderation) SubmitAppeal(ctx context.Context, guildID, actorID, userID snowflake.ID, text string, issuedAt int64) error {
	if actorID != userID {
		return ErrNotYourControl
	}

	unlock, err := m.lock(ctx, guildID, userID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := m.store.Quarantines.Get(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrRecordNotFound
	}

	now := m.now().Unix()
	if now-issuedAt > int64(m.cfg.AppealFormTimeout/time.Second) {
		return ErrAppealFormExpired
	}
	if err := m.checkAppealEligible(rec, now); err != nil {
		return err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrAppealEmpty
	}
	if r := []rune(text); len(r) > appealTextLimit {
		text = string(r[:appealTextLimit])
	}

	appeals, err := m.findTextChannel(ctx, guildID, m.cfg.AppealsChannel)
	if err != nil {
		return err
	}
	if appeals == nil {
		return ErrAppealsChannelMissing
	}

	content := models.Text("appeal_post", userID, userID, rec.BannedBy, rec.BannedBy,
		orDefault(rec.BanReason, "—"), text, rec.AppealCount+1, MaxAppealsTotal)
	controls := []gateway.Control{
		{ID: Binding{Action: ActionApprove, GuildID: guildID, UserID: userID}.ID(), Label: models.Text("control_approve"), Style: gateway.StyleSuccess},
		{ID: Binding{Action: ActionDecline, GuildID: guildID, UserID: userID}.ID(), Label: models.Text("control_decline"), Style: gateway.StyleDanger},
	}
	if err := m.gw.PostInteractiveMessage(ctx, appeals.ID, content, controls); err != nil {
		return err
	}

	if err := m.store.Quarantines.MarkAppealSubmitted(ctx, guildID, userID, text, now); err != nil {
		return err
	}
	logger.Infof("Appeal of %d in guild %d submitted", userID, guildID)
	return nil
}

// DecideAppeal applies a staff verdict. Approve restores the member, decline schedules a permanent ban.
func (m *Moderation) DecideAppeal(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, userID snowflake.ID, decision models.Decision) error {
	if !m.IsStaff(staff) {
		return ErrNotStaff
	}
	if decision != models.DecisionApproved && decision != models.DecisionDeclined {
		return fmt.Errorf("unknown decision %q", decision)
	}

	unlock, err := m.lock(ctx, guildID, userID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := m.store.Quarantines.Get(ctx, guildID, userID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrRecordNotFound
	}
	if rec.AppealCount == 0 {
		return ErrNoAppealPending
	}
	if rec.LastDecision != models.DecisionNone {
		return ErrAppealAlreadyDecided
	}

	member, err := m.gw.ResolveMember(ctx, guildID, userID)
	if err != nil {
		return err
	}

	now := m.now().Unix()

	entry := notify.Entry{GuildID: guildID}.
		With("User", idField(userID)).
		With("Quarantine-banned by", idField(rec.BannedBy)).
		With("Ban reason", orDefault(rec.BanReason, "—")).
		With("Decision by", staff.Display())

	if decision == models.DecisionApproved {
		return m.approve(ctx, rec, member, staff, now, entry)
	}
	return m.decline(ctx, rec, staff, now, entry)
}

func (m *Moderation) approve(ctx context.Context, rec *models.QuarantineRecord, member, staff *gateway.Member, now int64, entry notify.Entry) error {
	if err := m.store.Quarantines.SetDecision(ctx, rec.GuildID, rec.UserID, models.DecisionApproved, staff.UserID, now); err != nil {
		return err
	}
	if err := m.store.Permabans.Delete(ctx, rec.GuildID, rec.UserID); err != nil {
		return err
	}

	saved := rec.Roles
	mute, err := m.store.Mutes.Get(ctx, rec.GuildID, rec.UserID)
	if err != nil {
		return err
	}
	if mute != nil {
		// still muted: the roles come back when the mute ends
		mute.Roles = mute.Roles.Merge(rec.Roles)
		if err := m.store.Mutes.Upsert(ctx, mute); err != nil {
			return err
		}
		saved = nil
	}

	r, err := m.botRank(ctx, rec.GuildID)
	if err != nil {
		logger.Warningf("Cannot read roles of guild %d, roles of %d not restored: %v", rec.GuildID, rec.UserID, err)
	} else {
		m.restoreRoles(ctx, r, member, r.roleByName(m.cfg.BannedRole), saved, "Appeal approved")
	}

	m.notifyMember(ctx, rec.UserID, models.Text("dm_appeal_approved"))
	entry.Title = models.Text("log_appeal_approved")
	m.modlog.Post(ctx, entry)

	if err := m.store.Quarantines.Delete(ctx, rec.GuildID, rec.UserID); err != nil {
		return err
	}
	if err := m.store.Rejoins.Clear(ctx, rec.GuildID, rec.UserID); err != nil {
		return err
	}
	logger.Infof("Appeal of %d in guild %d approved", rec.UserID, rec.GuildID)
	return nil
}

func (m *Moderation) decline(ctx context.Context, rec *models.QuarantineRecord, staff *gateway.Member, now int64, entry notify.Entry) error {
	delay := int64(m.cfg.PermabanDelay / time.Second)
	if err := m.store.Permabans.Schedule(ctx, &models.ScheduledPermaban{
		GuildID:   rec.GuildID,
		UserID:    rec.UserID,
		ExecuteAt: now + delay,
		Reason:    orDefault(rec.BanReason, models.Text("no_reason")),
		BannedBy:  staff.UserID,
	}); err != nil {
		return err
	}
	// a failed decision write leaves the appeal open for another verdict
	if err := m.store.Quarantines.SetDecision(ctx, rec.GuildID, rec.UserID, models.DecisionDeclined, staff.UserID, now); err != nil {
		return err
	}

	lastChance := ""
	if m.cfg.AppealURL != "" {
		lastChance = models.Text("dm_last_chance", m.cfg.AppealURL)
	}
	m.notifyMember(ctx, rec.UserID, models.Text("dm_appeal_declined", delay, lastChance))
	entry.Title = models.Text("log_appeal_declined")
	m.modlog.Post(ctx, entry)

	logger.Infof("Appeal of %d in guild %d declined, permanent ban at %d", rec.UserID, rec.GuildID, now+delay)
	return nil
}

// restoreRoles takes marker away and gives back every saved role the bot can still manage.
// Single role failures are logged and skipped.
func (m *Moderation) restoreRoles(ctx context.Context, r *rank, member *gateway.Member, marker *gateway.Role, saved models.RoleList, reason string) []snowflake.ID {
	if marker != nil && member.HasRole(marker.ID) && r.manageable(marker.ID) {
		if err := m.gw.RemoveRole(ctx, member.GuildID, member.UserID, marker.ID, reason); err != nil {
			logger.Warningf("Failed to remove %s from %d: %v", marker.Name, member.UserID, err)
		}
	}

	var restored []snowflake.ID
	for _, id := range saved {
		if (marker != nil && id == marker.ID) || !r.manageable(id) || member.HasRole(id) {
			continue
		}
		if err := m.gw.AssignRole(ctx, member.GuildID, member.UserID, id, reason); err != nil {
			logger.Warningf("Failed to restore role %d of %d: %v", id, member.UserID, err)
			continue
		}
		restored = append(restored, id)
	}
	return restored
}

// OnMemberLeave counts leaving while quarantined towards the rejoin escalation
func (m *Moderation) OnMemberLeave(ctx context.Context, guildID, userID snowflake.ID) error {
	unlock, err := m.lock(ctx, guildID, userID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := m.store.Quarantines.Get(ctx, guildID, userID)
	if err != nil || rec == nil {
		return err
	}
	count, err := m.store.Rejoins.Increment(ctx, guildID, userID, m.now().Unix())
	if err != nil {
		return err
	}
	logger.Infof("Quarantined member %d left guild %d, rejoin count %d", userID, guildID, count)
	return nil
}

// OnMemberJoin puts a returning quarantined member back into quarantine,
// or bans it for good once it reached the rejoin threshold.
func (m *Moderation) OnMemberJoin(ctx context.Context, guildID, userID snowflake.ID) error {
	unlock, err := m.lock(ctx, guildID, userID)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := m.store.Quarantines.Get(ctx, guildID, userID)
	if err != nil || rec == nil {
		return err
	}

	r, err := m.botRank(ctx, guildID)
	if err != nil {
		return err
	}
	if !r.canManageRoles() {
		logger.Warningf("Quarantined member %d rejoined guild %d but the bot cannot manage roles", userID, guildID)
		return nil
	}

	count, err := m.store.Rejoins.Increment(ctx, guildID, userID, m.now().Unix())
	if err != nil {
		return err
	}

	member, err := m.gw.ResolveMember(ctx, guildID, userID)
	if errors.Is(err, gateway.ErrTargetNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, id := range r.removable(member, r.roleID(m.cfg.BannedRole), r.roleID(m.cfg.MutedRole)) {
		if err := m.gw.RemoveRole(ctx, guildID, userID, id, "Rejoined while quarantined: strip auto roles"); err != nil {
			logger.Warningf("Failed to strip role %d from rejoined %d: %v", id, userID, err)
		}
	}

	if count >= m.cfg.RejoinThreshold {
		return m.escalate(ctx, member, count)
	}

	banned, err := m.ensureQuarantineSpace(ctx, guildID)
	if err != nil {
		logger.Warningf("Cannot restore quarantine of rejoined %d in guild %d: %v", userID, guildID, err)
	} else if !member.HasRole(banned.ID) {
		if err := m.gw.AssignRole(ctx, guildID, userID, banned.ID, "Rejoined while quarantined: reapply Banned role"); err != nil {
			logger.Warningf("Failed to reapply %s to %d: %v", m.cfg.BannedRole, userID, err)
		}
	}

	m.notifyMember(ctx, userID, models.Text("dm_rejoin_warning", count, m.cfg.RejoinThreshold, m.cfg.RejoinThreshold, m.cfg.QuarantineChannel))
	return nil
}

func (m *Moderation) escalate(ctx context.Context, member *gateway.Member, count int) error {
	guildID, userID := member.GuildID, member.UserID

	m.notifyMember(ctx, userID, models.Text("dm_rejoin_permaban"))
	reason := fmt.Sprintf("Quarantine evasion: left/rejoined %d+ times", m.cfg.RejoinThreshold)
	if err := m.gw.ExecuteBan(ctx, guildID, userID, reason); err != nil {
		logger.Errorf("Failed to ban quarantine evader %d in guild %d: %v", userID, guildID, err)
	}

	if err := m.store.Quarantines.Delete(ctx, guildID, userID); err != nil {
		return err
	}
	if err := m.store.Rejoins.Clear(ctx, guildID, userID); err != nil {
		return err
	}

	m.modlog.Post(ctx, notify.Entry{GuildID: guildID, Title: models.Text("log_rejoin_permaban")}.
		With("User", member.Display()).
		With("Reason", fmt.Sprintf("Left/rejoined **%d** times while quarantined.", count)))
	logger.Infof("Member %d permanently banned from guild %d for quarantine evasion", userID, guildID)
	return nil
}

// ExecutePermaban carries out a scheduled ban that is already removed from the store.
// Transient platform failures put it back with a new due time, a bounded number of times.
func (m *Moderation) ExecutePermaban(ctx context.Context, p models.ScheduledPermaban) error {
	unlock, err := m.lock(ctx, p.GuildID, p.UserID)
	if err != nil {
		return err
	}
	defer unlock()

	member, err := m.gw.ResolveMember(ctx, p.GuildID, p.UserID)
	if errors.Is(err, gateway.ErrTargetNotFound) {
		logger.Infof("Scheduled ban of %d in guild %d skipped, member is gone", p.UserID, p.GuildID)
		return nil
	}
	if err != nil {
		return m.retryPermaban(ctx, p, err)
	}

	reason := fmt.Sprintf("Appeal declined: permanent ban (by %d). Original: %s", p.BannedBy, p.Reason)
	if err := m.gw.ExecuteBan(ctx, p.GuildID, p.UserID, reason); err != nil {
		if errors.Is(err, gateway.ErrTransient) && p.Attempts+1 < maxPermabanAttempts {
			return m.retryPermaban(ctx, p, err)
		}
		logger.Errorf("Scheduled ban of %d in guild %d failed: %v", p.UserID, p.GuildID, err)
		m.modlog.Post(ctx, notify.Entry{GuildID: p.GuildID, Title: models.Text("log_permaban_failed")}.
			With("User", member.Display()).
			With("Error", err.Error()))
	} else {
		m.modlog.Post(ctx, notify.Entry{GuildID: p.GuildID, Title: models.Text("log_permaban")}.
			With("User", member.Display()).
			With("Reason", "Appeal declined; permanent ban executed.").
			With("Original reason", p.Reason))
		logger.Infof("Scheduled ban of %d in guild %d executed", p.UserID, p.GuildID)
	}

	if err := m.store.Quarantines.Delete(ctx, p.GuildID, p.UserID); err != nil {
		return err
	}
	return m.store.Rejoins.Clear(ctx, p.GuildID, p.UserID)
}

func (m *Moderation) retryPermaban(ctx context.Context, p models.ScheduledPermaban, cause error) error {
	if p.Attempts+1 >= maxPermabanAttempts {
		logger.Errorf("Scheduled ban of %d in guild %d dropped after %d attempts: %v", p.UserID, p.GuildID, p.Attempts+1, cause)
		return nil
	}
	p.Attempts++
	p.ExecuteAt = m.now().Unix() + int64(m.cfg.PermabanDelay/time.Second)
	logger.Warningf("Scheduled ban of %d in guild %d failed (attempt %d), retrying at %d: %v", p.UserID, p.GuildID, p.Attempts, p.ExecuteAt, cause)
	return m.store.Permabans.Schedule(ctx, &p)
}
