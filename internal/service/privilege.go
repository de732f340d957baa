package service

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/gateway"
	"guild-warden/internal/models"
)

const staffPermissions = gateway.PermissionAdministrator |
	gateway.PermissionModerateMembers |
	gateway.PermissionKickMembers |
	gateway.PermissionBanMembers

// IsStaff reports whether member may use moderation commands and decide appeals
func (m *Moderation) IsStaff(member *gateway.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&staffPermissions != 0 {
		return true
	}
	return m.cfg.StaffRoleID != 0 && member.HasRole(m.cfg.StaffRoleID)
}

// rank is the bot's standing in one guild, it decides which roles the bot may touch
type rank struct {
	guildID snowflake.ID
	bot     *gateway.Member
	roles   map[snowflake.ID]gateway.Role
	top     int
}

func (m *Moderation) botRank(ctx context.Context, guildID snowflake.ID) (*rank, error) {
	bot, err := m.gw.BotMember(ctx, guildID)
	if err != nil {
		return nil, err
	}
	roles, err := m.gw.Roles(ctx, guildID)
	if err != nil {
		return nil, err
	}

	r := &rank{guildID: guildID, bot: bot, roles: make(map[snowflake.ID]gateway.Role, len(roles))}
	for _, role := range roles {
		r.roles[role.ID] = role
	}
	for _, id := range bot.RoleIDs {
		if role, ok := r.roles[id]; ok && role.Position > r.top {
			r.top = role.Position
		}
	}
	return r, nil
}

func (r *rank) canManageRoles() bool {
	return r.bot.Can(gateway.PermissionManageRoles)
}

// manageable is true for existing, hand-assignable roles strictly below the bot's top role
func (r *rank) manageable(id snowflake.ID) bool {
	if id == r.guildID {
		return false
	}
	role, ok := r.roles[id]
	if !ok || role.Managed {
		return false
	}
	return role.Position < r.top
}

func (r *rank) roleByName(name string) *gateway.Role {
	for _, role := range r.roles {
		if role.Name == name {
			found := role
			return &found
		}
	}
	return nil
}

// roleID is the id of the role called name, zero when the guild has none
func (r *rank) roleID(name string) snowflake.ID {
	if role := r.roleByName(name); role != nil {
		return role.ID
	}
	return 0
}

// removable lists the roles of member the bot would strip, skipping the marker roles
func (r *rank) removable(member *gateway.Member, markers ...snowflake.ID) []snowflake.ID {
	skip := models.RoleList(markers)
	var out []snowflake.ID
	for _, id := range member.RoleIDs {
		if skip.Contains(id) || !r.manageable(id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
