// Package gateway describes the chat platform as seen by the moderation workflow.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Permission bits, same values as the Discord API
const (
	PermissionKickMembers           int64 = 1 << 1
	PermissionBanMembers            int64 = 1 << 2
	PermissionAdministrator         int64 = 1 << 3
	PermissionManageChannels        int64 = 1 << 4
	PermissionAddReactions          int64 = 1 << 6
	PermissionViewChannel           int64 = 1 << 10
	PermissionSendMessages          int64 = 1 << 11
	PermissionManageRoles           int64 = 1 << 28
	PermissionCreatePublicThreads   int64 = 1 << 35
	PermissionCreatePrivateThreads  int64 = 1 << 36
	PermissionSendMessagesInThreads int64 = 1 << 38
	PermissionModerateMembers       int64 = 1 << 40

	PermissionAll int64 = 1<<53 - 1
)

type Guild struct {
	ID      snowflake.ID
	Name    string
	OwnerID snowflake.ID
}

// Member is a guild member with its computed guild-level permissions
type Member struct {
	GuildID     snowflake.ID
	UserID      snowflake.ID
	Username    string
	RoleIDs     []snowflake.ID
	Permissions int64
}

func (m *Member) HasRole(id snowflake.ID) bool {
	for _, r := range m.RoleIDs {
		if r == id {
			return true
		}
	}
	return false
}

func (m *Member) Can(perm int64) bool {
	return m.Permissions&PermissionAdministrator != 0 || m.Permissions&perm == perm
}

// Mention renders the member the way the platform links users
func (m *Member) Mention() string {
	return Mention(m.UserID)
}

// Display is used in DMs and log lines, "name (`id`)"
func (m *Member) Display() string {
	if m.Username == "" {
		return fmt.Sprintf("<@%d> (`%d`)", m.UserID, m.UserID)
	}
	return fmt.Sprintf("%s (`%d`)", m.Username, m.UserID)
}

func Mention(userID snowflake.ID) string {
	return fmt.Sprintf("<@%d>", userID)
}

type Role struct {
	ID          snowflake.ID
	Name        string
	Position    int
	Permissions int64
	// managed roles belong to integrations and cannot be granted by hand
	Managed bool
}

type Channel struct {
	ID   snowflake.ID
	Name string
}

// Overwrite is a channel permission overwrite for one role.
// Bits set in Allow or Deny replace the existing state, other bits are kept.
type Overwrite struct {
	Allow int64
	Deny  int64
}

// Merge applies o on top of an existing overwrite
func (o Overwrite) Merge(existing Overwrite) Overwrite {
	return Overwrite{
		Allow: (existing.Allow &^ o.Deny) | o.Allow,
		Deny:  (existing.Deny &^ o.Allow) | o.Deny,
	}
}

type ControlStyle int

const (
	StylePrimary ControlStyle = iota + 1
	StyleSecondary
	StyleSuccess
	StyleDanger
)

// Control is a button; ID comes back in the ControlActivated event
type Control struct {
	ID    string
	Label string
	Style ControlStyle
}

// Gateway is the platform REST surface used by the workflow. Every call
// fails with one of the sentinel errors of this package.
type Gateway interface {
	Guild(ctx context.Context, guildID snowflake.ID) (*Guild, error)
	BotMember(ctx context.Context, guildID snowflake.ID) (*Member, error)
	ResolveMember(ctx context.Context, guildID, userID snowflake.ID) (*Member, error)

	Roles(ctx context.Context, guildID snowflake.ID) ([]Role, error)
	EnsureRole(ctx context.Context, guildID snowflake.ID, name string) (*Role, error)
	TextChannels(ctx context.Context, guildID snowflake.ID) ([]Channel, error)
	EnsureTextChannel(ctx context.Context, guildID snowflake.ID, name string) (*Channel, error)

	// AssignRole and RemoveRole are no-ops when the member already is in the target state
	AssignRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error
	SetChannelPermission(ctx context.Context, channelID, roleID snowflake.ID, ow Overwrite) error

	SendDirectMessage(ctx context.Context, userID snowflake.ID, content string, controls ...Control) error
	SendChannelMessage(ctx context.Context, channelID snowflake.ID, content string) error
	PostInteractiveMessage(ctx context.Context, channelID snowflake.ID, content string, controls []Control) error
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error

	ExecuteBan(ctx context.Context, guildID, userID snowflake.ID, reason string) error
	ExecuteKick(ctx context.Context, guildID, userID snowflake.ID, reason string) error
	ExecuteTimeout(ctx context.Context, guildID, userID snowflake.ID, until time.Time, reason string) error
}

// ComputePermissions folds the @everyone role and the member's roles into guild permissions
func ComputePermissions(guildID, ownerID, userID snowflake.ID, roles []Role, memberRoles []snowflake.ID) int64 {
	if userID == ownerID {
		return PermissionAll
	}
	held := make(map[snowflake.ID]struct{}, len(memberRoles)+1)
	held[guildID] = struct{}{}
	for _, id := range memberRoles {
		held[id] = struct{}{}
	}

	var perms int64
	for _, r := range roles {
		if _, ok := held[r.ID]; ok {
			perms |= r.Permissions
		}
	}
	if perms&PermissionAdministrator != 0 {
		return PermissionAll
	}
	return perms
}
