package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-warden/internal/gateway"
)

const (
	guildID  = snowflake.ID(1)
	botID    = snowflake.ID(2)
	ownerID  = snowflake.ID(3)
	userID   = snowflake.ID(4)
	botRole  = snowflake.ID(10)
	lowRole  = snowflake.ID(11)
	highRole = snowflake.ID(12)
)

func newPlatform() *Platform {
	p := New(botID)
	p.AddGuild(guildID, "test", ownerID)
	p.AddRole(guildID, gateway.Role{ID: botRole, Name: "bot", Position: 5, Permissions: gateway.PermissionManageRoles | gateway.PermissionBanMembers})
	p.AddRole(guildID, gateway.Role{ID: lowRole, Name: "member", Position: 2})
	p.AddRole(guildID, gateway.Role{ID: highRole, Name: "admin", Position: 8})
	p.AddMember(guildID, botID, "warden", botRole)
	p.AddMember(guildID, userID, "alice", lowRole)
	p.AddTextChannel(guildID, 50, "general")
	return p
}

func TestAssignRoleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newPlatform()

	require.NoError(t, p.RemoveRole(ctx, guildID, userID, lowRole, ""))
	require.NoError(t, p.RemoveRole(ctx, guildID, userID, lowRole, ""))
	assert.Empty(t, p.MemberRoles(guildID, userID))

	require.NoError(t, p.AssignRole(ctx, guildID, userID, lowRole, ""))
	require.NoError(t, p.AssignRole(ctx, guildID, userID, lowRole, ""))
	assert.Equal(t, []snowflake.ID{lowRole}, p.MemberRoles(guildID, userID))
}

func TestRoleRankIsEnforced(t *testing.T) {
	ctx := context.Background()
	p := newPlatform()

	err := p.AssignRole(ctx, guildID, userID, highRole, "")
	assert.ErrorIs(t, err, gateway.ErrInsufficientPrivilege)
	err = p.AssignRole(ctx, guildID, userID, botRole, "")
	assert.ErrorIs(t, err, gateway.ErrInsufficientPrivilege)
	err = p.AssignRole(ctx, guildID, 999, lowRole, "")
	assert.ErrorIs(t, err, gateway.ErrTargetNotFound)
}

func TestEnsureRoleCreatesAboveEveryone(t *testing.T) {
	ctx := context.Background()
	p := newPlatform()

	role, err := p.EnsureRole(ctx, guildID, "Banned")
	require.NoError(t, err)
	assert.Equal(t, 1, role.Position)

	again, err := p.EnsureRole(ctx, guildID, "Banned")
	require.NoError(t, err)
	assert.Equal(t, role.ID, again.ID)

	// existing roles moved up by one, so the bot still outranks the same roles
	assert.Equal(t, 6, p.RoleByName(guildID, "bot").Position)
	require.NoError(t, p.AssignRole(ctx, guildID, userID, role.ID, ""))
}

func TestDirectMessagesAndFailures(t *testing.T) {
	ctx := context.Background()
	p := newPlatform()

	require.NoError(t, p.SendDirectMessage(ctx, userID, "hi", gateway.Control{ID: "x", Label: "X"}))
	require.Len(t, p.DirectMessages(userID), 1)
	assert.Equal(t, "x", p.DirectMessages(userID)[0].Controls[0].ID)

	p.BlockDirectMessages(userID)
	assert.ErrorIs(t, p.SendDirectMessage(ctx, userID, "hi"), gateway.ErrDeliveryBlocked)

	boom := gateway.Fail("ExecuteBan", gateway.ErrTransient, errors.New("503"))
	p.FailNext("ExecuteBan", boom)
	assert.ErrorIs(t, p.ExecuteBan(ctx, guildID, userID, "r"), gateway.ErrTransient)
	require.NoError(t, p.ExecuteBan(ctx, guildID, userID, "r"))
	assert.False(t, p.IsMember(guildID, userID))
	assert.Equal(t, []Ban{{UserID: userID, Reason: "r"}}, p.Bans(guildID))
	assert.Equal(t, 2, p.Calls("ExecuteBan"))
}

func TestChannelOverwritesMerge(t *testing.T) {
	ctx := context.Background()
	p := newPlatform()

	require.NoError(t, p.SetChannelPermission(ctx, 50, lowRole, gateway.Overwrite{Allow: gateway.PermissionViewChannel}))
	require.NoError(t, p.SetChannelPermission(ctx, 50, lowRole, gateway.Overwrite{Deny: gateway.PermissionSendMessages}))

	ow, ok := p.Overwrite(guildID, 50, lowRole)
	require.True(t, ok)
	assert.Equal(t, gateway.PermissionViewChannel, ow.Allow)
	assert.Equal(t, gateway.PermissionSendMessages, ow.Deny)

	err := p.SetChannelPermission(ctx, 404, lowRole, gateway.Overwrite{})
	assert.ErrorIs(t, err, gateway.ErrTargetNotFound)
}

func TestKickAndTimeoutNeedPermission(t *testing.T) {
	ctx := context.Background()
	p := newPlatform()

	assert.ErrorIs(t, p.ExecuteKick(ctx, guildID, userID, ""), gateway.ErrInsufficientPrivilege)
	assert.ErrorIs(t, p.ExecuteBan(ctx, guildID, ownerID, ""), gateway.ErrInsufficientPrivilege)

	bot, err := p.BotMember(ctx, guildID)
	require.NoError(t, err)
	assert.True(t, bot.Can(gateway.PermissionManageRoles))
	assert.False(t, bot.Can(gateway.PermissionKickMembers))
}
