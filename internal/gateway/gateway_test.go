package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
)

func TestComputePermissions(t *testing.T) {
	const guildID = snowflake.ID(1)
	roles := []Role{
		{ID: guildID, Name: "@everyone", Permissions: PermissionViewChannel},
		{ID: 2, Name: "mod", Permissions: PermissionKickMembers},
		{ID: 3, Name: "admin", Permissions: PermissionAdministrator},
	}

	assert.Equal(t, PermissionViewChannel, ComputePermissions(guildID, 99, 10, roles, nil))
	assert.Equal(t, PermissionViewChannel|PermissionKickMembers, ComputePermissions(guildID, 99, 10, roles, []snowflake.ID{2}))
	assert.Equal(t, PermissionAll, ComputePermissions(guildID, 99, 10, roles, []snowflake.ID{3}))
	assert.Equal(t, PermissionAll, ComputePermissions(guildID, 10, 10, roles, nil))
}

func TestMemberCan(t *testing.T) {
	m := &Member{Permissions: PermissionKickMembers}
	assert.True(t, m.Can(PermissionKickMembers))
	assert.False(t, m.Can(PermissionBanMembers))

	admin := &Member{Permissions: PermissionAdministrator}
	assert.True(t, admin.Can(PermissionManageRoles))
}

func TestOverwriteMerge(t *testing.T) {
	existing := Overwrite{Allow: PermissionSendMessages, Deny: PermissionAddReactions}
	merged := Overwrite{Deny: PermissionSendMessages | PermissionViewChannel}.Merge(existing)
	assert.Equal(t, int64(0), merged.Allow)
	assert.Equal(t, PermissionAddReactions|PermissionSendMessages|PermissionViewChannel, merged.Deny)
}

func TestOpErrorMatchesKind(t *testing.T) {
	cause := errors.New("http 403")
	err := fmt.Errorf("ban: %w", Fail("ExecuteBan", ErrInsufficientPrivilege, cause))

	assert.ErrorIs(t, err, ErrInsufficientPrivilege)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrTargetNotFound)
	assert.Contains(t, err.Error(), "http 403")
}
