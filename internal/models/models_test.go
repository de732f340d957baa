package models

import (
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleListScanValue(t *testing.T) {
	in := RoleList{3, 1, 2}
	v, err := in.Value()
	require.NoError(t, err)

	var out RoleList
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan([]byte(v.(string))))
	assert.Equal(t, in, out)

	require.NoError(t, out.Scan(nil))
	assert.Empty(t, out)

	assert.Error(t, out.Scan(42))
	assert.Error(t, out.Scan("not json"))

	empty, err := RoleList(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)
}

func TestRoleListMerge(t *testing.T) {
	merged := RoleList{1, 2}.Merge(RoleList{2, 3, 1, 4})
	assert.Equal(t, RoleList{1, 2, 3, 4}, merged)
	assert.True(t, merged.Contains(snowflake.ID(3)))
	assert.False(t, merged.Contains(snowflake.ID(9)))
}

func TestText(t *testing.T) {
	assert.Equal(t, "Server only.", Text("server_only"))
	assert.Equal(t, "❌ I need **Manage Roles** permission.", Text("missing_bot_permission", "Manage Roles"))
	assert.Equal(t, "unknown_key", Text("unknown_key"))
	assert.Equal(t, "Server only.", GetTranslation("de", "server_only"))
}
