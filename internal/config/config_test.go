package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
bot:
  token: abc
database:
  driver: sqlite
  path: test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "abc", cfg.Bot.Token)
	assert.Equal(t, 8, cfg.Bot.Workers)
	assert.Equal(t, DefaultModeration().AppealWindow, cfg.Moderation.AppealWindow)
	assert.Equal(t, 30*time.Second, cfg.Moderation.PermabanDelay)
	assert.Equal(t, 3, cfg.Moderation.RejoinThreshold)
	assert.Equal(t, "Banned", cfg.Moderation.BannedRole)
	assert.Equal(t, "mod-log", cfg.Moderation.ModLogChannel)
	assert.Equal(t, "INFO", cfg.Logger.Level)
	assert.Same(t, cfg, Get())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
moderation:
  staff_role_id: 1234567890123456789
  appeal_window: 48h
  modlog_channel: audit
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, snowflake.ID(1234567890123456789), cfg.Moderation.StaffRoleID)
	assert.Equal(t, 48*time.Hour, cfg.Moderation.AppealWindow)
	assert.Equal(t, "audit", cfg.Moderation.ModLogChannel)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "database:\n  driver: mysql\n")
	t.Setenv("WARDEN_BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bot.Token)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown driver", "database:\n  driver: oracle\n"},
		{"zero threshold", "moderation:\n  rejoin_threshold: 0\n"},
		{"telegram without chat", "telegram:\n  enabled: true\n  token: t\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}

	_, err := Load("")
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
