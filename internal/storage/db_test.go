package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-warden/internal/config"
)

func TestDialectorFor(t *testing.T) {
	tests := []struct {
		driver string
		name   string
		ok     bool
	}{
		{"mysql", "mysql", true},
		{"postgres", "postgres", true},
		{"SQLite", "sqlite", true},
		{"oracle", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := dialectorFor(config.DatabaseConfig{Driver: tt.driver, Path: "x.db"})
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}
}

func TestOpenMigrateReset(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "warden.db")},
		Logger:   config.LoggerConfig{Level: "ERROR"},
	}

	db, err := Open(cfg)
	require.NoError(t, err)
	store := NewStore(db)
	defer store.Close()

	require.NoError(t, Migrate(db))
	for _, table := range Tables() {
		assert.True(t, db.Migrator().HasTable(table))
	}
	require.NoError(t, Reset(db))
	for _, table := range Tables() {
		assert.True(t, db.Migrator().HasTable(table))
	}
}
