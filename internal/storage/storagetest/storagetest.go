// Package storagetest opens throwaway in-memory stores for tests.
package storagetest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"guild-warden/internal/storage"
)

var seq atomic.Int64

// NewStore returns a migrated store backed by a private in-memory sqlite database
func NewStore(t testing.TB) *storage.Store {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: storage.NewGormLogger("FATAL")})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, storage.Migrate(db))

	store := storage.NewStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
