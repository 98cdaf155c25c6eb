package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/weblab-class/pomo-dungeon/cache"
	"github.com/weblab-class/pomo-dungeon/config"
	"github.com/weblab-class/pomo-dungeon/db"
	"github.com/weblab-class/pomo-dungeon/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupTestDB opens an in-memory SQLite database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(config.DatabaseConfig{Mode: db.ModeSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	// Each pooled connection gets its own in-memory database; keep a single
	// connection so every query sees the migrated schema.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, model.AutoMigrate(gdb))
	return gdb
}

// SetupTestCache returns in-process cache and pub/sub backends.
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	c, err := cache.NewCache(cache.Config{})
	require.NoError(t, err)
	ps, err := cache.NewPubSub(cache.Config{})
	require.NoError(t, err)
	return c, ps
}

// Logger returns a no-op logger for tests.
func Logger() *zap.Logger {
	return zap.NewNop()
}
