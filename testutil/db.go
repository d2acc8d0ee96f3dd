// Package testutil holds helpers shared by the package tests: a migrated
// sqlite database per test, row fixtures and an in-memory media store.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/config"
	"github.com/camden-git/labelsysbackend/database"
)

// NewDB opens a fresh file-backed sqlite database in the test's temp dir and
// migrates every model. The database is closed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db")
	db, err := database.InitGormDB(config.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
