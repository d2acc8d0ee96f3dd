//go:build integration

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"github.com/camden-git/labelsysbackend/config"
	"github.com/camden-git/labelsysbackend/database"
)

// NewPostgresDB starts a throwaway postgres container and returns a migrated
// handle to it. Requires a running Docker daemon.
func NewPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("labelsys"),
		postgres.WithUsername("labelsys"),
		postgres.WithPassword("labelsys"),
		postgres.BasicWaitStrategies(),
	)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(ctr)
	})
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := database.InitGormDB(config.DriverPostgres, dsn)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
