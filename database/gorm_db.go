package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/camden-git/labelsysbackend/config"
	"github.com/camden-git/labelsysbackend/logger"
	"github.com/camden-git/labelsysbackend/models"
)

// zapWriter adapts the process logger to gorm's logger.Writer.
type zapWriter struct {
	log *zap.SugaredLogger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.log.Infof(format, args...)
}

func newGormLogger() gormlogger.Interface {
	l := logger.L()
	level := gormlogger.Warn
	if l.Core().Enabled(zapcore.DebugLevel) {
		level = gormlogger.Info
	}
	return gormlogger.New(
		zapWriter{log: l.Named("gorm").Sugar()},
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// InitGormDB opens the relational store for the given driver and returns a
// GORM handle. Driver errors are translated, so unique violations surface as
// gorm.ErrDuplicatedKey on both sqlite and postgres.
func InitGormDB(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(dsn)
	case config.DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         newGormLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	if driver == config.DriverSQLite {
		// sqlite allows a single writer; one connection keeps transactions
		// from failing with SQLITE_BUSY.
		if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
			logger.L().Warn("failed to set WAL mode", zap.Error(err))
		}
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logger.L().Info("database initialized", zap.String("driver", driver))
	return db, nil
}

// AutoMigrateModels creates or updates the schema of every model.
func AutoMigrateModels(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Project{},
		&models.ProjectMember{},
		&models.ProjectClass{},
		&models.Image{},
		&models.ImageAssignment{},
		&models.Annotation{},
	)
	if err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	logger.L().Info("GORM AutoMigrate completed")
	return nil
}
