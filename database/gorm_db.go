package database

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/models"
)

// gormWriter routes gorm's logger through the process logger.
type gormWriter struct{}

func (gormWriter) Printf(format string, args ...any) {
	logging.L().Debugf("gorm: "+format, args...)
}

// InitGormDB initializes and returns a GORM database instance
func InitGormDB(dataSourceName string) (*gorm.DB, error) {
	gormLogger := logger.New(
		gormWriter{},
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(sqlite.Open(dataSourceName), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database using GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB from GORM: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logging.L().Infof("database: GORM initialized at %s", dataSourceName)
	return db, nil
}

// AutoMigrateModels migrates the account schema.
func AutoMigrateModels(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("GORM AutoMigrate failed: %w", err)
	}
	logging.L().Info("database: GORM AutoMigrate completed")
	return nil
}
