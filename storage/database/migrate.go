package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"SiteSign/internal/model"
	"SiteSign/pkg/logger"
)

// Migrate creates or updates the site and visit tables. Init only calls it
// when POSTGRESQL_AUTO_MIGRATE is set.
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration")

	if err := db.AutoMigrate(&model.Site{}, &model.Visit{}); err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	logger.Logger.Info("Database migration completed")
	return nil
}
