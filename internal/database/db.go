package database

import (
	"fmt"

	"expense-approval/internal/model"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects with the given driver ("postgres" or "sqlite") and migrates the schema.
// SQLite is meant for local runs and tests; ":memory:" gives a throwaway database.
func Open(driver, dsn string, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "", "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: postgres, sqlite)", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if driver == "sqlite" {
		// One connection: an in-memory database exists per connection, and SQLite has a single writer anyway.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	if log != nil {
		log.Info("database connected", zap.String("driver", driver))
	}
	return db, nil
}

// Migrate creates or updates every table the service uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Department{},
		&model.Application{},
		&model.ApplicationItem{},
		&model.ApprovalRoute{},
		&model.ApprovalStep{},
		&model.ApprovalLog{},
		&model.Notification{},
		&model.AuditLog{},
	)
}
