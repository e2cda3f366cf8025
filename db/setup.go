package db

import (
	"strings"

	"github.com/builder-feedback/feedback-slack/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDatabase opens postgres for regular DSNs and sqlite for "sqlite://" or "file:" ones.
func ConnectDatabase(dsn string) (*gorm.DB, error) {
	return gorm.Open(dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

func dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://"))
	case strings.HasPrefix(dsn, "file:"):
		return sqlite.Open(dsn)
	default:
		return postgres.Open(dsn)
	}
}

func MigrateDatabase(conn *gorm.DB) error {
	models := []interface{}{
		&models.WebhookConfig{},
		&models.Notification{},
	}

	for _, model := range models {
		if err := conn.AutoMigrate(model); err != nil {
			return err
		}
	}

	return nil
}
