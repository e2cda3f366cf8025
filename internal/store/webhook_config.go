package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/builder-feedback/feedback-slack/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("record not found")

type WebhookConfigStore struct {
	db *gorm.DB
}

func NewWebhookConfigStore(db *gorm.DB) *WebhookConfigStore {
	return &WebhookConfigStore{db: db}
}

// Upsert inserts the config or overwrites the existing row for the same (user, service).
func (s *WebhookConfigStore) Upsert(ctx context.Context, cfg *models.WebhookConfig) error {
	cfg.UpdatedAt = time.Now()

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "service"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"webhook_url",
			"secret_token",
			"channel",
			"team_id",
			"team_name",
			"events",
			"is_active",
			"updated_at",
		}),
	}).Create(cfg).Error
	if err != nil {
		return fmt.Errorf("upsert webhook config: %w", err)
	}

	return nil
}

func (s *WebhookConfigStore) Find(ctx context.Context, userID, service string) (*models.WebhookConfig, error) {
	var cfg models.WebhookConfig

	err := s.db.WithContext(ctx).
		Where("user_id = ? AND service = ?", userID, service).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find webhook config: %w", err)
	}

	return &cfg, nil
}

// Deactivate marks every config of the user for the service inactive and reports how many rows changed.
func (s *WebhookConfigStore) Deactivate(ctx context.Context, userID, service string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&models.WebhookConfig{}).
		Where("user_id = ? AND service = ?", userID, service).
		Updates(map[string]interface{}{"is_active": false, "updated_at": time.Now()})
	if result.Error != nil {
		return 0, fmt.Errorf("deactivate webhook config: %w", result.Error)
	}

	return result.RowsAffected, nil
}
