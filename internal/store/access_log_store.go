// internal/store/access_log_store.go
package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vistahub/license-gate/internal/models"
)

type AccessLogStore struct {
	db *gorm.DB
}

func NewAccessLogStore(db *gorm.DB) *AccessLogStore {
	return &AccessLogStore{db: db}
}

func (s *AccessLogStore) Append(ctx context.Context, entry *models.AccessLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append access log: %w", err)
	}
	return nil
}

func (s *AccessLogStore) ListByLicense(ctx context.Context, key string, offset, limit int) ([]models.AccessLog, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.AccessLog{}).Where("license_key = ?", key)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count access logs: %w", err)
	}

	var logs []models.AccessLog
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch access logs: %w", err)
	}
	return logs, total, nil
}
