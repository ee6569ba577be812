// internal/store/license_store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vistahub/license-gate/internal/database"
	"github.com/vistahub/license-gate/internal/licensing"
	"github.com/vistahub/license-gate/internal/models"
)

type LicenseStore struct {
	db *gorm.DB
}

type LicenseFilter struct {
	Status    *models.LicenseStatus
	ProjectID *uuid.UUID
	Owner     *string
	Offset    int
	Limit     int
	Order     string
}

func NewLicenseStore(db *gorm.DB) *LicenseStore {
	return &LicenseStore{db: db}
}

func (s *LicenseStore) Create(ctx context.Context, license *models.License) error {
	if err := s.db.WithContext(ctx).Create(license).Error; err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}
	return nil
}

func (s *LicenseStore) Get(ctx context.Context, key string) (*models.License, error) {
	var license models.License
	if err := s.db.WithContext(ctx).Preload("Project").First(&license, "license_key = ?", key).Error; err != nil {
		return nil, translate(err)
	}
	return &license, nil
}

// ApplyTransition writes t only if the stored version still equals
// expectedVersion. The row's version is bumped on success.
func (s *LicenseStore) ApplyTransition(ctx context.Context, key string, expectedVersion int64, t licensing.Transition) error {
	updates := map[string]interface{}{
		"status":     t.Status,
		"version":    expectedVersion + 1,
		"updated_at": time.Now(),
	}
	if t.ActivatedAt != nil {
		updates["activated_at"] = *t.ActivatedAt
	}
	if t.ExpiresAt != nil {
		updates["expires_at"] = *t.ExpiresAt
	}
	if t.ClearBinding {
		updates["bound_device_id"] = nil
	}
	if t.BoundDeviceID != nil {
		updates["bound_device_id"] = *t.BoundDeviceID
	}

	result := s.db.WithContext(ctx).
		Model(&models.License{}).
		Where("license_key = ? AND version = ?", key, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update license: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// SetOwner assigns the license to an external account.
func (s *LicenseStore) SetOwner(ctx context.Context, key, owner string) error {
	result := s.db.WithContext(ctx).
		Model(&models.License{}).
		Where("license_key = ?", key).
		Updates(map[string]interface{}{
			"owner_identity": owner,
			"version":        gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to set license owner: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *LicenseStore) ListByOwner(ctx context.Context, owner string) ([]models.License, error) {
	var licenses []models.License
	if err := s.db.WithContext(ctx).Preload("Project").
		Where("owner_identity = ?", owner).
		Order("created_at DESC").
		Find(&licenses).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch owner licenses: %w", err)
	}
	return licenses, nil
}

func (s *LicenseStore) List(ctx context.Context, filter LicenseFilter) ([]models.License, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.License{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.Owner != nil {
		query = query.Where("owner_identity = ?", *filter.Owner)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count licenses: %w", err)
	}

	order := filter.Order
	if order == "" {
		order = "created_at DESC"
	}
	query = query.Preload("Project").Order(order).Offset(filter.Offset)
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var licenses []models.License
	if err := query.Find(&licenses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch licenses: %w", err)
	}
	return licenses, total, nil
}

// Delete removes the license and its access logs in one transaction.
func (s *LicenseStore) Delete(ctx context.Context, key string) error {
	return database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		if err := tx.Where("license_key = ?", key).Delete(&models.AccessLog{}).Error; err != nil {
			return fmt.Errorf("failed to delete access logs: %w", err)
		}
		result := tx.Where("license_key = ?", key).Delete(&models.License{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete license: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
