// internal/store/project_store.go
package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vistahub/license-gate/internal/models"
)

type ProjectStore struct {
	db *gorm.DB
}

func NewProjectStore(db *gorm.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) Create(ctx context.Context, project *models.Project) error {
	if err := s.db.WithContext(ctx).Create(project).Error; err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *ProjectStore) GetByName(ctx context.Context, name string) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, "name = ?", name).Error; err != nil {
		return nil, translate(err)
	}
	return &project, nil
}

func (s *ProjectStore) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&projects).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch projects: %w", err)
	}
	return projects, nil
}
