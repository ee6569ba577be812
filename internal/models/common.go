// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Enums
type LicenseStatus string

const (
	LicenseStatusWaiting LicenseStatus = "waiting"
	LicenseStatusActive  LicenseStatus = "active"
	LicenseStatusExpired LicenseStatus = "expired"
	LicenseStatusBanned  LicenseStatus = "banned"
)

func (s LicenseStatus) Valid() bool {
	switch s {
	case LicenseStatusWaiting, LicenseStatusActive, LicenseStatusExpired, LicenseStatusBanned:
		return true
	}
	return false
}

type AccessOutcome string

const (
	AccessOutcomeGranted AccessOutcome = "granted"
	AccessOutcomeRefused AccessOutcome = "refused"
)
