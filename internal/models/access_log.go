// internal/models/access_log.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccessLog is append only; rows are removed only together with their license.
type AccessLog struct {
	ID              uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	LicenseKey      string        `json:"license_key" gorm:"size:64;not null;index"`
	DeviceID        string        `json:"device_id" gorm:"size:255"`
	SourceAddress   string        `json:"source_address" gorm:"size:45"`
	Outcome         AccessOutcome `json:"outcome" gorm:"type:varchar(20);not null"`
	Reason          string        `json:"reason,omitempty" gorm:"size:50"`
	FirstActivation bool          `json:"first_activation" gorm:"default:false"`
	CreatedAt       time.Time     `json:"created_at" gorm:"index"`
}

func (a *AccessLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// UsedNonce remembers a signed request until its replay window has passed.
type UsedNonce struct {
	Nonce     string    `gorm:"primaryKey;size:64"`
	ExpiresAt time.Time `gorm:"not null;index"`
}
