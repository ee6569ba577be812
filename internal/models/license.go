// internal/models/license.go
package models

import (
	"time"

	"github.com/google/uuid"
)

type License struct {
	Key           string        `json:"key" gorm:"column:license_key;primaryKey;size:64"`
	ProjectID     uuid.UUID     `json:"project_id" gorm:"type:uuid;not null;index"`
	DurationDays  int           `json:"duration_days" gorm:"not null"`
	OwnerIdentity *string       `json:"owner_identity,omitempty" gorm:"size:100;index"`
	BoundDeviceID *string       `json:"bound_device_id,omitempty" gorm:"size:255"`
	ActivatedAt   *time.Time    `json:"activated_at,omitempty"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty"`
	Status        LicenseStatus `json:"status" gorm:"type:varchar(20);not null;default:'waiting';index"`
	Version       int64         `json:"version" gorm:"not null;default:0"`
	CreatedBy     string        `json:"created_by" gorm:"size:100"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// Relationships
	Project Project `json:"project,omitempty" gorm:"foreignKey:ProjectID"`
}

// Activated reports whether the license has ever been activated.
func (l *License) Activated() bool {
	return l.ActivatedAt != nil
}

// BoundTo reports whether the license is bound to deviceID.
func (l *License) BoundTo(deviceID string) bool {
	return l.BoundDeviceID != nil && *l.BoundDeviceID == deviceID
}
