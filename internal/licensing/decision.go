// internal/licensing/decision.go
package licensing

import (
	"errors"
	"time"

	"github.com/vistahub/license-gate/internal/models"
)

var ErrNotBanned = errors.New("license is not banned")

// Transition lists the fields a decision or admin action writes back.
// Nil pointers leave the stored value untouched.
type Transition struct {
	Status        models.LicenseStatus
	ActivatedAt   *time.Time
	ExpiresAt     *time.Time
	BoundDeviceID *string
	ClearBinding  bool
}

// Apply writes the transition onto l.
func (t Transition) Apply(l *models.License) {
	l.Status = t.Status
	if t.ActivatedAt != nil {
		at := *t.ActivatedAt
		l.ActivatedAt = &at
	}
	if t.ExpiresAt != nil {
		at := *t.ExpiresAt
		l.ExpiresAt = &at
	}
	if t.ClearBinding {
		l.BoundDeviceID = nil
	}
	if t.BoundDeviceID != nil {
		id := *t.BoundDeviceID
		l.BoundDeviceID = &id
	}
}

type Decision struct {
	Granted         bool
	FirstActivation bool
	// Rebound is set when a license whose binding was reset binds a new device.
	Rebound    bool
	Reason     Reason
	Transition *Transition
}

func grant(first bool, t *Transition) Decision {
	return Decision{Granted: true, FirstActivation: first, Transition: t}
}

func refuse(reason Reason, t *Transition) Decision {
	return Decision{Reason: reason, Transition: t}
}

// Decide maps a stored license and a requesting device to a decision. A nil
// license means the key is unknown.
func Decide(l *models.License, deviceID string, now time.Time) Decision {
	if l == nil {
		return refuse(ReasonNotFound, nil)
	}

	switch l.Status {
	case models.LicenseStatusBanned:
		return refuse(ReasonBanned, nil)

	case models.LicenseStatusWaiting:
		activatedAt := now
		expiresAt := now.Add(Duration(l.DurationDays))
		device := deviceID
		return grant(true, &Transition{
			Status:        models.LicenseStatusActive,
			ActivatedAt:   &activatedAt,
			ExpiresAt:     &expiresAt,
			BoundDeviceID: &device,
		})

	case models.LicenseStatusActive:
		if l.BoundDeviceID == nil {
			if pastExpiry(l.ExpiresAt, now) {
				return refuse(ReasonExpired, &Transition{Status: models.LicenseStatusExpired})
			}
			device := deviceID
			d := grant(false, &Transition{Status: models.LicenseStatusActive, BoundDeviceID: &device})
			d.Rebound = true
			return d
		}
		if !l.BoundTo(deviceID) {
			return refuse(ReasonDeviceMismatch, nil)
		}
		if pastExpiry(l.ExpiresAt, now) {
			return refuse(ReasonExpired, &Transition{Status: models.LicenseStatusExpired})
		}
		return grant(false, nil)

	case models.LicenseStatusExpired:
		return refuse(ReasonExpired, nil)
	}

	// A status outside the enum is a storage fault, not a license verdict.
	return refuse(ReasonUnavailable, nil)
}

// EffectiveStatus applies lazy expiry to a stored status.
func EffectiveStatus(stored models.LicenseStatus, expiresAt *time.Time, now time.Time) models.LicenseStatus {
	if stored == models.LicenseStatusActive && pastExpiry(expiresAt, now) {
		return models.LicenseStatusExpired
	}
	return stored
}

// Duration converts a license duration in days.
func Duration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func pastExpiry(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !now.Before(*expiresAt)
}

// Ban is available from every state.
func Ban(l *models.License) Transition {
	return Transition{Status: models.LicenseStatusBanned}
}

// Unban restores an activated license to active and a never activated one to
// waiting.
func Unban(l *models.License) (Transition, error) {
	if l.Status != models.LicenseStatusBanned {
		return Transition{}, ErrNotBanned
	}
	if l.Activated() {
		return Transition{Status: models.LicenseStatusActive}, nil
	}
	return Transition{Status: models.LicenseStatusWaiting}, nil
}

// ResetBinding clears the device binding without touching status or expiry.
func ResetBinding(l *models.License) Transition {
	return Transition{Status: l.Status, ClearBinding: true}
}
