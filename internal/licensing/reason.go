// internal/licensing/reason.go
package licensing

import (
	"errors"
	"fmt"
)

// Reason classifies every outcome of a delivery or verification request.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonMissingParameters   Reason = "missing-parameters"
	ReasonMalformedParameters Reason = "malformed-parameters"
	ReasonSignatureMismatch   Reason = "signature-mismatch"
	ReasonRequestExpired      Reason = "request-expired"
	ReasonRequestReplayed     Reason = "request-replayed"
	ReasonNotFound            Reason = "not-found"
	ReasonBanned              Reason = "banned"
	ReasonExpired             Reason = "expired"
	ReasonDeviceMismatch      Reason = "device-mismatch"
	ReasonUnavailable         Reason = "unavailable"
)

type Kind int

const (
	KindNone Kind = iota
	// KindProtocol covers missing or malformed request parameters.
	KindProtocol
	// KindAuthentication covers signature and replay failures.
	KindAuthentication
	// KindLicense covers the refusals decided by the state machine.
	KindLicense
	// KindTransient means the store or a dependency could not answer; retry.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindAuthentication:
		return "authentication"
	case KindLicense:
		return "license"
	case KindTransient:
		return "transient"
	}
	return "none"
}

func (r Reason) Kind() Kind {
	switch r {
	case ReasonMissingParameters, ReasonMalformedParameters:
		return KindProtocol
	case ReasonSignatureMismatch, ReasonRequestExpired, ReasonRequestReplayed:
		return KindAuthentication
	case ReasonNotFound, ReasonBanned, ReasonExpired, ReasonDeviceMismatch:
		return KindLicense
	case ReasonUnavailable:
		return KindTransient
	}
	return KindNone
}

// Error carries a Reason through service layers.
type Error struct {
	Reason Reason
	Err    error
}

func NewError(reason Reason, err error) *Error {
	return &Error{Reason: reason, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// ReasonOf extracts the Reason from err, falling back to ReasonUnavailable
// for errors that carry none.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonNone
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Reason
	}
	return ReasonUnavailable
}
