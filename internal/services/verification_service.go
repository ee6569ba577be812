// internal/services/verification_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vistahub/license-gate/internal/licensing"
	"github.com/vistahub/license-gate/internal/metrics"
	"github.com/vistahub/license-gate/internal/models"
	"github.com/vistahub/license-gate/internal/store"
)

const maxTransitionAttempts = 5

// LicenseRepository is the part of the license store the verification flow
// depends on.
type LicenseRepository interface {
	Get(ctx context.Context, key string) (*models.License, error)
	ApplyTransition(ctx context.Context, key string, expectedVersion int64, t licensing.Transition) error
}

type Recorder interface {
	Record(entry models.AccessLog)
}

type PayloadResolver interface {
	Resolve(ref string) (string, error)
}

type VerificationResult struct {
	Granted         bool
	Reason          licensing.Reason
	FirstActivation bool
	Rebound         bool
	License         *models.License
}

func (r *VerificationResult) ExpiresAt() *time.Time {
	if r.License == nil {
		return nil
	}
	return r.License.ExpiresAt
}

type Delivery struct {
	*VerificationResult
	Bootstrap string
}

type VerificationService struct {
	signatures *SignatureService
	licenses   LicenseRepository
	recorder   Recorder
	payloads   PayloadResolver
	encoder    *DeliveryEncoder
	timeout    time.Duration
	now        func() time.Time
}

func NewVerificationService(
	signatures *SignatureService,
	licenses LicenseRepository,
	recorder Recorder,
	payloads PayloadResolver,
	encoder *DeliveryEncoder,
	timeout time.Duration,
) *VerificationService {
	return &VerificationService{
		signatures: signatures,
		licenses:   licenses,
		recorder:   recorder,
		payloads:   payloads,
		encoder:    encoder,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Verify authenticates req and applies the license decision. Protocol,
// authentication and transient failures come back as *licensing.Error; a
// license refusal is a result with Granted=false.
func (s *VerificationService) Verify(ctx context.Context, req SignedRequest) (*VerificationResult, error) {
	_, result, err := s.verify(ctx, req)
	return result, err
}

// verify is Verify that also hands back the authenticated request. A
// transient failure releases the request's nonce so the client can retry it.
func (s *VerificationService) verify(ctx context.Context, req SignedRequest) (*VerifiedRequest, *VerificationResult, error) {
	verified, err := s.signatures.Verify(ctx, req)
	if err != nil {
		s.logRejected(req, err)
		return nil, nil, err
	}

	result, err := s.decide(ctx, verified)
	if err != nil {
		s.signatures.Release(ctx, verified)
		metrics.VerificationDecisionsTotal.WithLabelValues("error", string(licensing.ReasonOf(err))).Inc()
		logrus.WithError(err).WithField("license_key", verified.LicenseKey).Error("License verification unavailable")
		return nil, nil, err
	}

	s.record(verified, result)
	return verified, result, nil
}

// Deliver runs Verify and, on a grant, resolves and encodes the payload.
func (s *VerificationService) Deliver(ctx context.Context, req SignedRequest) (*Delivery, error) {
	verified, result, err := s.verify(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Granted {
		return &Delivery{VerificationResult: result}, nil
	}

	payloadURL, err := s.payloads.Resolve(result.License.Project.PayloadRef)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"license_key": result.License.Key,
			"project":     result.License.Project.Name,
		}).Error("Failed to resolve payload")
		s.signatures.Release(ctx, verified)
		return nil, licensing.NewError(licensing.ReasonUnavailable, fmt.Errorf("resolve payload: %w", err))
	}

	return &Delivery{
		VerificationResult: result,
		Bootstrap:          s.encoder.Encode(payloadURL),
	}, nil
}

// decide reads the license and writes the decision's transition with a
// compare-and-swap, re-reading on conflict. A concurrent writer therefore
// decides first and this request is judged against its outcome.
func (s *VerificationService) decide(ctx context.Context, req *VerifiedRequest) (*VerificationResult, error) {
	now := s.now()

	for attempt := 0; attempt < maxTransitionAttempts; attempt++ {
		license, err := s.get(ctx, req.LicenseKey)
		if errors.Is(err, store.ErrNotFound) {
			return &VerificationResult{Reason: licensing.ReasonNotFound}, nil
		}
		if err != nil {
			return nil, licensing.NewError(licensing.ReasonUnavailable, err)
		}

		d := licensing.Decide(license, req.DeviceID, now)
		if d.Reason == licensing.ReasonUnavailable {
			return nil, licensing.NewError(licensing.ReasonUnavailable, fmt.Errorf("license %s has unknown status %q", license.Key, license.Status))
		}

		if d.Transition != nil {
			err := s.apply(ctx, license, *d.Transition)
			if errors.Is(err, store.ErrConflict) {
				metrics.CASConflictsTotal.Inc()
				continue
			}
			if err != nil {
				if d.Granted {
					return nil, licensing.NewError(licensing.ReasonUnavailable, err)
				}
				// The refusal stands even if the lazy expiry write is lost.
				logrus.WithError(err).WithField("license_key", license.Key).Warn("Failed to persist license transition")
			} else {
				d.Transition.Apply(license)
				license.Version++
			}
		}

		return &VerificationResult{
			Granted:         d.Granted,
			Reason:          d.Reason,
			FirstActivation: d.FirstActivation,
			Rebound:         d.Rebound,
			License:         license,
		}, nil
	}

	return nil, licensing.NewError(licensing.ReasonUnavailable, fmt.Errorf("license %s: %w after %d attempts", req.LicenseKey, store.ErrConflict, maxTransitionAttempts))
}

func (s *VerificationService) get(ctx context.Context, key string) (*models.License, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.licenses.Get(ctx, key)
}

func (s *VerificationService) apply(ctx context.Context, license *models.License, t licensing.Transition) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.licenses.ApplyTransition(ctx, license.Key, license.Version, t)
}

func (s *VerificationService) record(req *VerifiedRequest, result *VerificationResult) {
	outcome := models.AccessOutcomeRefused
	if result.Granted {
		outcome = models.AccessOutcomeGranted
	}
	metrics.VerificationDecisionsTotal.WithLabelValues(string(outcome), string(result.Reason)).Inc()
	if result.FirstActivation {
		metrics.FirstActivationsTotal.Inc()
	}

	s.recorder.Record(models.AccessLog{
		LicenseKey:      req.LicenseKey,
		DeviceID:        req.DeviceID,
		SourceAddress:   req.SourceAddress,
		Outcome:         outcome,
		Reason:          string(result.Reason),
		FirstActivation: result.FirstActivation,
	})

	logrus.WithFields(logrus.Fields{
		"license_key":      req.LicenseKey,
		"device_id":        req.DeviceID,
		"outcome":          outcome,
		"reason":           result.Reason,
		"first_activation": result.FirstActivation,
		"rebound":          result.Rebound,
		"bypassed":         req.Bypassed,
	}).Info("License verification decided")
}

// logRejected reports protocol and authentication failures for abuse
// monitoring. They never reach the store or the access log.
func (s *VerificationService) logRejected(req SignedRequest, err error) {
	reason := licensing.ReasonOf(err)
	metrics.VerificationDecisionsTotal.WithLabelValues("rejected", string(reason)).Inc()

	entry := logrus.WithFields(logrus.Fields{
		"license_key": req.LicenseKey,
		"device_id":   req.DeviceID,
		"source":      req.SourceAddress,
		"reason":      reason,
		"kind":        reason.Kind().String(),
	})
	if reason.Kind() == licensing.KindTransient {
		entry.WithError(err).Error("Request verification unavailable")
		return
	}
	entry.Warn("Request rejected")
}
