// internal/services/signature_service.go
package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vistahub/license-gate/internal/config"
	"github.com/vistahub/license-gate/internal/licensing"
	"github.com/vistahub/license-gate/internal/metrics"
	"github.com/vistahub/license-gate/internal/utils"
)

// Column sizes of models.License.Key and models.License.BoundDeviceID.
const (
	maxLicenseKeyLength = 64
	maxDeviceIDLength   = 255
)

// NonceStore records HMAC digests already seen inside the replay window.
// Release gives a claimed nonce back so a request that failed transiently
// can be retried as is.
type NonceStore interface {
	Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, nonce string) error
}

// SignedRequest is the raw, client supplied form of a delivery request.
type SignedRequest struct {
	LicenseKey    string
	DeviceID      string
	Timestamp     string
	Signature     string
	BypassToken   string
	SourceAddress string
}

// VerifiedRequest is a request whose origin has been authenticated.
type VerifiedRequest struct {
	LicenseKey    string
	DeviceID      string
	Timestamp     int64
	SourceAddress string
	Bypassed      bool

	nonce string
}

type SignatureService struct {
	secret        []byte
	window        time.Duration
	bypassEnabled bool
	bypassToken   []byte
	nonces        NonceStore
	timeout       time.Duration
	now           func() time.Time
}

// NewSignatureService copies what it needs out of cfg. nonces may be nil to
// disable replay detection inside the window.
func NewSignatureService(cfg config.SignatureConfig, nonces NonceStore, timeout time.Duration) *SignatureService {
	s := &SignatureService{
		secret:  []byte(cfg.Secret),
		window:  cfg.ReplayWindow,
		nonces:  nonces,
		timeout: timeout,
		now:     time.Now,
	}
	if cfg.BypassEnabled && cfg.BypassToken != "" {
		s.bypassEnabled = true
		s.bypassToken = []byte(cfg.BypassToken)
	}
	return s
}

// Verify authenticates req. Failures are *licensing.Error values of the
// protocol, authentication or transient kind.
func (s *SignatureService) Verify(ctx context.Context, req SignedRequest) (*VerifiedRequest, error) {
	if req.LicenseKey == "" || req.DeviceID == "" {
		return nil, licensing.NewError(licensing.ReasonMissingParameters, nil)
	}
	// ':' is the field separator of the signed string.
	if strings.Contains(req.LicenseKey, ":") || strings.Contains(req.DeviceID, ":") {
		return nil, licensing.NewError(licensing.ReasonMalformedParameters, fmt.Errorf("field separator in identifier"))
	}
	if len(req.LicenseKey) > maxLicenseKeyLength || len(req.DeviceID) > maxDeviceIDLength {
		return nil, licensing.NewError(licensing.ReasonMalformedParameters, fmt.Errorf("identifier too long"))
	}

	if s.bypassed(req) {
		metrics.SignatureBypassTotal.Inc()
		logrus.WithFields(logrus.Fields{
			"license_key": req.LicenseKey,
			"device_id":   req.DeviceID,
			"source":      req.SourceAddress,
		}).Warn("SIGNATURE BYPASS USED: request accepted without signature verification")
		return &VerifiedRequest{
			LicenseKey:    req.LicenseKey,
			DeviceID:      req.DeviceID,
			Timestamp:     s.now().Unix(),
			SourceAddress: req.SourceAddress,
			Bypassed:      true,
		}, nil
	}

	if req.Timestamp == "" || req.Signature == "" {
		return nil, licensing.NewError(licensing.ReasonMissingParameters, nil)
	}
	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return nil, licensing.NewError(licensing.ReasonMalformedParameters, fmt.Errorf("timestamp: %w", err))
	}

	if !utils.VerifyRequestSignature(s.secret, req.LicenseKey, req.DeviceID, ts, req.Signature) {
		return nil, licensing.NewError(licensing.ReasonSignatureMismatch, nil)
	}

	// Whole seconds: a time.Duration saturates for timestamps centuries away.
	window := int64(s.window / time.Second)
	skew := s.now().Unix() - ts
	if skew > window || skew < -window {
		return nil, licensing.NewError(licensing.ReasonRequestExpired, fmt.Errorf("timestamp skew %ds", skew))
	}

	nonce, err := s.claimNonce(ctx, req.LicenseKey, req.DeviceID, ts)
	if err != nil {
		return nil, err
	}

	return &VerifiedRequest{
		LicenseKey:    req.LicenseKey,
		DeviceID:      req.DeviceID,
		Timestamp:     ts,
		SourceAddress: req.SourceAddress,
		nonce:         nonce,
	}, nil
}

// Release returns the nonce claimed for req. A failed release only means the
// retry is refused as a replay until the nonce expires.
func (s *SignatureService) Release(ctx context.Context, req *VerifiedRequest) {
	if s.nonces == nil || req == nil || req.nonce == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.nonces.Release(ctx, req.nonce); err != nil {
		logrus.WithError(err).WithField("license_key", req.LicenseKey).Warn("Failed to release request nonce")
	}
}

func (s *SignatureService) bypassed(req SignedRequest) bool {
	if !s.bypassEnabled || req.BypassToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(req.BypassToken), s.bypassToken) == 1
}

// claimNonce rejects a second use of the same signed string. A claim lives
// twice the window so a request can never outlive its nonce.
func (s *SignatureService) claimNonce(ctx context.Context, key, device string, ts int64) (string, error) {
	if s.nonces == nil {
		return "", nil
	}

	sum := sha256.Sum256([]byte(utils.CanonicalRequest(key, device, ts)))
	nonce := hex.EncodeToString(sum[:])

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	fresh, err := s.nonces.Claim(ctx, nonce, 2*s.window)
	if err != nil {
		return "", licensing.NewError(licensing.ReasonUnavailable, fmt.Errorf("nonce store: %w", err))
	}
	if !fresh {
		return "", licensing.NewError(licensing.ReasonRequestReplayed, nil)
	}
	return nonce, nil
}
