// internal/services/payload_service.go
package services

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/vistahub/license-gate/internal/config"
)

var (
	ErrUnsupportedPayloadRef = errors.New("unsupported payload reference")
	ErrS3NotConfigured       = errors.New("S3 client not configured")
)

// PayloadService resolves a project's payload reference into the URL handed
// to the client. Plain http(s) references are used as is; s3://bucket/key
// references become short lived presigned GET URLs.
type PayloadService struct {
	s3Client *s3.S3
	ttl      time.Duration
}

func NewPayloadService(awsCfg config.AWSConfig, ttl time.Duration) (*PayloadService, error) {
	if awsCfg.AccessKeyID == "" {
		// Without credentials only http(s) payloads can be served
		return &PayloadService{ttl: ttl}, nil
	}

	cfg := &aws.Config{
		Region: aws.String(awsCfg.Region),
		Credentials: credentials.NewStaticCredentials(
			awsCfg.AccessKeyID,
			awsCfg.SecretAccessKey,
			"",
		),
	}
	if awsCfg.Endpoint != "" {
		cfg.Endpoint = aws.String(awsCfg.Endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &PayloadService{
		s3Client: s3.New(sess),
		ttl:      ttl,
	}, nil
}

// ParsePayloadRef splits ref into its scheme, bucket (host) and key.
func ParsePayloadRef(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPayloadRef, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: missing host", ErrUnsupportedPayloadRef)
		}
	case "s3":
		if u.Host == "" || strings.Trim(u.Path, "/") == "" {
			return nil, fmt.Errorf("%w: s3 references need a bucket and a key", ErrUnsupportedPayloadRef)
		}
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedPayloadRef, u.Scheme)
	}
	return u, nil
}

func (s *PayloadService) Resolve(ref string) (string, error) {
	u, err := ParsePayloadRef(ref)
	if err != nil {
		return "", err
	}
	if u.Scheme != "s3" {
		return ref, nil
	}
	return s.presign(u.Host, strings.TrimPrefix(u.Path, "/"))
}

func (s *PayloadService) presign(bucket, key string) (string, error) {
	if s.s3Client == nil {
		return "", ErrS3NotConfigured
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})

	signed, err := req.Presign(s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return signed, nil
}
