// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultSigningSecret = "change-me-signing-secret"
	defaultJWTSecret     = "change-me-admin-jwt-secret"

	NonceBackendDatabase = "database"
	NonceBackendRedis    = "redis"
	NonceBackendNone     = "none"

	minBypassTokenLength = 16
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Admin       AdminConfig
	Signature   SignatureConfig
	Nonce       NonceConfig
	Redis       RedisConfig
	AWS         AWSConfig
	Delivery    DeliveryConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port          string
	Host          string
	ReadTimeout   int
	WriteTimeout  int
	IdleTimeout   int
	PublicBaseURL string
	CORSOrigins   []string
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
	Issuer         string
}

type AdminConfig struct {
	Username     string
	PasswordHash string // bcrypt
}

// SignatureConfig is read once at startup and shared read-only by every
// request handler.
type SignatureConfig struct {
	Secret        string
	ReplayWindow  time.Duration
	BypassEnabled bool
	BypassToken   string
}

type NonceConfig struct {
	Backend       string
	PruneInterval time.Duration
}

type RedisConfig struct {
	URL string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
}

type DeliveryConfig struct {
	LicenseKeyPrefix string
	PayloadURLTTL    time.Duration
	StoreTimeout     time.Duration
	RecorderBuffer   int
}

type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:          getEnv("SERVER_PORT", "3000"),
			Host:          getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:   getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:  getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:   getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),
			CORSOrigins:   getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "license_gate"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "silent"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", defaultJWTSecret),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 12),
			Issuer:         getEnv("JWT_ISSUER", "license-gate"),
		},
		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Signature: SignatureConfig{
			Secret:        getEnv("SIGNING_SECRET", defaultSigningSecret),
			ReplayWindow:  time.Duration(getEnvAsInt("SIGNATURE_REPLAY_WINDOW_SECONDS", 60)) * time.Second,
			BypassEnabled: getEnvAsBool("SIGNATURE_BYPASS_ENABLED", false),
			BypassToken:   getEnv("SIGNATURE_BYPASS_TOKEN", ""),
		},
		Nonce: NonceConfig{
			Backend:       strings.ToLower(getEnv("NONCE_BACKEND", NonceBackendDatabase)),
			PruneInterval: time.Duration(getEnvAsInt("NONCE_PRUNE_INTERVAL_SECONDS", 300)) * time.Second,
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "localhost:6379"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		Delivery: DeliveryConfig{
			LicenseKeyPrefix: getEnv("LICENSE_KEY_PREFIX", "VISTA"),
			PayloadURLTTL:    time.Duration(getEnvAsInt("PAYLOAD_URL_TTL_SECONDS", 300)) * time.Second,
			StoreTimeout:     time.Duration(getEnvAsInt("STORE_TIMEOUT_MS", 3000)) * time.Millisecond,
			RecorderBuffer:   getEnvAsInt("ACCESS_RECORDER_BUFFER", 1024),
		},
		RateLimit: RateLimitConfig{
			PerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
			Burst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, config.Validate()
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate() error {
	if c.Signature.Secret == "" {
		return fmt.Errorf("signing secret is required")
	}

	if c.IsProduction() {
		if c.Signature.Secret == defaultSigningSecret {
			return fmt.Errorf("signing secret must be changed in production")
		}
		if c.JWT.SecretKey == defaultJWTSecret {
			return fmt.Errorf("JWT secret key must be changed in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in production")
		}
		if c.Signature.BypassEnabled {
			return fmt.Errorf("signature bypass cannot be enabled in production")
		}
	}

	if c.Signature.BypassEnabled && len(c.Signature.BypassToken) < minBypassTokenLength {
		return fmt.Errorf("signature bypass token must be at least %d characters", minBypassTokenLength)
	}

	if c.Signature.ReplayWindow <= 0 {
		return fmt.Errorf("signature replay window must be positive")
	}

	switch c.Nonce.Backend {
	case NonceBackendDatabase, NonceBackendRedis, NonceBackendNone:
	default:
		return fmt.Errorf("unknown nonce backend %q", c.Nonce.Backend)
	}

	if c.Delivery.StoreTimeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	if c.RateLimit.PerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate limit values must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
