// internal/store/nonce_store.go
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vistahub/license-gate/internal/models"
)

// DatabaseNonceStore keeps used nonces in the shared database so every
// server instance sees the same set.
type DatabaseNonceStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDatabaseNonceStore(db *gorm.DB) *DatabaseNonceStore {
	return &DatabaseNonceStore{db: db, now: time.Now}
}

// Claim returns false if nonce was already claimed.
func (s *DatabaseNonceStore) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	row := models.UsedNonce{Nonce: nonce, ExpiresAt: s.now().Add(ttl)}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim nonce: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *DatabaseNonceStore) Release(ctx context.Context, nonce string) error {
	if err := s.db.WithContext(ctx).Where("nonce = ?", nonce).Delete(&models.UsedNonce{}).Error; err != nil {
		return fmt.Errorf("failed to release nonce: %w", err)
	}
	return nil
}

func (s *DatabaseNonceStore) Prune(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.UsedNonce{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune nonces: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// RunPruner deletes expired nonces every interval until ctx is done.
func (s *DatabaseNonceStore) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx)
			if err != nil {
				logrus.WithError(err).Warn("Nonce pruning failed")
				continue
			}
			if n > 0 {
				logrus.WithField("deleted", n).Debug("Pruned expired nonces")
			}
		}
	}
}

const redisNoncePrefix = "license:nonce:"

// RedisNonceStore claims nonces with SET NX and lets Redis expire them.
type RedisNonceStore struct {
	client *redis.Client
}

func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Claim(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, redisNoncePrefix+nonce, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim nonce: %w", err)
	}
	return ok, nil
}

func (s *RedisNonceStore) Release(ctx context.Context, nonce string) error {
	if err := s.client.Del(ctx, redisNoncePrefix+nonce).Err(); err != nil {
		return fmt.Errorf("failed to release nonce: %w", err)
	}
	return nil
}

// ConnectRedis initializes a Redis client from URL or host:port input.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
