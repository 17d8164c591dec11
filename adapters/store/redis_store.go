package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
)

// revokedPrefix namespaces revocation entries so the instances can share a
// Redis with the rest of the platform.
const revokedPrefix = "citadel:revoked:"

// RedisStore implements ports.Store using Redis, so a logout on one
// instance revokes the token on all of them.
type RedisStore struct {
	client *redis.Client
}

var _ ports.Store = (*RedisStore)(nil)

// NewRedisStore connects and pings before returning.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(options)
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// InvalidateToken marks a token id revoked until its natural expiry; Redis
// then drops the entry on its own.
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	if err := s.client.Set(ctx, revokedPrefix+tokenID, "1", expiry).Err(); err != nil {
		return core.ErrFailure
	}
	return nil
}

// IsTokenInvalidated reports whether a token id is currently revoked.
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	_, err := s.client.Get(ctx, revokedPrefix+tokenID).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, core.ErrFailure
	}
	return true, nil
}

// GetClient exposes the connection so the event publisher can share it.
func (s *RedisStore) GetClient() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
