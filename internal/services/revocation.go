package services

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationList remembers revoked refresh token ids until the tokens
// would have expired anyway.
type RedisRevocationList struct {
	redis *redis.Client
}

func NewRedisRevocationList(redisClient *redis.Client) *RedisRevocationList {
	return &RedisRevocationList{redis: redisClient}
}

func revokedKey(jti string) string { return "revoked_refresh:" + jti }

// Revoke marks jti revoked until the token expires. It returns false when
// another caller revoked it first. Expired tokens are never stored.
func (l *RedisRevocationList) Revoke(ctx context.Context, jti string, until time.Time) (bool, error) {
	ttl := time.Until(until)
	if ttl <= 0 {
		return false, nil
	}
	return l.redis.SetNX(ctx, revokedKey(jti), "1", ttl).Result()
}

func (l *RedisRevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := l.redis.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
