// Package ratelimit throttles event ingestion per client with fixed
// one-second windows in Redis.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

// Nop allows everything. It is used when Redis is not configured.
type Nop struct{}

func (Nop) Allow(context.Context, string) bool { return true }

type RedisLimiter struct {
	client    redis.Cmdable
	perSecond int64
}

func NewRedisLimiter(client redis.Cmdable, perSecond int) *RedisLimiter {
	return &RedisLimiter{client: client, perSecond: int64(perSecond)}
}

// Allow counts a request against key's current window. Redis failures allow
// the request; ingestion must not depend on the limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	if l.perSecond <= 0 {
		return true
	}

	k := "ratelimit:events:" + key
	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		log.Debug().Err(err).Msg("rate limiter unavailable, allowing request")
		return true
	}

	if count == 1 {
		l.expire(ctx, k)
	}
	if count <= l.perSecond {
		return true
	}

	// A window whose EXPIRE was lost never resets, so re-arm it here.
	if ttl, err := l.client.TTL(ctx, k).Result(); err == nil && ttl < 0 {
		l.expire(ctx, k)
	}
	return false
}

func (l *RedisLimiter) expire(ctx context.Context, k string) {
	if err := l.client.Expire(ctx, k, time.Second).Err(); err != nil {
		log.Warn().Err(err).Str("key", k).Msg("failed to set rate limit window expiry")
	}
}
