package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

type ResetDispatchConfig struct {
	Prefix      string
	MaxRequests int
	Window      time.Duration
}

// ResetDispatchLimiter counts reset submissions per (method, target) inside
// a fixed window.
type ResetDispatchLimiter struct {
	redis  redis.UniversalClient
	config ResetDispatchConfig
}

func NewResetDispatchLimiter(redisClient redis.UniversalClient, cfg ResetDispatchConfig) *ResetDispatchLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "authflow"
	}
	return &ResetDispatchLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check increments the counter for target and reports ErrResetRateLimited
// once MaxRequests is exceeded inside the window.
func (l *ResetDispatchLimiter) Check(ctx context.Context, method, target string) error {
	if l == nil || l.redis == nil {
		return nil
	}
	return l.enforceFixedWindow(ctx, l.key(method, target))
}

// Cooldown is the window length a throttled caller has to wait at most.
func (l *ResetDispatchLimiter) Cooldown() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *ResetDispatchLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrResetRateLimited
	}
	return nil
}

func (l *ResetDispatchLimiter) key(method, target string) string {
	return l.config.Prefix + ":rst:" + method + ":" + strings.ToLower(strings.TrimSpace(target))
}
