package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geochat/tokenauth/credstore"
	"github.com/redis/go-redis/v9"
)

// ErrResetRateLimited is returned once an email exceeds its request window.
var ErrResetRateLimited = errors.New("reset rate limited")

// PasswordResetConfig bounds forgot-password requests per email.
type PasswordResetConfig struct {
	MaxRequests int
	Window      time.Duration
}

// PasswordResetLimiter counts forgot-password requests in a fixed window per email.
type PasswordResetLimiter struct {
	redis  redis.UniversalClient
	config PasswordResetConfig
}

// NewPasswordResetLimiter returns nil when cfg disables throttling.
func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	if redisClient == nil || cfg.MaxRequests <= 0 || cfg.Window <= 0 {
		return nil
	}
	return &PasswordResetLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckRequest records one request for email and reports ErrResetRateLimited when the window
// is exhausted. Redis failures wrap credstore.ErrUnavailable.
func (l *PasswordResetLimiter) CheckRequest(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	return l.enforceFixedWindow(ctx, requestKey(email))
}

// Cooldown is the window length; a denied caller may retry after at most this long.
func (l *PasswordResetLimiter) Cooldown() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *PasswordResetLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", credstore.ErrUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", credstore.ErrUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return ErrResetRateLimited
	}

	return nil
}

func requestKey(email string) string {
	return "reset-throttle:" + strings.ToLower(strings.TrimSpace(email))
}
