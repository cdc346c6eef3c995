package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultFactorMaxFailures = 10
	defaultFactorWindow      = 15 * time.Minute
)

var (
	ErrFactorLimited     = errors.New("second factor rate limited")
	ErrFactorUnavailable = errors.New("second factor limiter unavailable")
)

// FactorLimiterConfig holds the per-user thresholds for wrong second-factor
// codes. Zero fields fall back to defaults (10 failures / 15m).
type FactorLimiterConfig struct {
	Prefix      string
	MaxFailures int
	Window      time.Duration
}

// FactorLimiter counts wrong TOTP and backup codes per user across every
// challenge. The window starts at the first failure and is not extended.
type FactorLimiter struct {
	redis       redis.UniversalClient
	prefix      string
	maxFailures int64
	window      time.Duration
}

func NewFactorLimiter(redisClient redis.UniversalClient, cfg FactorLimiterConfig) *FactorLimiter {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "atf"
	}
	max := cfg.MaxFailures
	if max <= 0 {
		max = defaultFactorMaxFailures
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultFactorWindow
	}
	return &FactorLimiter{redis: redisClient, prefix: prefix, maxFailures: int64(max), window: window}
}

func (l *FactorLimiter) key(userID string) string {
	return l.prefix + ":" + userID
}

// Check returns ErrFactorLimited once the user has used up the window.
func (l *FactorLimiter) Check(ctx context.Context, userID string) error {
	count, err := l.redis.Get(ctx, l.key(userID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrFactorUnavailable, err)
	}
	if count >= l.maxFailures {
		return ErrFactorLimited
	}
	return nil
}

// RecordFailure counts one wrong code. It returns ErrFactorLimited when this
// failure reaches the cap.
func (l *FactorLimiter) RecordFailure(ctx context.Context, userID string) error {
	key := l.key(userID)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFactorUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrFactorUnavailable, err)
		}
	}
	if count >= l.maxFailures {
		return ErrFactorLimited
	}
	return nil
}

func (l *FactorLimiter) Reset(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrFactorUnavailable, err)
	}
	return nil
}
