package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrSudoBackend = errors.New("sudo store backend unavailable")

// SudoStore records the last successful password re-verification per user.
type SudoStore struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewSudoStore(redisClient redis.UniversalClient, prefix string, window time.Duration) *SudoStore {
	if prefix == "" {
		prefix = "asu"
	}
	return &SudoStore{redis: redisClient, prefix: prefix, window: window, now: time.Now}
}

// WithClock overrides the time source used to stamp and check the window.
func (s *SudoStore) WithClock(now func() time.Time) *SudoStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *SudoStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Mark starts a fresh window for userID.
func (s *SudoStore) Mark(ctx context.Context, userID string) error {
	at := s.now().UnixMilli()
	if err := s.redis.Set(ctx, s.key(userID), at, s.window).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSudoBackend, err)
	}
	return nil
}

// Recent reports whether userID verified within the window. The stored
// timestamp is checked as well as the key TTL.
func (s *SudoStore) Recent(ctx context.Context, userID string) (bool, error) {
	raw, err := s.redis.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrSudoBackend, err)
	}
	at, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return s.now().Sub(time.UnixMilli(at)) < s.window, nil
}

// Clear ends the window, e.g. after a password change.
func (s *SudoStore) Clear(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSudoBackend, err)
	}
	return nil
}
