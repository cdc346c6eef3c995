package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrGrantNotFound = errors.New("impersonation grant not found")
	ErrGrantBackend  = errors.New("impersonation grant backend unavailable")
)

// Grant is a one-shot delegation from an impersonator to a target user.
type Grant struct {
	ImpersonatorID string
	TargetID       string
}

// Replaces any grant the impersonator still holds, then stores the new one.
const createGrantScript = `
local previous = redis.call("GET", KEYS[2])
if previous then
  redis.call("DEL", ARGV[4] .. previous)
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
return 1
`

// Reads and deletes in one step. The owner index is cleared only if it
// still points at this grant.
const redeemGrantScript = `
local value = redis.call("GET", KEYS[1])
if not value then
  return false
end
redis.call("DEL", KEYS[1])
local sep = string.find(value, "\n", 1, true)
if sep then
  local owner = ARGV[2] .. string.sub(value, 1, sep - 1)
  if redis.call("GET", owner) == ARGV[1] then
    redis.call("DEL", owner)
  end
end
return value
`

var (
	createGrantLua = redis.NewScript(createGrantScript)
	redeemGrantLua = redis.NewScript(redeemGrantScript)
)

// GrantStore holds at most one live grant per impersonator.
type GrantStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewGrantStore(redisClient redis.UniversalClient, prefix string) *GrantStore {
	if prefix == "" {
		prefix = "aig"
	}
	return &GrantStore{redis: redisClient, prefix: prefix}
}

// Both key families share the {prefix} hash tag so the scripts, which
// derive keys from ARGV, stay in one Redis Cluster slot.
func (s *GrantStore) grantPrefix() string { return "{" + s.prefix + "}:g:" }
func (s *GrantStore) ownerPrefix() string { return "{" + s.prefix + "}:o:" }

// Create stores grant under grantID and invalidates the impersonator's
// previous grant, if any.
func (s *GrantStore) Create(ctx context.Context, grantID string, grant Grant, ttl time.Duration) error {
	if strings.Contains(grant.ImpersonatorID, "\n") || strings.Contains(grant.TargetID, "\n") {
		return errors.New("grant user ids must not contain newlines")
	}
	value := grant.ImpersonatorID + "\n" + grant.TargetID

	err := createGrantLua.Run(
		ctx,
		s.redis,
		[]string{s.grantPrefix() + grantID, s.ownerPrefix() + grant.ImpersonatorID},
		value,
		grantID,
		ttl.Milliseconds(),
		s.grantPrefix(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGrantBackend, err)
	}
	return nil
}

// Redeem consumes grantID. Whatever the caller decides afterwards, the grant
// no longer exists once Redeem returns it.
func (s *GrantStore) Redeem(ctx context.Context, grantID string) (Grant, error) {
	value, err := redeemGrantLua.Run(
		ctx,
		s.redis,
		[]string{s.grantPrefix() + grantID},
		grantID,
		s.ownerPrefix(),
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Grant{}, ErrGrantNotFound
		}
		return Grant{}, fmt.Errorf("%w: %v", ErrGrantBackend, err)
	}

	impersonator, target, ok := strings.Cut(value, "\n")
	if !ok {
		return Grant{}, ErrGrantNotFound
	}
	return Grant{ImpersonatorID: impersonator, TargetID: target}, nil
}

// Outstanding returns the live grant ID held by impersonatorID, if any.
func (s *GrantStore) Outstanding(ctx context.Context, impersonatorID string) (string, bool, error) {
	id, err := s.redis.Get(ctx, s.ownerPrefix()+impersonatorID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("%w: %v", ErrGrantBackend, err)
	}
	return id, true, nil
}
