package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ErrNotFound is returned for missing, expired or mismatched sessions. The
// three cases are deliberately indistinguishable to callers.
var ErrNotFound = errors.New("session not found")

// ErrSessionExists is returned when Save targets an ID that is already stored.
// Sessions and their snapshots are write-once.
var ErrSessionExists = errors.New("session already exists")

const saveSessionScript = `
if not redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2], "NX") then
  return 0
end
redis.call("SADD", KEYS[2], ARGV[3])
local ttl = redis.call("PTTL", KEYS[2])
if ttl < tonumber(ARGV[2]) then
  redis.call("PEXPIRE", KEYS[2], ARGV[2])
end
return 1
`

var saveSessionLua = redis.NewScript(saveSessionScript)

const deleteSessionScript = `
local existed = redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
return existed
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session store. Each session lives under its own
// key with a native TTL; a per-user set indexes the IDs for bulk revocation.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore creates a session [Store]. prefix namespaces every key.
func NewStore(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "as"
	}
	return &Store{redis: rdb, prefix: prefix, now: time.Now}
}

// WithClock overrides the time source used for lazy expiry checks.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists sess until sess.ExpiresAt. It refuses to overwrite an
// existing session.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s already expired", sess.ID)
	}

	data, err := Encode(sess)
	if err != nil {
		return err
	}

	created, err := saveSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.key(sess.ID), s.userKey(sess.UserID)},
		data,
		ttl.Milliseconds(),
		sess.ID,
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if created == 0 {
		return ErrSessionExists
	}
	return nil
}

// Get returns the session stored under sessionID.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.ID = sessionID

	if sess.ExpiredAt(s.now()) {
		if _, err := s.delete(ctx, sess.UserID, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return sess, nil
}

// Lookup resolves a bearer token. A wrong secret for a live ID is reported
// as ErrNotFound.
func (s *Store) Lookup(ctx context.Context, token string) (*Session, error) {
	id, hash, err := ParseToken(token)
	if err != nil {
		return nil, ErrNotFound
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !hashesEqual(sess.SecretHash, hash) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete revokes one session. Deleting a missing session is not an error;
// the returned bool reports whether anything was removed.
func (s *Store) Delete(ctx context.Context, sessionID string) (bool, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// Unreadable records are still removed; the user index entry expires
		// with the set.
		if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return true, nil
	}
	return s.delete(ctx, sess.UserID, sessionID)
}

func (s *Store) delete(ctx context.Context, userID, sessionID string) (bool, error) {
	n, err := deleteSessionLua.Run(ctx, s.redis, []string{s.key(sessionID), s.userKey(userID)}, sessionID).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n == 1, nil
}

// IDsForUser returns the indexed session IDs for userID. The index may hold
// IDs whose keys have already expired.
func (s *Store) IDsForUser(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// ListForUser returns the live sessions of userID and prunes stale index
// entries as a side effect.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Session, error) {
	ids, err := s.IDsForUser(ctx, userID)
	if err != nil || len(ids) == 0 {
		return []*Session{}, err
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	now := s.now()
	sessions := make([]*Session, 0, len(ids))
	stale := make([]interface{}, 0)
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, ids[i])
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		sess, err := Decode(data)
		if err != nil || sess.ExpiredAt(now) {
			stale = append(stale, ids[i])
			continue
		}
		sess.ID = ids[i]
		sessions = append(sessions, sess)
	}

	if len(stale) > 0 {
		if err := s.redis.SRem(ctx, s.userKey(userID), stale...).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return sessions, nil
}

// DeleteAllForUser removes every session of userID and returns how many
// existed.
//
// A session saved between the SMEMBERS read and the delete survives this call.
// Revocation after a lock decision is best-effort for that window; the
// ban check on the next sign-in still applies.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) (int, error) {
	ids, err := s.IDsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	return s.DeleteMany(ctx, userID, ids)
}

// DeleteMany removes the listed sessions of userID. IDs belonging to other
// users are ignored.
func (s *Store) DeleteMany(ctx context.Context, userID string, sessionIDs []string) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	owned, err := s.redis.SMIsMember(ctx, s.userKey(userID), toInterfaces(sessionIDs)...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := make([]string, 0, len(sessionIDs))
	members := make([]interface{}, 0, len(sessionIDs))
	for i, id := range sessionIDs {
		if !owned[i] {
			continue
		}
		keys = append(keys, s.key(id))
		members = append(members, id)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	var delCmd *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		delCmd = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, s.userKey(userID), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(delCmd.Val()), nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
