// Package redis provides a shared presence store so multiple gateway
// instances agree on who is online.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"messenger/internal/domain/user"
	"messenger/internal/realtime"
)

const (
	userKeyPrefix     = "presence:user:"
	connKeyPrefix     = "presence:conn:"
	lastSeenKeyPrefix = "presence:lastseen:"
)

// DefaultTTL bounds how long a mapping survives without a heartbeat.
const DefaultTTL = 90 * time.Second

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(url string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: redis.NewClient(opts), ttl: ttl}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) Register(ctx context.Context, userID user.ID, connID realtime.ConnectionID) (realtime.ConnectionID, error) {
	prior, err := s.rdb.GetSet(ctx, userKey(userID), string(connID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Expire(ctx, userKey(userID), s.ttl)
	pipe.Set(ctx, connKey(connID), string(userID), s.ttl)
	pipe.Del(ctx, lastSeenKey(userID))
	if prior != "" && prior != string(connID) {
		pipe.Del(ctx, connKey(realtime.ConnectionID(prior)))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return realtime.ConnectionID(prior), nil
}

func (s *Store) Unregister(ctx context.Context, connID realtime.ConnectionID) error {
	raw, err := s.rdb.Get(ctx, connKey(connID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	userID := user.ID(raw)

	// A newer connection may own the user mapping already; only the
	// current owner drops it.
	owner, err := s.rdb.Get(ctx, userKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, connKey(connID))
	if owner == string(connID) {
		pipe.Del(ctx, userKey(userID))
		pipe.Set(ctx, lastSeenKey(userID), time.Now().UTC().UnixMilli(), 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) UnregisterUser(ctx context.Context, userID user.ID) error {
	owner, err := s.rdb.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, userKey(userID))
	pipe.Del(ctx, connKey(realtime.ConnectionID(owner)))
	pipe.Set(ctx, lastSeenKey(userID), time.Now().UTC().UnixMilli(), 0)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) Touch(ctx context.Context, userID user.ID, connID realtime.ConnectionID) error {
	pipe := s.rdb.TxPipeline()
	pipe.Expire(ctx, userKey(userID), s.ttl)
	pipe.Expire(ctx, connKey(connID), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Store) IsOnline(ctx context.Context, userID user.ID) (bool, error) {
	n, err := s.rdb.Exists(ctx, userKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) ConnectionFor(ctx context.Context, userID user.ID) (realtime.ConnectionID, bool, error) {
	raw, err := s.rdb.Get(ctx, userKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return realtime.ConnectionID(raw), true, nil
}

func (s *Store) LastSeen(ctx context.Context, userID user.ID) (time.Time, bool, error) {
	raw, err := s.rdb.Get(ctx, lastSeenKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var total int
	iter := s.rdb.Scan(ctx, 0, userKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		total++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return total, nil
}

func userKey(id user.ID) string {
	return userKeyPrefix + string(id)
}

func connKey(id realtime.ConnectionID) string {
	return connKeyPrefix + string(id)
}

func lastSeenKey(id user.ID) string {
	return lastSeenKeyPrefix + string(id)
}

var _ realtime.PresenceStore = (*Store)(nil)
