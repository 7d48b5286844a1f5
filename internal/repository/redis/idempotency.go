package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idemLockValue    = "LOCK"
	idemResultPrefix = "RES:"
)

// IdempotencyStore remembers the response of a request keyed by a client
// supplied Idempotency-Key. A key is either locked (request in flight) or
// holds the stored response.
type IdempotencyStore struct {
	rdb     *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
}

func NewIdempotencyStore(rdb *redis.Client, ttl, lockTTL time.Duration) *IdempotencyStore {
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}

	return &IdempotencyStore{rdb: rdb, ttl: ttl, lockTTL: lockTTL}
}

// AcquireLock claims key for the caller. It returns false when another
// request holds the lock or has already stored a result.
func (s *IdempotencyStore) AcquireLock(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, key, idemLockValue, s.lockTTL).Result()
}

func (s *IdempotencyStore) SaveResult(ctx context.Context, key string, jsonPayload []byte) error {
	return s.rdb.Set(ctx, key, idemResultPrefix+string(jsonPayload), s.ttl).Err()
}

func (s *IdempotencyStore) GetResult(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if payload, ok := strings.CutPrefix(v, idemResultPrefix); ok {
		return []byte(payload), true, nil
	}

	return nil, false, nil
}

// Release drops the lock so the client may retry after a failure.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}
