package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "verification:"
	redisMaxRetries   = 8
	redisMinKeyTTL    = time.Second
	redisRetryBackoff = 2 * time.Millisecond
)

// ErrContention means optimistic retries were exhausted for one account.
var ErrContention = errors.New("verification state contended")

// RedisStore keeps verification state in Redis so it survives restarts.
// Each account is one key updated under WATCH/MULTI; keys expire on their own,
// so Sweep has nothing to do.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, now func() time.Time) *RedisStore {
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, now: now}
}

func (s *RedisStore) Update(ctx context.Context, accountID string, fn func(state *AccountState) error) error {
	key := redisKeyPrefix + accountID

	var fnErr error
	txf := func(tx *redis.Tx) error {
		fnErr = nil
		var state AccountState
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &state); err != nil {
				return fmt.Errorf("decode verification state: %w", err)
			}
		}

		fnErr = fn(&state)

		ttl := state.RetainUntil().Sub(s.now())
		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode verification state: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if ttl < redisMinKeyTTL {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < redisMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return fnErr
		}
		if errors.Is(err, redis.TxFailedErr) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(redisRetryBackoff * time.Duration(i+1)):
			}
			continue
		}
		return err
	}
	return ErrContention
}

// Sweep is a no-op; Redis expires keys via their TTL.
func (s *RedisStore) Sweep(context.Context, func(string, *AccountState) bool) (int, error) {
	return 0, nil
}

// Ping verifies Redis connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
