package verification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisTestStore(t *testing.T, clock *fakeClock) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, clock.Now), mr
}

func readState(t *testing.T, mr *miniredis.Miniredis, accountID string) AccountState {
	t.Helper()
	raw, err := mr.Get(redisKeyPrefix + accountID)
	if err != nil {
		t.Fatalf("get %s: %v", accountID, err)
	}
	var state AccountState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return state
}

func TestRedisStore_KeyTTLFollowsRetention(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store, mr := newRedisTestStore(t, clock)
	m := newTestManager(store, clock)

	if _, err := m.Issue(ctx, "u1"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// issued at 09:00 UTC: the day count matters until midnight
	if ttl := mr.TTL(redisKeyPrefix + "u1"); ttl != 15*time.Hour {
		t.Fatalf("expected 15h TTL, got %s", ttl)
	}

	clock.Advance(14*time.Hour + 55*time.Minute)
	if _, err := m.Issue(ctx, "u2"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// issued at 23:55 UTC: the code outlives the day
	if ttl := mr.TTL(redisKeyPrefix + "u2"); ttl != 10*time.Minute {
		t.Fatalf("expected 10m TTL, got %s", ttl)
	}

	mr.FastForward(10 * time.Minute)
	if mr.Exists(redisKeyPrefix + "u2") {
		t.Fatal("key should expire with its code")
	}
}

func TestRedisStore_DeletesStateWithNothingLeft(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store, mr := newRedisTestStore(t, clock)
	m := newTestManager(store, clock)

	if err := m.Validate(ctx, "nobody", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists(redisKeyPrefix + "nobody") {
		t.Fatal("a lookup must not create state")
	}

	if err := mr.Set(redisKeyPrefix+"u1", `{"day":"2026-03-13","issued":5}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := m.Validate(ctx, "u1", "123456"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists(redisKeyPrefix + "u1") {
		t.Fatal("state from a previous day should be deleted on write")
	}
}

func TestRedisStore_SavesStateWhenUpdateFails(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store, mr := newRedisTestStore(t, clock)
	m := newTestManager(store, clock)

	rec, err := m.Issue(ctx, "u1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(10 * time.Minute)
	if err := m.Validate(ctx, "u1", rec.Code); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	state := readState(t, mr, "u1")
	if state.Active != nil {
		t.Fatalf("expired code should be purged, got %+v", state.Active)
	}
	if state.Issued != 1 || state.Day != "2026-03-14" {
		t.Fatalf("daily count lost: %+v", state)
	}
}

func TestRedisStore_RetriesWhenKeyChangesMidUpdate(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store, mr := newRedisTestStore(t, clock)

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()

	calls := 0
	err := store.Update(ctx, "u1", func(state *AccountState) error {
		calls++
		if calls == 1 {
			if err := other.Set(ctx, redisKeyPrefix+"u1", `{"day":"2026-03-14","issued":3}`, time.Hour).Err(); err != nil {
				t.Fatalf("concurrent write: %v", err)
			}
		}
		state.Day = "2026-03-14"
		state.Issued++
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected one retry, got %d calls", calls)
	}
	if state := readState(t, mr, "u1"); state.Issued != 4 {
		t.Fatalf("retry must apply to the fresh state, got issued=%d", state.Issued)
	}
}

func TestRedisStore_GivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store, mr := newRedisTestStore(t, clock)

	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer other.Close()

	calls := 0
	err := store.Update(ctx, "u1", func(state *AccountState) error {
		calls++
		if err := other.Set(ctx, redisKeyPrefix+"u1", `{"day":"2026-03-14","issued":1}`, time.Hour).Err(); err != nil {
			t.Fatalf("concurrent write: %v", err)
		}
		state.Day = "2026-03-14"
		return nil
	})
	if !errors.Is(err, ErrContention) {
		t.Fatalf("expected ErrContention, got %v", err)
	}
	if calls != redisMaxRetries {
		t.Fatalf("expected %d attempts, got %d", redisMaxRetries, calls)
	}
}
