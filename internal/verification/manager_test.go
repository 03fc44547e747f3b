package verification

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func newTestManager(store Store, clock *fakeClock, opts ...Option) *Manager {
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(store, DefaultSettings(), opts...)
}

// forEachStore runs fn once per backend with a fresh store and clock.
func forEachStore(t *testing.T, fn func(t *testing.T, clock *fakeClock, store Store)) {
	backends := []struct {
		name string
		new  func(t *testing.T, clock *fakeClock) Store
	}{
		{"memory", func(*testing.T, *fakeClock) Store { return NewMemoryStore() }},
		{"redis", func(t *testing.T, clock *fakeClock) Store {
			store, _ := newRedisTestStore(t, clock)
			return store
		}},
	}
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			clock := newClock()
			fn(t, clock, b.new(t, clock))
		})
	}
}

func TestManager_IssueValidateConsumes(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, store Store) {
		ctx := context.Background()
		m := newTestManager(store, clock)

		rec, err := m.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if !sixDigits.MatchString(rec.Code) {
			t.Fatalf("code is not six digits: %q", rec.Code)
		}
		if !rec.ExpiresAt.Equal(clock.Now().Add(10 * time.Minute)) {
			t.Fatalf("unexpected expiry: %s", rec.ExpiresAt)
		}

		clock.Advance(9 * time.Minute)
		if err := m.Validate(ctx, "u1", rec.Code); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if err := m.Validate(ctx, "u1", rec.Code); !errors.Is(err, ErrNotFound) {
			t.Fatalf("replay: expected ErrNotFound, got %v", err)
		}
	})
}

func TestManager_ExpiredCodeRejectedAndPurged(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, store Store) {
		ctx := context.Background()
		m := newTestManager(store, clock)

		rec, err := m.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}

		clock.Advance(10 * time.Minute)
		if err := m.Validate(ctx, "u1", rec.Code); !errors.Is(err, ErrExpired) {
			t.Fatalf("expected ErrExpired, got %v", err)
		}
		if err := m.Validate(ctx, "u1", rec.Code); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected purge after expiry, got %v", err)
		}
	})
}

func TestManager_MismatchKeepsRecordUntilAttemptsRunOut(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, store Store) {
		ctx := context.Background()
		m := newTestManager(store, clock)

		rec, err := m.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		wrong := "000000"
		if rec.Code == wrong {
			wrong = "111111"
		}

		if err := m.Validate(ctx, "u1", wrong); !errors.Is(err, ErrMismatch) {
			t.Fatalf("expected ErrMismatch, got %v", err)
		}
		if err := m.Validate(ctx, "u1", rec.Code[:5]); !errors.Is(err, ErrMismatch) {
			t.Fatalf("expected ErrMismatch for short code, got %v", err)
		}
		if err := m.Validate(ctx, "u1", rec.Code); err != nil {
			t.Fatalf("correct code after mismatches: %v", err)
		}

		rec, err = m.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if rec.Code == wrong {
			wrong = "222222"
		}
		for i := 0; i < DefaultSettings().MaxAttempts; i++ {
			if err := m.Validate(ctx, "u1", wrong); !errors.Is(err, ErrMismatch) {
				t.Fatalf("attempt %d: expected ErrMismatch, got %v", i+1, err)
			}
		}
		if err := m.Validate(ctx, "u1", rec.Code); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected code burned after max attempts, got %v", err)
		}
	})
}

func TestManager_DailyCap(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, store Store) {
		ctx := context.Background()
		m := newTestManager(store, clock)

		for i := 0; i < 5; i++ {
			if _, err := m.Issue(ctx, "u1"); err != nil {
				t.Fatalf("issue %d: %v", i+1, err)
			}
			clock.Advance(time.Minute)
		}
		if _, err := m.Issue(ctx, "u1"); !errors.Is(err, ErrDailyCapExceeded) {
			t.Fatalf("6th issue: expected ErrDailyCapExceeded, got %v", err)
		}
		if _, err := m.Issue(ctx, "u2"); err != nil {
			t.Fatalf("other account should be unaffected: %v", err)
		}

		// 01:00 on the next UTC day
		clock.Advance(15*time.Hour + 55*time.Minute)
		if _, err := m.Issue(ctx, "u1"); err != nil {
			t.Fatalf("issue on next UTC day: %v", err)
		}
	})
}

func TestManager_LatestCodeReplacesPrevious(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, store Store) {
		ctx := context.Background()
		m := newTestManager(store, clock, WithRandom(bytes.NewReader([]byte{0, 0, 1, 0, 0, 2})))

		first, err := m.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		second, err := m.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if first.Code == second.Code {
			t.Fatalf("expected distinct codes, got %q twice", first.Code)
		}
		if err := m.Validate(ctx, "u1", first.Code); !errors.Is(err, ErrMismatch) {
			t.Fatalf("superseded code: expected ErrMismatch, got %v", err)
		}
		if err := m.Validate(ctx, "u1", second.Code); err != nil {
			t.Fatalf("latest code: %v", err)
		}
	})
}

func TestManager_LeadingZerosPreserved(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, store Store) {
		m := newTestManager(store, clock, WithRandom(bytes.NewReader(make([]byte, 64))))

		rec, err := m.Issue(context.Background(), "u1")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if rec.Code != "000000" {
			t.Fatalf("expected zero-padded code, got %q", rec.Code)
		}
	})
}

func TestManager_Sweep(t *testing.T) {
	ctx := context.Background()
	clock := newClock()
	store := NewMemoryStore()
	m := newTestManager(store, clock)

	if _, err := m.Issue(ctx, "u1"); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	clock.Advance(5 * time.Minute)
	if _, err := m.Issue(ctx, "u2"); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(6 * time.Minute)
	purged, err := m.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged code, got %d", purged)
	}
	if store.Len() != 2 {
		t.Fatalf("daily counts must survive the sweep, got %d accounts", store.Len())
	}

	clock.Advance(24 * time.Hour)
	if _, err := m.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty store on a later day, got %d", store.Len())
	}
}

// The redis backend may give up under heavy contention, so the cap is
// checked by topping up sequentially afterwards: exactly DailyCap issues
// must succeed in total.
func TestManager_ConcurrentIssueRespectsCap(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, store Store) {
		ctx := context.Background()
		m := newTestManager(store, clock)
		dailyCap := int64(DefaultSettings().DailyCap)

		var ok, capped, contended int64
		var wg sync.WaitGroup
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := m.Issue(ctx, "u1")
				switch {
				case err == nil:
					atomic.AddInt64(&ok, 1)
				case errors.Is(err, ErrDailyCapExceeded):
					atomic.AddInt64(&capped, 1)
				case errors.Is(err, ErrContention):
					atomic.AddInt64(&contended, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if ok > dailyCap || ok+capped+contended != 40 {
			t.Fatalf("ok=%d capped=%d contended=%d", ok, capped, contended)
		}
		if _, isMemory := store.(*MemoryStore); isMemory && (ok != dailyCap || contended != 0) {
			t.Fatalf("memory store: ok=%d contended=%d", ok, contended)
		}

		total := ok
		for {
			_, err := m.Issue(ctx, "u1")
			if errors.Is(err, ErrDailyCapExceeded) {
				break
			}
			if err != nil {
				t.Fatalf("sequential issue: %v", err)
			}
			total++
		}
		if total != dailyCap {
			t.Fatalf("expected %d issues in total, got %d", dailyCap, total)
		}
	})
}

func TestManager_ConcurrentValidateConsumesOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, clock *fakeClock, store Store) {
		ctx := context.Background()
		m := newTestManager(store, clock)

		rec, err := m.Issue(ctx, "u1")
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}

		var success, rejected int64
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := m.Validate(ctx, "u1", rec.Code)
				switch {
				case err == nil:
					atomic.AddInt64(&success, 1)
				case errors.Is(err, ErrNotFound), errors.Is(err, ErrContention):
					atomic.AddInt64(&rejected, 1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		if success != 1 || rejected != 49 {
			t.Fatalf("success=%d rejected=%d", success, rejected)
		}
	})
}

func TestAccountState_RetainUntil(t *testing.T) {
	state := AccountState{Day: "2026-03-14"}
	want := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if got := state.RetainUntil(); !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}

	late := time.Date(2026, 3, 15, 0, 5, 0, 0, time.UTC)
	state.Active = &Record{ExpiresAt: late}
	if got := state.RetainUntil(); !got.Equal(late) {
		t.Fatalf("got %s want %s", got, late)
	}
}
