package ratelimit

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/pharmacy-auth/pkg/util/errorutil"
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

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func TestLimiter_ExactlyLimitPerWindow(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		d := l.Admit("login:1.2.3.4", 5, time.Minute)
		if !d.Allowed {
			t.Fatalf("call %d denied", i+1)
		}
		if d.Remaining != 4-i {
			t.Fatalf("call %d: remaining %d", i+1, d.Remaining)
		}
		clock.Advance(time.Second)
	}

	d := l.Admit("login:1.2.3.4", 5, time.Minute)
	if d.Allowed {
		t.Fatal("6th call admitted")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("retry hint out of range: %s", d.RetryAfter)
	}
	if d.RetryAfter != 55*time.Second {
		t.Fatalf("expected 55s until window end, got %s", d.RetryAfter)
	}
}

func TestLimiter_WindowResetsAfterLength(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		l.Admit("k", 2, time.Minute)
	}

	clock.Advance(time.Minute)
	if d := l.Admit("k", 2, time.Minute); d.Allowed {
		t.Fatal("window should not reset at exactly its length")
	}

	clock.Advance(time.Millisecond)
	if d := l.Admit("k", 2, time.Minute); !d.Allowed {
		t.Fatal("window should reset once its length has passed")
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := New()
	if !l.Admit("a", 1, time.Minute).Allowed || !l.Admit("b", 1, time.Minute).Allowed {
		t.Fatal("first call per key must be admitted")
	}
	if l.Admit("a", 1, time.Minute).Allowed {
		t.Fatal("second call on a should be denied")
	}
}

func TestLimiter_ConcurrentAdmitNoLostUpdates(t *testing.T) {
	l := New()

	var allowed, denied int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if l.Admit("verify:unknown", 10, time.Hour).Allowed {
				atomic.AddInt64(&allowed, 1)
			} else {
				atomic.AddInt64(&denied, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if allowed != 10 || denied != 90 {
		t.Fatalf("allowed=%d denied=%d", allowed, denied)
	}
}

func TestLimiter_Prune(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))

	l.Admit("old", 1, time.Minute)
	clock.Advance(90 * time.Second)
	l.Admit("fresh", 1, time.Minute)

	if removed := l.Prune(time.Second); removed != 1 {
		t.Fatalf("expected 1 pruned, got %d", removed)
	}
	if l.Len() != 1 {
		t.Fatalf("expected 1 key left, got %d", l.Len())
	}
	if !l.Admit("old", 1, time.Minute).Allowed {
		t.Fatal("pruned key should start a fresh window")
	}
}

func TestMiddleware_DeniesWithRetryAfter(t *testing.T) {
	clock := newClock()
	l := New(WithClock(clock.Now))

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	app.Post("/auth/login", Middleware(l, Rule{Class: "login", Limit: 2, Window: time.Minute}, ForwardedForKey, nil), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	call := func(xff string) *http.Response {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp
	}

	call("10.0.0.1, 172.16.0.1")
	call("10.0.0.1")
	resp := call("10.0.0.1, 192.168.0.9")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("unexpected Retry-After: %q", resp.Header.Get("Retry-After"))
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != apperrors.CodeRateLimited {
		t.Fatalf("unexpected body: %s", body)
	}

	if resp := call("10.0.0.2"); resp.StatusCode != http.StatusOK {
		t.Fatalf("other client should be admitted, got %d", resp.StatusCode)
	}

	call("")
	call("")
	if resp := call(""); resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("callers without forwarding header share one bucket, got %d", resp.StatusCode)
	}
}
