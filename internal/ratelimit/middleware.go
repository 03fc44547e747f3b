package ratelimit

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/pharmacy-auth/pkg/util/errorutil"
)

// UnknownClient is the shared bucket for callers without a forwarding header.
const UnknownClient = "unknown"

// Rule bounds one endpoint class.
type Rule struct {
	Class  string
	Limit  int
	Window time.Duration
}

// KeyFunc derives the caller part of a rate-limit key.
type KeyFunc func(c *fiber.Ctx) string

// ForwardedForKey uses the first address of X-Forwarded-For, or UnknownClient when absent.
func ForwardedForKey(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderXForwardedFor)
	if header == "" {
		return UnknownClient
	}
	first := strings.TrimSpace(strings.SplitN(header, ",", 2)[0])
	if first == "" {
		return UnknownClient
	}
	return first
}

// PeerAddressKey ignores forwarding headers and uses the socket peer address.
func PeerAddressKey(c *fiber.Ctx) string {
	if ip := c.Context().RemoteIP(); ip != nil {
		return ip.String()
	}
	return UnknownClient
}

// Middleware admits or rejects calls for one endpoint class before any credential work runs.
func Middleware(l *Limiter, rule Rule, keyFn KeyFunc, logger *zap.Logger) fiber.Handler {
	if keyFn == nil {
		keyFn = ForwardedForKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		key := rule.Class + ":" + keyFn(c)
		decision := l.Admit(key, rule.Limit, rule.Window)
		c.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
		if decision.Allowed {
			c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			return c.Next()
		}

		retry := apperrors.RetryAfterSeconds(decision.RetryAfter)
		c.Set("X-RateLimit-Remaining", "0")
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retry))
		logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int("retry_after_seconds", retry))
		return apperrors.NewRateLimited(decision.RetryAfter)
	}
}
