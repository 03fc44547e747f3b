package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/pharmacy-auth/internal/api/http/handlers"
	"github.com/spec-kit/pharmacy-auth/internal/auth"
	"github.com/spec-kit/pharmacy-auth/internal/config"
	"github.com/spec-kit/pharmacy-auth/internal/domain"
	"github.com/spec-kit/pharmacy-auth/internal/ratelimit"
)

// Rate-limit classes.
const (
	ClassLogin    = "login"
	ClassVerify   = "verify"
	ClassSession  = "session"
	ClassOperator = "operator"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Operator       *handlers.OperatorHandler
	AuthMiddleware *auth.AuthMiddleware
	Gate           *auth.Gate
	OperatorGuard  *auth.OperatorGuard
	Limiter        *ratelimit.Limiter
	RateLimit      config.RateLimitConfig
	Logger         *zap.Logger
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	keyFn := ratelimit.PeerAddressKey
	if cfg.RateLimit.TrustForwardedFor {
		keyFn = ratelimit.ForwardedForKey
	}
	limit := func(class string, rule config.RateRule) fiber.Handler {
		return ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{Class: class, Limit: rule.Limit, Window: rule.Window}, keyFn, cfg.Logger)
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/login", limit(ClassLogin, cfg.RateLimit.Login), cfg.Auth.Login)
	authGroup.Post("/verify", limit(ClassVerify, cfg.RateLimit.Verify), cfg.Auth.Verify)
	authGroup.Post("/logout", limit(ClassSession, cfg.RateLimit.Session), cfg.Auth.Logout)

	protected := authGroup.Group("", limit(ClassSession, cfg.RateLimit.Session), cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protected.Get("/session", cfg.Auth.Session)
	protected.Get("/authorize/role/:role", cfg.Auth.AuthorizeRole)
	protected.Get("/authorize/capability/:capability", cfg.Auth.AuthorizeCapability)
	protected.Get("/roles/:role/capabilities", cfg.Gate.RequireCapability(domain.CapStaffManage), cfg.Auth.RoleCapabilities)

	// limited ahead of the key check so wrong keys count too
	operator := app.Group("/operator", limit(ClassOperator, cfg.RateLimit.Operator), cfg.OperatorGuard.Handle)
	operator.Post("/accounts/:id/password", cfg.Operator.ResetPassword)
	operator.Post("/accounts/:id/two-factor", cfg.Operator.SetTwoFactor)
}
