package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/pharmacy-auth/pkg/util/errorutil"
)

// OperatorKeyHeader carries the shared admin key.
const OperatorKeyHeader = "X-Admin-Key"

const operatorKey = "auth_operator"

// OperatorGuard admits maintenance calls that present the static admin key.
// It is a separate trust tier from role-based access and does not consult the Gate.
type OperatorGuard struct {
	key    []byte
	logger *zap.Logger
}

// NewOperatorGuard builds the guard. With an empty key every call is refused.
func NewOperatorGuard(key string, logger *zap.Logger) *OperatorGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperatorGuard{key: []byte(key), logger: logger}
}

// Enabled reports whether an admin key is configured.
func (g *OperatorGuard) Enabled() bool {
	return len(g.key) > 0
}

// Check compares a presented key in constant time.
func (g *OperatorGuard) Check(presented string) bool {
	if !g.Enabled() || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare(g.key, []byte(presented)) == 1
}

// Handle rejects requests without a valid admin key.
func (g *OperatorGuard) Handle(c *fiber.Ctx) error {
	if !g.Check(c.Get(OperatorKeyHeader)) {
		g.logger.Warn("operator key rejected",
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
			zap.Bool("enabled", g.Enabled()))
		return apperrors.NewForbidden("operator key required")
	}
	g.logger.Info("operator call admitted", zap.String("path", c.Path()), zap.String("ip", c.IP()))
	c.Locals(operatorKey, true)
	return c.Next()
}

// IsOperator reports whether the request passed the operator guard.
func IsOperator(c *fiber.Ctx) bool {
	v, _ := c.Locals(operatorKey).(bool)
	return v
}
