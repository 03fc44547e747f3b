package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/pharmacy-auth/internal/domain"
	apperrors "github.com/spec-kit/pharmacy-auth/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// ErrStaleCredential means the account's token version moved past the credential's.
var ErrStaleCredential = errors.New("credential predates account security change")

// AccountFinder is the slice of the account repository the middleware needs.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*domain.Account, error)
}

// AuthMiddleware resolves the caller's identity from the session cookie or a bearer token.
type AuthMiddleware struct {
	sessions *SessionManager
	accounts AccountFinder
	logger   *zap.Logger
}

// NewAuthMiddleware constructs middleware. accounts may be nil, in which case
// token versions are not checked against the store.
func NewAuthMiddleware(sessions *SessionManager, accounts AccountFinder, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{sessions: sessions, accounts: accounts, logger: logger}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	claim, err := m.authenticate(c)
	if err != nil {
		return err
	}
	c.Locals(principalKey, &claim)
	return c.Next()
}

// Optional attaches the principal when a valid credential is present and never rejects.
func (m *AuthMiddleware) Optional(c *fiber.Ctx) error {
	if claim, err := m.authenticate(c); err == nil {
		c.Locals(principalKey, &claim)
	}
	return c.Next()
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (domain.IdentityClaim, error) {
	creds := CredentialsFromRequest(c, m.sessions.CookieName())
	if len(creds) == 0 {
		m.logger.Debug("no session presented", zap.String("path", c.Path()))
		return domain.IdentityClaim{}, apperrors.NewUnauthenticated("authentication required")
	}

	// A rejected cookie falls through to the bearer header; the cookie's rejection is reported if both fail.
	var rejected error
	for _, cred := range creds {
		claim, err := m.verify(c.UserContext(), cred.Token)
		if err == nil {
			return claim, nil
		}
		if !isRejection(err) {
			return domain.IdentityClaim{}, apperrors.NewInternalError(err)
		}
		m.logger.Info("credential rejected",
			zap.String("path", c.Path()),
			zap.String("source", cred.Source),
			zap.Error(err))
		if rejected == nil {
			rejected = err
		}
	}
	if errors.Is(rejected, ErrNoSession) {
		return domain.IdentityClaim{}, apperrors.NewUnauthenticated("authentication required")
	}
	return domain.IdentityClaim{}, apperrors.NewInvalidCredential(rejected)
}

func (m *AuthMiddleware) verify(ctx context.Context, token string) (domain.IdentityClaim, error) {
	claim, err := m.sessions.Resolve(token)
	if err != nil {
		return domain.IdentityClaim{}, err
	}
	if m.accounts == nil {
		return claim, nil
	}
	account, err := m.accounts.FindByID(ctx, claim.SubjectID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.IdentityClaim{}, fmt.Errorf("%w: unknown account %s", ErrInvalidCredential, claim.SubjectID)
		}
		return domain.IdentityClaim{}, err
	}
	if account.TokenVersion != claim.TokenVersion {
		return domain.IdentityClaim{}, ErrStaleCredential
	}
	return claim, nil
}

func isRejection(err error) bool {
	return errors.Is(err, ErrNoSession) || errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrStaleCredential)
}

// Credential is a raw token and where it was read from.
type Credential struct {
	Token  string
	Source string
}

// CredentialsFromRequest returns the presented credentials, session cookie first.
func CredentialsFromRequest(c *fiber.Ctx, cookieName string) []Credential {
	var creds []Credential
	if v := c.Cookies(cookieName); v != "" {
		creds = append(creds, Credential{Token: v, Source: "cookie"})
	}
	parts := strings.SplitN(c.Get(fiber.HeaderAuthorization), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		if v := strings.TrimSpace(parts[1]); v != "" {
			creds = append(creds, Credential{Token: v, Source: "header"})
		}
	}
	return creds
}

// PrincipalFromContext retrieves the authenticated identity.
func PrincipalFromContext(c *fiber.Ctx) (*domain.IdentityClaim, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.IdentityClaim)
	return principal, ok
}
