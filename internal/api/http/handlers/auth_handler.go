package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/pharmacy-auth/internal/api/dto"
	"github.com/spec-kit/pharmacy-auth/internal/auth"
	"github.com/spec-kit/pharmacy-auth/internal/domain"
	"github.com/spec-kit/pharmacy-auth/internal/service"
	"github.com/spec-kit/pharmacy-auth/internal/verification"
	apperrors "github.com/spec-kit/pharmacy-auth/pkg/util/errorutil"
)

// AuthHandler exposes login, second-factor, logout and session endpoints.
type AuthHandler struct {
	auth   *service.AuthService
	gate   *auth.Gate
	logger *zap.Logger
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, gate *auth.Gate, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: authService, gate: gate, logger: logger}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	res, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return mapAuthError(err)
	}

	if res.Challenge != nil {
		return c.Status(http.StatusAccepted).JSON(fiber.Map{
			"data": fiber.Map{
				"challenge": dto.ChallengeResponse{
					AccountID: res.Challenge.AccountID,
					ExpiresAt: res.Challenge.ExpiresAt,
				},
			},
		})
	}

	auth.WriteCookies(c, res.Session.Cookie)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"account": dto.NewAccountResponse(res.Account),
			"auth":    dto.AuthResponse{Token: res.Session.Token, ExpiresAt: res.Session.Claim.ExpiresAt},
		},
	})
}

// Verify handles POST /auth/verify.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AccountID == "" || req.Code == "" {
		return apperrors.NewValidationError("account_id and code required", nil)
	}

	account, session, err := h.auth.VerifySecondFactor(c.UserContext(), req.AccountID, req.Code)
	if err != nil {
		return mapAuthError(err)
	}

	auth.WriteCookies(c, session.Cookie)
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"account": dto.NewAccountResponse(account),
			"auth":    dto.AuthResponse{Token: session.Token, ExpiresAt: session.Claim.ExpiresAt},
		},
	})
}

// Logout handles POST /auth/logout. Clearing cookies is unconditional so a
// stale or forged cookie is removed as well.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sessions := h.auth.Sessions()
	var claim *domain.IdentityClaim
	for _, cred := range auth.CredentialsFromRequest(c, sessions.CookieName()) {
		resolved, err := sessions.Resolve(cred.Token)
		if err == nil {
			claim = &resolved
			break
		}
		h.logger.Debug("logout with unusable credential", zap.String("source", cred.Source), zap.Error(err))
	}

	auth.WriteCookies(c, h.auth.Logout(c.UserContext(), claim)...)
	return c.JSON(fiber.Map{"data": fiber.Map{"logged_out": true}})
}

// Session handles GET /auth/session.
func (h *AuthHandler) Session(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"session":      dto.NewSessionResponse(*principal),
			"capabilities": h.gate.Capabilities(principal.Role),
		},
	})
}

// AuthorizeRole handles GET /auth/authorize/role/:role.
func (h *AuthHandler) AuthorizeRole(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	role, ok := domain.ParseRole(c.Params("role"))
	if !ok {
		return apperrors.NewValidationError("unknown role", map[string]any{"role": c.Params("role")})
	}
	if err := h.gate.AuthorizeRole(*principal, role); err != nil {
		return apperrors.NewForbidden(err.Error())
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"allowed": true, "role": role}})
}

// AuthorizeCapability handles GET /auth/authorize/capability/:capability.
func (h *AuthHandler) AuthorizeCapability(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthenticated("authentication required")
	}
	capability, ok := domain.ParseCapability(c.Params("capability"))
	if !ok {
		return apperrors.NewValidationError("unknown capability", map[string]any{"capability": c.Params("capability")})
	}
	if err := h.gate.AuthorizeCapability(*principal, capability); err != nil {
		return apperrors.NewForbidden(err.Error())
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"allowed": true, "capability": capability}})
}

// RoleCapabilities handles GET /auth/roles/:role/capabilities.
func (h *AuthHandler) RoleCapabilities(c *fiber.Ctx) error {
	role, ok := domain.ParseRole(c.Params("role"))
	if !ok {
		return apperrors.NewValidationError("unknown role", map[string]any{"role": c.Params("role")})
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"role": role, "capabilities": h.gate.Capabilities(role)}})
}

func mapAuthError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return apperrors.NewDomainError(apperrors.CodeInvalidCredential, "invalid email or password", http.StatusUnauthorized, nil)
	case errors.Is(err, service.ErrAccountNotFound):
		return apperrors.NewNotFound("account", nil)
	case errors.Is(err, verification.ErrNotFound):
		return apperrors.NewCodeNotFound()
	case errors.Is(err, verification.ErrExpired):
		return apperrors.NewCodeExpired()
	case errors.Is(err, verification.ErrMismatch):
		return apperrors.NewCodeMismatch()
	case errors.Is(err, verification.ErrDailyCapExceeded):
		return apperrors.NewDailyCapExceeded()
	default:
		return err
	}
}
