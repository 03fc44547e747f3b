package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/spec-kit/pharmacy-auth/internal/api/dto"
	"github.com/spec-kit/pharmacy-auth/internal/service"
	apperrors "github.com/spec-kit/pharmacy-auth/pkg/util/errorutil"
)

const minPasswordLength = 8

// OperatorHandler exposes maintenance endpoints behind the admin key.
type OperatorHandler struct {
	auth *service.AuthService
}

// NewOperatorHandler constructs handler.
func NewOperatorHandler(authService *service.AuthService) *OperatorHandler {
	return &OperatorHandler{auth: authService}
}

// ResetPassword handles POST /operator/accounts/:id/password.
func (h *OperatorHandler) ResetPassword(c *fiber.Ctx) error {
	id, err := accountIDParam(c)
	if err != nil {
		return err
	}
	var req dto.PasswordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Password) < minPasswordLength {
		return apperrors.NewValidationError("password too short", map[string]any{"min_length": minPasswordLength})
	}

	if err := h.auth.OperatorResetPassword(c.UserContext(), id, req.Password, c.IP()); err != nil {
		return mapAuthError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"account_id": id, "password_reset": true}})
}

// SetTwoFactor handles POST /operator/accounts/:id/two-factor.
func (h *OperatorHandler) SetTwoFactor(c *fiber.Ctx) error {
	id, err := accountIDParam(c)
	if err != nil {
		return err
	}
	var req dto.TwoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Enabled == nil {
		return apperrors.NewValidationError("enabled required", nil)
	}

	if err := h.auth.OperatorSetTwoFactor(c.UserContext(), id, *req.Enabled, c.IP()); err != nil {
		return mapAuthError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"account_id": id, "two_factor_enabled": *req.Enabled}})
}

func accountIDParam(c *fiber.Ctx) (string, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return "", apperrors.NewValidationError("invalid account id", nil)
	}
	return id.String(), nil
}
