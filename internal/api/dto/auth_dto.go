package dto

import (
	"time"

	"github.com/spec-kit/pharmacy-auth/internal/domain"
)

// LoginRequest payload for password login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// VerifyRequest payload for the second-factor step.
type VerifyRequest struct {
	AccountID string `json:"account_id"`
	Code      string `json:"code"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ChallengeResponse tells the client a verification code was sent.
type ChallengeResponse struct {
	AccountID string    `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	ID               string      `json:"id"`
	Email            string      `json:"email"`
	Name             string      `json:"name"`
	Role             domain.Role `json:"role"`
	TwoFactorEnabled bool        `json:"two_factor_enabled"`
}

// SessionResponse describes the caller's verified credential.
type SessionResponse struct {
	SubjectID string      `json:"subject_id"`
	Email     string      `json:"email"`
	Name      string      `json:"name"`
	Role      domain.Role `json:"role"`
	TokenID   string      `json:"token_id"`
	IssuedAt  time.Time   `json:"issued_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// PasswordResetRequest sets a new password for an account.
type PasswordResetRequest struct {
	Password string `json:"password"`
}

// TwoFactorRequest toggles the second-factor requirement.
type TwoFactorRequest struct {
	Enabled *bool `json:"enabled"`
}

// NewAccountResponse maps a domain account.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		Role:             a.Role,
		TwoFactorEnabled: a.TwoFactorEnabled,
	}
}

// NewSessionResponse maps a verified claim.
func NewSessionResponse(claim domain.IdentityClaim) SessionResponse {
	return SessionResponse{
		SubjectID: claim.SubjectID,
		Email:     claim.Email,
		Name:      claim.Name,
		Role:      claim.Role,
		TokenID:   claim.TokenID,
		IssuedAt:  claim.IssuedAt,
		ExpiresAt: claim.ExpiresAt,
	}
}
