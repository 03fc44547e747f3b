package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/pharmacy-auth/internal/auth"
	"github.com/spec-kit/pharmacy-auth/internal/config"
	"github.com/spec-kit/pharmacy-auth/internal/domain"
	"github.com/spec-kit/pharmacy-auth/internal/events"
	"github.com/spec-kit/pharmacy-auth/internal/repository"
	"github.com/spec-kit/pharmacy-auth/internal/verification"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account not found")
)

// Challenge is returned instead of a session when the account requires a second factor.
type Challenge struct {
	AccountID string
	ExpiresAt time.Time
}

// LoginResult holds exactly one of Session or Challenge.
type LoginResult struct {
	Account   *domain.Account
	Session   *auth.Session
	Challenge *Challenge
}

// AuthService coordinates login, second-factor and logout flows.
type AuthService struct {
	accounts   repository.AccountRepository
	sessions   *auth.SessionManager
	codes      *verification.Manager
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
	dummyHash  string
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	Accounts   repository.AccountRepository
	Sessions   *auth.SessionManager
	Codes      *verification.Manager
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	dummyHash, err := auth.NewDummyHash(cfg.Auth.BcryptCost)
	if err != nil {
		logger.Error("dummy password hash unavailable", zap.Error(err))
	}
	return &AuthService{
		accounts:   deps.Accounts,
		sessions:   deps.Sessions,
		codes:      deps.Codes,
		dispatcher: dispatcher,
		logger:     logger,
		bcryptCost: cfg.Auth.BcryptCost,
		dummyHash:  dummyHash,
	}
}

// Login checks the password and either starts a session or issues a second-factor challenge.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	account, err := s.accounts.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			_ = auth.ComparePassword(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.ComparePassword(account.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	if account.TwoFactorEnabled {
		rec, err := s.codes.Issue(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		payload := events.VerificationCodeIssuedPayload{Email: account.Email, Code: rec.Code, ExpiresAt: rec.ExpiresAt}
		if err := s.dispatcher.Publish(ctx, events.New(events.EventVerificationCodeIssued, account.ID, payload)); err != nil {
			return nil, fmt.Errorf("deliver verification code: %w", err)
		}
		s.logger.Info("second factor challenge issued", zap.String("account_id", account.ID))
		return &LoginResult{Account: account, Challenge: &Challenge{AccountID: account.ID, ExpiresAt: rec.ExpiresAt}}, nil
	}

	session, err := s.startSession(ctx, account, "password")
	if err != nil {
		return nil, err
	}
	return &LoginResult{Account: account, Session: session}, nil
}

// VerifySecondFactor consumes the submitted code and starts the session it proves.
func (s *AuthService) VerifySecondFactor(ctx context.Context, accountID, code string) (*domain.Account, *auth.Session, error) {
	if err := s.codes.Validate(ctx, accountID, strings.TrimSpace(code)); err != nil {
		s.logger.Info("second factor rejected", zap.String("account_id", accountID), zap.Error(err))
		return nil, nil, err
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, nil, accountError(err)
	}

	session, err := s.startSession(ctx, account, "second_factor")
	if err != nil {
		return nil, nil, err
	}
	return account, session, nil
}

// Logout ends the session for claim, if any, and returns the cookies that clear it.
func (s *AuthService) Logout(ctx context.Context, claim *domain.IdentityClaim) []*http.Cookie {
	cookies := s.sessions.End(claim)
	if claim != nil {
		payload := events.SessionPayload{TokenID: claim.TokenID, Role: claim.Role}
		if err := s.dispatcher.Publish(ctx, events.New(events.EventSessionEnded, claim.SubjectID, payload)); err != nil {
			s.logger.Warn("session end event failed", zap.Error(err))
		}
	}
	return cookies
}

// OperatorResetPassword sets a new password and invalidates every outstanding credential of the account.
// The version bump happens in the store so concurrent resets never share a version.
func (s *AuthService) OperatorResetPassword(ctx context.Context, accountID, newPassword, ip string) error {
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	version, err := s.accounts.ResetPassword(ctx, accountID, hash)
	if err != nil {
		return accountError(err)
	}
	s.logger.Info("password reset by operator", zap.String("account_id", accountID), zap.Int("token_version", version))
	s.auditOperator(ctx, accountID, "password_reset", ip)
	return nil
}

// OperatorSetTwoFactor toggles the second-factor requirement for an account.
func (s *AuthService) OperatorSetTwoFactor(ctx context.Context, accountID string, enabled bool, ip string) error {
	if err := s.accounts.SetTwoFactor(ctx, accountID, enabled); err != nil {
		return accountError(err)
	}
	action := "two_factor_disabled"
	if enabled {
		action = "two_factor_enabled"
	}
	s.auditOperator(ctx, accountID, action, ip)
	return nil
}

// Sessions exposes the session manager for middleware usage.
func (s *AuthService) Sessions() *auth.SessionManager {
	return s.sessions
}

func (s *AuthService) startSession(ctx context.Context, account *domain.Account, via string) (*auth.Session, error) {
	session, err := s.sessions.Start(account.Identity())
	if err != nil {
		return nil, err
	}
	payload := events.SessionPayload{TokenID: session.Claim.TokenID, Role: account.Role, Via: via}
	if err := s.dispatcher.Publish(ctx, events.New(events.EventSessionStarted, account.ID, payload)); err != nil {
		s.logger.Warn("session start event failed", zap.Error(err))
	}
	return session, nil
}

func accountError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAccountNotFound
	}
	return err
}

func (s *AuthService) auditOperator(ctx context.Context, accountID, action, ip string) {
	payload := events.OperatorActionPayload{Action: action, IP: ip}
	if err := s.dispatcher.Publish(ctx, events.New(events.EventOperatorAction, accountID, payload)); err != nil {
		s.logger.Warn("operator audit event failed", zap.Error(err))
	}
}
