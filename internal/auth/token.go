package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/spec-kit/pharmacy-auth/internal/config"
	"github.com/spec-kit/pharmacy-auth/internal/domain"
)

// ErrInvalidCredential is the single externally visible verification failure.
// The wrapped variants below exist for server-side logging only.
var ErrInvalidCredential = errors.New("invalid token")

var (
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidCredential)
	ErrExpired          = fmt.Errorf("%w: expired", ErrInvalidCredential)
	ErrMalformed        = fmt.Errorf("%w: malformed", ErrInvalidCredential)
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	now    func() time.Time
}

// TokenOption customizes a TokenManager.
type TokenOption func(*TokenManager)

// WithTokenClock overrides the time source used for iat/exp.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(tm *TokenManager) { tm.now = now }
}

// NewTokenManager builds a new manager. An empty secret is a ConfigurationError.
func NewTokenManager(secret string, opts ...TokenOption) (*TokenManager, error) {
	if secret == "" {
		return nil, missingSecret()
	}
	tm := &TokenManager{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(tm)
	}
	return tm, nil
}

// Claims describes JWT payload.
type Claims struct {
	Email   string      `json:"email"`
	Name    string      `json:"name"`
	Role    domain.Role `json:"role"`
	Version int         `json:"ver"`
	jwt.RegisteredClaims
}

// Issue signs the identity with the expiry embedded.
func (tm *TokenManager) Issue(identity domain.Identity, ttl time.Duration) (string, domain.IdentityClaim, error) {
	if tm == nil || len(tm.secret) == 0 {
		return "", domain.IdentityClaim{}, missingSecret()
	}
	if !identity.Complete() {
		return "", domain.IdentityClaim{}, errors.New("identity requires subject, email, name and a valid role")
	}
	if ttl <= 0 {
		return "", domain.IdentityClaim{}, errors.New("ttl must be positive")
	}

	issuedAt := tm.now()
	claims := &Claims{
		Email:   identity.Email,
		Name:    identity.Name,
		Role:    identity.Role,
		Version: identity.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.SubjectID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", domain.IdentityClaim{}, err
	}
	return tokenString, claims.identityClaim(), nil
}

// Verify validates the signature and expiry and returns the embedded claim.
// Every failure wraps ErrInvalidCredential.
func (tm *TokenManager) Verify(tokenStr string) (domain.IdentityClaim, error) {
	if tm == nil || len(tm.secret) == 0 {
		return domain.IdentityClaim{}, missingSecret()
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return domain.IdentityClaim{}, classify(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return domain.IdentityClaim{}, ErrMalformed
	}
	claim := claims.identityClaim()
	if !claim.Identity.Complete() || claim.TokenID == "" {
		return domain.IdentityClaim{}, ErrMalformed
	}
	return claim, nil
}

func (c *Claims) identityClaim() domain.IdentityClaim {
	claim := domain.IdentityClaim{
		Identity: domain.Identity{
			SubjectID:    c.Subject,
			Email:        c.Email,
			Name:         c.Name,
			Role:         c.Role,
			TokenVersion: c.Version,
		},
		TokenID: c.ID,
	}
	if c.IssuedAt != nil {
		claim.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		claim.ExpiresAt = c.ExpiresAt.Time
	}
	return claim
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformed
	}
}

func missingSecret() error {
	return &config.ConfigurationError{Field: "AUTH_JWT_SECRET", Reason: "must be set"}
}
