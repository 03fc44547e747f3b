package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pharmacy-auth/internal/config"
	"github.com/spec-kit/pharmacy-auth/internal/domain"
)

// ErrNoSession means the request carried no live session: no cookie, or one that was ended.
var ErrNoSession = errors.New("no session")

// SessionSettings controls the session cookie shape.
type SessionSettings struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
	// Domain is pinned on issued cookies; empty means host-only.
	Domain string
	// AltDomain is an extra domain variant cleared on logout.
	AltDomain string
}

// SessionSettingsFromConfig pins the domain and secure flag in production only.
func SessionSettingsFromConfig(cfg config.Config) SessionSettings {
	s := SessionSettings{
		CookieName: cfg.Auth.CookieName,
		TTL:        cfg.Auth.SessionTTL(),
		AltDomain:  cfg.Auth.CookieDomain,
	}
	if s.CookieName == "" {
		s.CookieName = "session"
	}
	if cfg.App.IsProduction() {
		s.Secure = true
		s.Domain = cfg.Auth.CookieDomain
	}
	return s
}

// SessionManager binds verified identities to the session cookie.
type SessionManager struct {
	tokens   *TokenManager
	revoked  *RevocationList
	settings SessionSettings
}

// NewSessionManager constructs a manager.
func NewSessionManager(tokens *TokenManager, revoked *RevocationList, settings SessionSettings) *SessionManager {
	if revoked == nil {
		revoked = NewRevocationList(tokens.now)
	}
	if settings.TTL <= 0 {
		settings.TTL = 24 * time.Hour
	}
	return &SessionManager{tokens: tokens, revoked: revoked, settings: settings}
}

// Session is the outcome of a successful login.
type Session struct {
	Token  string
	Claim  domain.IdentityClaim
	Cookie *http.Cookie
}

// Start issues a credential for the identity and the cookie that carries it.
func (m *SessionManager) Start(identity domain.Identity) (*Session, error) {
	token, claim, err := m.tokens.Issue(identity, m.settings.TTL)
	if err != nil {
		return nil, err
	}
	cookie := &http.Cookie{
		Name:     m.settings.CookieName,
		Value:    token,
		Path:     "/",
		Domain:   m.settings.Domain,
		Expires:  claim.ExpiresAt,
		MaxAge:   int(m.settings.TTL / time.Second),
		Secure:   m.settings.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Session{Token: token, Claim: claim, Cookie: cookie}, nil
}

// End revokes the claim's credential, if any, and returns deletion cookies
// for every domain variant a login could have set.
func (m *SessionManager) End(claim *domain.IdentityClaim) []*http.Cookie {
	if claim != nil {
		m.revoked.Revoke(claim.TokenID, claim.ExpiresAt)
	}

	domains := []string{""}
	for _, d := range []string{m.settings.Domain, m.settings.AltDomain} {
		d = strings.TrimPrefix(d, ".")
		if d != "" && !contains(domains, d) {
			domains = append(domains, d)
		}
	}

	cookies := make([]*http.Cookie, 0, len(domains))
	for _, d := range domains {
		cookies = append(cookies, &http.Cookie{
			Name:     m.settings.CookieName,
			Value:    "",
			Path:     "/",
			Domain:   d,
			Expires:  time.Unix(0, 0).UTC(),
			MaxAge:   -1,
			Secure:   m.settings.Secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return cookies
}

// Read resolves the session cookie on the request.
// It returns ErrNoSession when the cookie is absent and an ErrInvalidCredential variant when it does not verify.
func (m *SessionManager) Read(c *fiber.Ctx) (domain.IdentityClaim, error) {
	return m.Resolve(c.Cookies(m.settings.CookieName))
}

// Resolve verifies a raw credential taken from a cookie or bearer header.
func (m *SessionManager) Resolve(token string) (domain.IdentityClaim, error) {
	if token == "" {
		return domain.IdentityClaim{}, ErrNoSession
	}
	claim, err := m.tokens.Verify(token)
	if err != nil {
		return domain.IdentityClaim{}, err
	}
	if m.revoked.IsRevoked(claim.TokenID) {
		return domain.IdentityClaim{}, ErrNoSession
	}
	return claim, nil
}

// CookieName returns the name of the session cookie.
func (m *SessionManager) CookieName() string {
	return m.settings.CookieName
}

// Revocations exposes the revocation list for periodic purging.
func (m *SessionManager) Revocations() *RevocationList {
	return m.revoked
}

// WriteCookies appends one Set-Cookie header per cookie.
func WriteCookies(c *fiber.Ctx, cookies ...*http.Cookie) {
	for _, cookie := range cookies {
		c.Response().Header.Add(fiber.HeaderSetCookie, cookie.String())
	}
}

func contains(values []string, v string) bool {
	for _, existing := range values {
		if existing == v {
			return true
		}
	}
	return false
}
