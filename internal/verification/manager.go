package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	dayLayout  = "2006-01-02"
	codeDigits = 6
)

var codeSpace = big.NewInt(1_000_000)

var (
	ErrNotFound         = errors.New("no active verification code")
	ErrExpired          = errors.New("verification code expired")
	ErrMismatch         = errors.New("verification code mismatch")
	ErrDailyCapExceeded = errors.New("daily verification code cap reached")
)

// Settings tunes issuance and acceptance.
type Settings struct {
	TTL      time.Duration
	DailyCap int
	// MaxAttempts purges the active code after this many mismatches; zero disables the limit.
	MaxAttempts int
}

// DefaultSettings issues 10 minute codes, 5 per account per UTC day.
func DefaultSettings() Settings {
	return Settings{TTL: 10 * time.Minute, DailyCap: 5, MaxAttempts: 5}
}

// Manager issues and validates one-time second-factor codes.
type Manager struct {
	store    Store
	settings Settings
	now      func() time.Time
	random   io.Reader
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRandom overrides the entropy source for code generation.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.random = r }
}

// NewManager builds a manager over store.
func NewManager(store Store, settings Settings, opts ...Option) *Manager {
	defaults := DefaultSettings()
	if settings.TTL <= 0 {
		settings.TTL = defaults.TTL
	}
	if settings.DailyCap <= 0 {
		settings.DailyCap = defaults.DailyCap
	}
	m := &Manager{store: store, settings: settings, now: time.Now, random: rand.Reader}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a fresh code for the account, replacing any active one.
func (m *Manager) Issue(ctx context.Context, accountID string) (Record, error) {
	var issued Record
	err := m.store.Update(ctx, accountID, func(state *AccountState) error {
		now := m.now()
		today := now.UTC().Format(dayLayout)
		if state.Day != today {
			state.Day = today
			state.Issued = 0
		}
		if state.Active != nil && state.Active.Expired(now) {
			state.Active = nil
		}
		if state.Issued >= m.settings.DailyCap {
			return ErrDailyCapExceeded
		}

		code, err := m.generateCode()
		if err != nil {
			return fmt.Errorf("generate verification code: %w", err)
		}
		issued = Record{
			ID:        uuid.NewString(),
			Code:      code,
			CreatedAt: now,
			ExpiresAt: now.Add(m.settings.TTL),
		}
		active := issued
		state.Active = &active
		state.Issued++
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return issued, nil
}

// Validate consumes the account's active code when submitted matches it.
func (m *Manager) Validate(ctx context.Context, accountID, submitted string) error {
	return m.store.Update(ctx, accountID, func(state *AccountState) error {
		rec := state.Active
		if rec == nil {
			return ErrNotFound
		}
		if rec.Expired(m.now()) {
			state.Active = nil
			return ErrExpired
		}
		if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(submitted)) != 1 {
			rec.Attempts++
			if m.settings.MaxAttempts > 0 && rec.Attempts >= m.settings.MaxAttempts {
				state.Active = nil
			}
			return ErrMismatch
		}
		state.Active = nil
		return nil
	})
}

// Sweep purges expired codes and forgets accounts with nothing left to track.
// It returns the number of expired codes removed.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	today := now.UTC().Format(dayLayout)
	purged := 0
	_, err := m.store.Sweep(ctx, func(_ string, state *AccountState) bool {
		if state.Active != nil && state.Active.Expired(now) {
			state.Active = nil
			purged++
		}
		return state.Active != nil || state.Day == today
	})
	return purged, err
}

// Settings returns the effective settings.
func (m *Manager) Settings() Settings {
	return m.settings
}

func (m *Manager) generateCode() (string, error) {
	n, err := rand.Int(m.random, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
