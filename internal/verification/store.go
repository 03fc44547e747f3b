package verification

import (
	"context"
	"time"
)

// Record is one issued, not yet consumed code.
type Record struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// Expired reports whether the record can no longer be accepted at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// AccountState is everything kept per account: the active code and the day's issuance count.
type AccountState struct {
	Active *Record `json:"active,omitempty"`
	// Day is the UTC date (YYYY-MM-DD) Issued refers to.
	Day    string `json:"day"`
	Issued int    `json:"issued"`
}

// RetainUntil is the instant after which the state carries no information.
func (s *AccountState) RetainUntil() time.Time {
	var until time.Time
	if s.Day != "" {
		if day, err := time.Parse(dayLayout, s.Day); err == nil {
			until = day.Add(24 * time.Hour)
		}
	}
	if s.Active != nil && s.Active.ExpiresAt.After(until) {
		until = s.Active.ExpiresAt
	}
	return until
}

// Store keeps per-account state. Update must run fn inside a per-account
// critical section and persist the state as fn left it, whether or not fn
// returned an error. Calls for different accounts must not block each other.
type Store interface {
	Update(ctx context.Context, accountID string, fn func(state *AccountState) error) error
	// Sweep visits every account; keep=false drops the account's state.
	Sweep(ctx context.Context, fn func(accountID string, state *AccountState) (keep bool)) (int, error)
}
