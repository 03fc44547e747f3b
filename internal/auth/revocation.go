package auth

import (
	"sync"
	"time"
)

// RevocationList remembers ended sessions until their credentials would have expired anyway.
type RevocationList struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewRevocationList creates an empty list.
func NewRevocationList(now func() time.Time) *RevocationList {
	if now == nil {
		now = time.Now
	}
	return &RevocationList{entries: make(map[string]time.Time), now: now}
}

// Revoke marks the token id as ended until the given instant.
func (l *RevocationList) Revoke(tokenID string, until time.Time) {
	if tokenID == "" || !l.now().Before(until) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[tokenID] = until
}

// IsRevoked reports whether the token id belongs to an ended session.
func (l *RevocationList) IsRevoked(tokenID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	until, ok := l.entries[tokenID]
	if !ok {
		return false
	}
	if !l.now().Before(until) {
		delete(l.entries, tokenID)
		return false
	}
	return true
}

// Purge drops entries whose credentials have expired and returns how many were removed.
func (l *RevocationList) Purge() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	removed := 0
	for id, until := range l.entries {
		if !now.Before(until) {
			delete(l.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked revocations.
func (l *RevocationList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
