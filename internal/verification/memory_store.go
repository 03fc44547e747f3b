package verification

import (
	"context"
	"sync"
)

type slot struct {
	mu    sync.Mutex
	state AccountState
	dead  bool
}

// MemoryStore keeps verification state in process memory, one lock per account.
type MemoryStore struct {
	slots sync.Map
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Update(_ context.Context, accountID string, fn func(state *AccountState) error) error {
	for {
		v, _ := s.slots.LoadOrStore(accountID, &slot{})
		sl := v.(*slot)
		sl.mu.Lock()
		if sl.dead {
			sl.mu.Unlock()
			continue
		}
		state := sl.state
		if state.Active != nil {
			active := *state.Active
			state.Active = &active
		}
		err := fn(&state)
		sl.state = state
		sl.mu.Unlock()
		return err
	}
}

func (s *MemoryStore) Sweep(_ context.Context, fn func(accountID string, state *AccountState) bool) (int, error) {
	dropped := 0
	s.slots.Range(func(key, value any) bool {
		sl := value.(*slot)
		sl.mu.Lock()
		defer sl.mu.Unlock()
		if sl.dead {
			return true
		}
		if !fn(key.(string), &sl.state) {
			sl.dead = true
			s.slots.Delete(key)
			dropped++
		}
		return true
	})
	return dropped, nil
}

// Len returns the number of accounts with state.
func (s *MemoryStore) Len() int {
	n := 0
	s.slots.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
