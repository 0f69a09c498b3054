package loginstate

import (
	"context"
	"sync"
	"time"
)

type memStore struct {
	mu     sync.Mutex
	states map[string]time.Time // state -> expiry
	now    func() time.Time
}

// NewMemory returns the in-process store used when no Redis is configured.
// Expired states are dropped lazily on the next Put.
func NewMemory() Store {
	return &memStore{states: map[string]time.Time{}, now: time.Now}
}

func (m *memStore) Put(_ context.Context, state string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for s, exp := range m.states {
		if !now.Before(exp) {
			delete(m.states, s)
		}
	}
	m.states[state] = now.Add(ttl)
	return nil
}

func (m *memStore) Consume(_ context.Context, state string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.states[state]
	if !ok {
		return false, nil
	}
	delete(m.states, state)
	return m.now().Before(exp), nil
}
