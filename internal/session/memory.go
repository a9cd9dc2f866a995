package session

import (
	"context"
	"sync"
	"time"

	"warungpos/internal/domain"
)

// MemoryStore is the session store for tests and redis-less dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.CustomerSession
	timeout  time.Duration
	now      func() time.Time
}

func NewMemoryStore(timeout time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]domain.CustomerSession),
		timeout:  timeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's clock, for expiry tests.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) Get(_ context.Context, phone string) (*domain.CustomerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, exists := m.sessions[phone]
	if !exists {
		return nil, nil
	}
	if Expired(&sess, m.timeout, m.now()) {
		delete(m.sessions, phone)
		return nil, nil
	}
	copySess := sess
	return &copySess, nil
}

func (m *MemoryStore) Save(_ context.Context, sess *domain.CustomerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.Phone] = *sess
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, phone)
	return nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]domain.CustomerSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.now()
	sessions := make([]domain.CustomerSession, 0, len(m.sessions))
	for _, sess := range m.sessions {
		if Expired(&sess, m.timeout, now) {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (m *MemoryStore) ClearExpired(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for phone, sess := range m.sessions {
		if Expired(&sess, m.timeout, now) {
			delete(m.sessions, phone)
			removed++
		}
	}
	return removed, nil
}
