package sessions

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a single-process Store
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	nowTime  func() time.Time
}

// MemoryStoreOption configures a MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithMemoryNowTime sets the clock (primarily for testing)
func WithMemoryNowTime(nowFunc func() time.Time) MemoryStoreOption {
	return func(m *MemoryStore) {
		m.nowTime = nowFunc
	}
}

func NewMemoryStore(options ...MemoryStoreOption) *MemoryStore {
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		nowTime:  time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Create(_ context.Context, timeout time.Duration) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := NewID()
	for _, exists := m.sessions[id]; exists; _, exists = m.sessions[id] {
		id = NewID()
	}
	s := newSession(id, timeout, m.nowTime())
	m.sessions[id] = s
	return s.Clone(), nil
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*Session, error) {
	return m.Update(ctx, id, func(*Session) error { return nil })
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, err := m.live(id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.LastAccessedAt = m.nowTime()
	m.sessions[id] = next
	return next.Clone(), nil
}

func (m *MemoryStore) Invalidate(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.live(id); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

// DeleteExpired drops idle sessions and returns how many were removed
func (m *MemoryStore) DeleteExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowTime()
	removed := 0
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// live must be called with mu held
func (m *MemoryStore) live(id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.Expired(m.nowTime()) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	return s, nil
}
