package session

import (
	"context"
	"sync"

	"loopline/internal/engine"
)

// Manager tracks at most one live session per card for surfaces that hold
// sessions across requests. Beginning a new session for a card cancels any
// abandoned one first.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Begin opens a session for the card, replacing an abandoned one.
func (m *Manager) Begin(ctx context.Context, e *engine.Engine, cardID, actorID string) (*Session, error) {
	m.mu.Lock()
	if old, ok := m.sessions[cardID]; ok {
		_, _ = old.Cancel()
		delete(m.sessions, cardID)
	}
	m.mu.Unlock()

	s, err := Begin(ctx, e, cardID, actorID)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[cardID] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the live session for a card, if any.
func (m *Manager) Get(cardID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[cardID]
	return s, ok
}

// Close drops the session for a card.
func (m *Manager) Close(cardID string) {
	m.mu.Lock()
	delete(m.sessions, cardID)
	m.mu.Unlock()
}
