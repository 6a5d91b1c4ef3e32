package repository

import (
	"context"
	"sync"

	"router-agent/internal/domain"
)

// MemoryStore keeps sessions in process memory. Used by tests and by the
// console when no database is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.ConversationState
}

func NewMemory() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.ConversationState)}
}

func (m *MemoryStore) Save(_ context.Context, sessionID string, state domain.ConversationState) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = state.Clone()
	return nil
}

func (m *MemoryStore) Load(_ context.Context, sessionID string) (domain.ConversationState, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return domain.ConversationState{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[sessionID]
	if !ok {
		return domain.ConversationState{}, false, nil
	}
	return state.Clone(), true, nil
}

func (m *MemoryStore) Clear(_ context.Context, sessionID string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

func (m *MemoryStore) Stats(_ context.Context, sessionID string) (domain.SessionStats, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return domain.SessionStats{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[sessionID]
	if !ok {
		return domain.SessionStats{}, false, nil
	}
	return state.Stats(), true, nil
}

func (m *MemoryStore) Close() error { return nil }
