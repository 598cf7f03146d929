package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/sasya-arogya/engine/pkg/models"
)

// MemoryStore keeps session state in process memory. The default backend for
// single-node deployments and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

// Load returns the stored state for the session id, or ErrNotFound.
func (s *MemoryStore) Load(_ context.Context, sessionID string) (*models.SessionState, error) {
	s.mu.RLock()
	raw, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Save serialises the state. Serialising through JSON keeps the memory
// backend behaviourally identical to the remote ones: transient fields are
// dropped and the caller's pointer is never shared.
func (s *MemoryStore) Save(_ context.Context, state *models.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[state.SessionID] = raw
	s.mu.Unlock()
	return nil
}

// Close is a no-op for the memory backend.
func (s *MemoryStore) Close() error { return nil }
