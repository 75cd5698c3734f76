package transcript

import (
	"context"
	"sync"
)

// MemoryStore keeps transcripts in process memory. Good for tests and
// single-instance deployments; everything is gone on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
}

// NewMemoryStore returns an empty in-memory transcript store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Entry)}
}

// Append adds an utterance to a session's transcript.
func (s *MemoryStore) Append(ctx context.Context, sessionID, role, text string) error {
	entry, err := newEntry(sessionID, role, text)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = append(s.sessions[sessionID], entry)
	return nil
}

// List returns a session's transcript in spoken order. Callers get their
// own copy, so holding the slice across later appends is safe.
func (s *MemoryStore) List(ctx context.Context, sessionID string) ([]Entry, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.sessions[sessionID]))
	copy(out, s.sessions[sessionID])
	return out, nil
}
