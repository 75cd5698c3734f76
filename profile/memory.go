package profile

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory caller directory. It is thread-safe and suits
// tests and deployments with a static roster loaded from configuration. For
// shared deployments, wrap any Store in a CachedStore.
type MemoryStore struct {
	mu        sync.RWMutex
	byPhone   map[string]*CallerProfile
	summaries map[string][]CallSummary
}

// NewMemoryStore creates an empty in-memory directory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPhone:   make(map[string]*CallerProfile),
		summaries: make(map[string][]CallSummary),
	}
}

// Add registers a profile under its normalized phone number. Re-adding a
// number replaces the previous profile.
func (s *MemoryStore) Add(p *CallerProfile) error {
	if p == nil || p.ID == "" {
		return ErrInvalidProfile
	}
	phone := NormalizePhone(p.Phone)
	if phone == "" {
		return ErrInvalidPhone
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyProfile(p)
	stored.Phone = phone
	s.byPhone[phone] = stored
	return nil
}

// LookupByPhone finds the profile registered for a phone number.
// Returns a copy so callers cannot mutate the roster.
func (s *MemoryStore) LookupByPhone(_ context.Context, phone string) (*CallerProfile, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byPhone[normalized]
	if !ok {
		return nil, ErrNotFound
	}
	return copyProfile(p), nil
}

// RecordSummary appends a post-call summary to the profile's history.
func (s *MemoryStore) RecordSummary(_ context.Context, profileID string, summary CallSummary) error {
	if profileID == "" {
		return ErrInvalidProfile
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summaries[profileID] = append(s.summaries[profileID], summary)
	return nil
}

// RecentSummaries returns up to n summaries for a profile, newest first.
func (s *MemoryStore) RecentSummaries(_ context.Context, profileID string, n int) ([]CallSummary, error) {
	if profileID == "" {
		return nil, ErrInvalidProfile
	}
	if n <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.summaries[profileID]
	if len(history) == 0 {
		return nil, nil
	}

	if n > len(history) {
		n = len(history)
	}
	recent := make([]CallSummary, 0, n)
	for i := len(history) - 1; i >= len(history)-n; i-- {
		recent = append(recent, history[i])
	}
	return recent, nil
}

// copyProfile returns a deep copy so stored and returned profiles never
// share slices.
func copyProfile(p *CallerProfile) *CallerProfile {
	c := *p
	c.Conditions = append([]string(nil), p.Conditions...)
	c.Medications = append([]string(nil), p.Medications...)
	return &c
}
