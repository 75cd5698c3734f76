package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache timing defaults. The cache exists so a call that arrives seconds
// after dialing finds its context already loaded; entries need not outlive
// the call window by much.
const (
	defaultCacheTTL  = 15 * time.Minute
	defaultLockTTL   = 5 * time.Second
	defaultLockRetry = 50 * time.Millisecond
)

// releaseScript deletes a lock key only when it still holds our token, so a
// lock that expired and was re-acquired by another session is never released
// out from under it.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// CachedStore decorates a Store with a Redis get-through cache. Lookups for
// a phone number are guarded by a per-number lock: when two calls to the
// same number arrive together, the second waits for the first load instead
// of racing it, and neither can consume the other's in-flight context.
type CachedStore struct {
	inner     Store
	client    *redis.Client
	ttl       time.Duration
	lockTTL   time.Duration
	lockRetry time.Duration
	prefix    string
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

// WithCacheTTL sets the time-to-live for cached profiles.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(s *CachedStore) {
		s.ttl = ttl
	}
}

// WithLockTTL sets how long a load may hold the per-number lock before it
// expires. It bounds the wait of a second concurrent call when the first
// loader dies mid-load.
func WithLockTTL(ttl time.Duration) CacheOption {
	return func(s *CachedStore) {
		s.lockTTL = ttl
	}
}

// WithCachePrefix sets the key prefix for Redis keys. Default is "carebridge".
func WithCachePrefix(prefix string) CacheOption {
	return func(s *CachedStore) {
		s.prefix = prefix
	}
}

// NewCachedStore wraps a directory with a Redis context cache.
//
// Example:
//
//	store := NewCachedStore(directory,
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithCacheTTL(15*time.Minute),
//	)
func NewCachedStore(inner Store, client *redis.Client, opts ...CacheOption) *CachedStore {
	store := &CachedStore{
		inner:     inner,
		client:    client,
		ttl:       defaultCacheTTL,
		lockTTL:   defaultLockTTL,
		lockRetry: defaultLockRetry,
		prefix:    "carebridge",
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// LookupByPhone returns a cached profile when present, otherwise loads from
// the inner directory under the per-number lock and populates the cache.
func (s *CachedStore) LookupByPhone(ctx context.Context, phone string) (*CallerProfile, error) {
	normalized := NormalizePhone(phone)
	if normalized == "" {
		return nil, ErrInvalidPhone
	}

	if p, ok, err := s.cachedProfile(ctx, normalized); err != nil {
		return nil, err
	} else if ok {
		return p, nil
	}

	return s.loadLocked(ctx, normalized)
}

// loadLocked acquires the per-number lock and loads through to the inner
// store. Callers that lose the race wait for the winner's result to appear
// in the cache.
func (s *CachedStore) loadLocked(ctx context.Context, phone string) (*CallerProfile, error) {
	lockKey := s.lockKey(phone)
	token := uuid.NewString()

	for {
		acquired, err := s.client.SetNX(ctx, lockKey, token, s.lockTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock failed: %w", err)
		}

		if acquired {
			defer releaseScript.Run(ctx, s.client, []string{lockKey}, token)

			// A competing load may have populated the cache between
			// our miss and the lock grant.
			if p, ok, err := s.cachedProfile(ctx, phone); err != nil {
				return nil, err
			} else if ok {
				return p, nil
			}

			return s.loadAndPopulate(ctx, phone)
		}

		// Another session is loading this number. Wait for its result.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.lockRetry):
		}

		if p, ok, err := s.cachedProfile(ctx, phone); err != nil {
			return nil, err
		} else if ok {
			return p, nil
		}
	}
}

// loadAndPopulate performs the inner lookup and writes the result into the
// cache. Must be called holding the lock.
func (s *CachedStore) loadAndPopulate(ctx context.Context, phone string) (*CallerProfile, error) {
	p, err := s.inner.LookupByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := s.client.Set(ctx, s.profileKey(phone), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("redis set failed: %w", err)
	}

	return p, nil
}

// cachedProfile reads the cache. The boolean reports a hit.
func (s *CachedStore) cachedProfile(ctx context.Context, phone string) (*CallerProfile, bool, error) {
	data, err := s.client.Get(ctx, s.profileKey(phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var p CallerProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &p, true, nil
}

// RecordSummary writes through to the inner directory. Summaries are not
// cached; the next call reads them fresh.
func (s *CachedStore) RecordSummary(ctx context.Context, profileID string, summary CallSummary) error {
	return s.inner.RecordSummary(ctx, profileID, summary)
}

// RecentSummaries delegates to the inner directory.
func (s *CachedStore) RecentSummaries(ctx context.Context, profileID string, n int) ([]CallSummary, error) {
	return s.inner.RecentSummaries(ctx, profileID, n)
}

// profileKey generates the Redis key for a cached profile.
func (s *CachedStore) profileKey(phone string) string {
	return fmt.Sprintf("%s:profile:%s", s.prefix, phone)
}

// lockKey generates the Redis key for a number's load lock.
func (s *CachedStore) lockKey(phone string) string {
	return fmt.Sprintf("%s:profile:%s:lock", s.prefix, phone)
}
