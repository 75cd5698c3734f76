package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultTTL is how long a transcript outlives its last append.
const defaultTTL = 24 * time.Hour

// RedisStore keeps each session's transcript in a Redis list of JSON
// entries: appends are O(1) RPUSHes and the whole transcript reads back
// with one LRANGE. Use it whenever more than one bridge instance, or the
// assessment worker, needs to see the same transcripts.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets how long transcripts are retained. The clock restarts on
// every append, so it effectively counts from the end of the call. Zero
// disables expiry. Default is 24 hours.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix namespaces the Redis keys, for sharing an instance between
// environments. Default is "carebridge".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// NewRedisStore returns a transcript store on client. The client stays
// owned by the caller, who closes it on shutdown.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, ttl: defaultTTL, prefix: "carebridge"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append adds an utterance to a session's transcript. The RPUSH and the
// TTL refresh travel in one pipelined round-trip.
func (s *RedisStore) Append(ctx context.Context, sessionID, role, text string) error {
	entry, err := newEntry(sessionID, role, text)
	if err != nil {
		return err
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	key := s.key(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	return nil
}

// List returns a session's transcript in spoken order. A session nobody
// spoke in yields an empty slice; LRANGE treats a missing key as an
// empty list.
func (s *RedisStore) List(ctx context.Context, sessionID string) ([]Entry, error) {
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	vals, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}

	entries := make([]Entry, 0, len(vals))
	for _, v := range vals {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("unmarshal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) key(sessionID string) string {
	return s.prefix + ":transcript:" + sessionID
}
