package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sasya-arogya/engine/pkg/models"
)

// sessionKeyPrefix namespaces session keys in a shared Redis.
const sessionKeyPrefix = "sasya:session:"

// RedisStore persists session state as JSON values in Redis. Suitable when
// several engine replicas share sessions.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the Redis at the given URL. A zero ttl keeps
// sessions until explicitly deleted.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), ttl: ttl}, nil
}

// Load returns the stored state for the session id, or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, sessionID string) (*models.SessionState, error) {
	raw, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis load failed: %w", err)
	}

	var state models.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("corrupt session state for %s: %w", sessionID, err)
	}
	return &state, nil
}

// Save writes the state under the session key.
func (s *RedisStore) Save(ctx context.Context, state *models.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+state.SessionID, raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis save failed: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
