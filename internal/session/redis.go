package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultSessionTTL bounds how long an idle conversation survives in Redis.
const DefaultSessionTTL = 24 * time.Hour

// redisStore persists conversations as JSON values in Redis, enabling shared
// deployments where any node can resume a scope's conversation.
type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed Store. Keys are rooted under prefix.
func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{
		client: client,
		prefix: prefix,
		ttl:    DefaultSessionTTL,
	}
}

func (s *redisStore) key(scope string) string {
	return path.Join(s.prefix, "sessions", scope)
}

func (s *redisStore) Get(ctx context.Context, key string) (*Conversation, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, fmt.Errorf("session get %s: %w", key, err)
	}

	var conv Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("session decode %s: %w", key, err)
	}

	return &conv, nil
}

func (s *redisStore) Put(ctx context.Context, conv *Conversation) error {
	conv.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("session encode %s: %w", conv.Key, err)
	}

	if err := s.client.Set(ctx, s.key(conv.Key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("session put %s: %w", conv.Key, err)
	}

	return nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("session delete %s: %w", key, err)
	}

	return nil
}
