package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Adeebahmed333/Cloud-Enterprise-ERP-System-Microservices-Architecture/services/identity/internal/domain"
)

const keyPrefix = "session:"

// SessionCache implements repository.SessionCache using Redis.
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache creates a new Redis-backed session cache.
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

// Key returns the Redis key holding a principal's session snapshot.
func Key(principalID string) string {
	return keyPrefix + principalID
}

// Put stores the snapshot for ttl.
func (c *SessionCache) Put(ctx context.Context, s domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := c.client.Set(ctx, Key(s.PrincipalID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}

	return nil
}

// Get returns the cached snapshot or domain.ErrSessionMiss.
func (c *SessionCache) Get(ctx context.Context, principalID string) (*domain.Session, error) {
	data, err := c.client.Get(ctx, Key(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionMiss
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &s, nil
}

// Invalidate removes the snapshot. Removing a missing key is not an error.
func (c *SessionCache) Invalidate(ctx context.Context, principalID string) error {
	if err := c.client.Del(ctx, Key(principalID)).Err(); err != nil {
		return fmt.Errorf("redis del session: %w", err)
	}

	return nil
}
