package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pinmap/internal/domain/user"
	"pinmap/internal/metrics"
)

// DefaultTTL bounds how long a token stays cached after its last write
const DefaultTTL = 10 * time.Minute

// Config contains configuration for the token cache
type Config struct {
	Prefix string
	TTL    time.Duration
}

// TokenCache keeps token to user lookups in Redis
type TokenCache struct {
	client *redis.Client
	config Config
}

// cachedUser is the stored form; the token itself is the key
type cachedUser struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Role  user.Role `json:"role"`
}

// Open connects to Redis at addr. An empty addr returns nil, nil.
func Open(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("error connecting to redis: %w", err)
	}
	return client, nil
}

// NewTokenCache creates a cache on top of client
func NewTokenCache(client *redis.Client, config Config) *TokenCache {
	if config.Prefix == "" {
		config.Prefix = "pinmap:token:"
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	return &TokenCache{
		client: client,
		config: config,
	}
}

func (c *TokenCache) key(token string) string {
	return c.config.Prefix + token
}

// Get returns the cached user for token, or nil on a miss
func (c *TokenCache) Get(ctx context.Context, token string) (*user.User, error) {
	raw, err := c.client.Get(ctx, c.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.TokenCacheTotal.WithLabelValues("miss").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.TokenCacheTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("error reading token cache: %w", err)
	}

	var cached cachedUser
	if err := json.Unmarshal(raw, &cached); err != nil {
		metrics.TokenCacheTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("error decoding cached user: %w", err)
	}

	metrics.TokenCacheTotal.WithLabelValues("hit").Inc()
	return &user.User{
		ID:        cached.ID,
		Email:     cached.Email,
		Name:      cached.Name,
		Role:      cached.Role,
		AuthToken: token,
	}, nil
}

// Set caches u under token
func (c *TokenCache) Set(ctx context.Context, token string, u *user.User) error {
	if u == nil {
		return nil
	}

	data, err := json.Marshal(cachedUser{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role})
	if err != nil {
		return fmt.Errorf("error encoding cached user: %w", err)
	}

	if err := c.client.Set(ctx, c.key(token), data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("error writing token cache: %w", err)
	}
	return nil
}

// Delete evicts token
func (c *TokenCache) Delete(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, c.key(token)).Err(); err != nil {
		return fmt.Errorf("error evicting token: %w", err)
	}
	return nil
}
