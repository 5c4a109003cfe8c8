// Package session keeps the operator's school API credentials server side,
// in place of the browser's persisted storage.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolconsole/internal/apiclient"
)

// ErrNotFound is returned for unknown or expired sessions. It matches
// apiclient.ErrNoCredentials so the client logs the operator out.
var ErrNotFound = fmt.Errorf("session not found: %w", apiclient.ErrNoCredentials)

// Credentials is what the browser used to keep under token and userInfo.
type Credentials struct {
	Token    string          `json:"token"`
	UserInfo json.RawMessage `json:"userInfo,omitempty"`
}

// Store persists credentials by console session id.
type Store interface {
	Save(ctx context.Context, id string, c Credentials) error
	Load(ctx context.Context, id string) (Credentials, error)
	Clear(ctx context.Context, id string) error
}

// RedisStore keeps each credential under its own key with a shared TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store. Keys look like <prefix><id>:token.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "console:session:"
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) tokenKey(id string) string    { return s.prefix + id + ":token" }
func (s *RedisStore) userInfoKey(id string) string { return s.prefix + id + ":userInfo" }

// Save writes both keys atomically.
func (s *RedisStore) Save(ctx context.Context, id string, c Credentials) error {
	if id == "" || c.Token == "" {
		return errors.New("session id and token required")
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.tokenKey(id), c.Token, s.ttl)
		if len(c.UserInfo) > 0 {
			p.Set(ctx, s.userInfoKey(id), []byte(c.UserInfo), s.ttl)
		} else {
			p.Del(ctx, s.userInfoKey(id))
		}
		return nil
	})
	return err
}

// Load reads the credentials.
func (s *RedisStore) Load(ctx context.Context, id string) (Credentials, error) {
	vals, err := s.client.MGet(ctx, s.tokenKey(id), s.userInfoKey(id)).Result()
	if err != nil {
		return Credentials{}, err
	}
	token, _ := vals[0].(string)
	if token == "" {
		return Credentials{}, ErrNotFound
	}
	c := Credentials{Token: token}
	if info, ok := vals[1].(string); ok && info != "" {
		c.UserInfo = json.RawMessage(info)
	}
	return c, nil
}

// Clear removes both keys.
func (s *RedisStore) Clear(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.tokenKey(id), s.userInfoKey(id)).Err()
}

// MemoryStore is a process-local Store for dev and tests.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[string]memItem
}

type memItem struct {
	creds   Credentials
	expires time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &MemoryStore{ttl: ttl, now: time.Now, items: make(map[string]memItem)}
}

func (s *MemoryStore) Save(_ context.Context, id string, c Credentials) error {
	if id == "" || c.Token == "" {
		return errors.New("session id and token required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = memItem{creds: c, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return Credentials{}, ErrNotFound
	}
	if s.now().After(it.expires) {
		delete(s.items, id)
		return Credentials{}, ErrNotFound
	}
	return it.creds, nil
}

func (s *MemoryStore) Clear(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}
