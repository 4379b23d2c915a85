package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dexmail/dexmail-go/core"
	"github.com/dexmail/dexmail-go/ports"
	"github.com/redis/go-redis/v9"
)

const (
	tokenSlot   = "dexmail:auth:token"
	profileSlot = "dexmail:auth:user"
)

// RedisStore is a Redis-backed SessionStore. It keeps the token and
// the profile snapshot in two named slots that are written and
// deleted together in one pipeline, never partially.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis session store.
func NewRedisStore(client *redis.Client) ports.SessionStore {
	return &RedisStore{client: client}
}

type profileSnapshot struct {
	User     core.Identity `json:"user"`
	AuthType core.AuthType `json:"authType"`
	IssuedAt int64         `json:"issuedAt"`
}

// Save writes both slots atomically.
func (s *RedisStore) Save(ctx context.Context, session core.Session) error {
	snap, err := json.Marshal(profileSnapshot{
		User:     session.Identity,
		AuthType: session.AuthType,
		IssuedAt: session.IssuedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal profile snapshot: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, tokenSlot, session.Token, 0)
		pipe.Set(ctx, profileSlot, snap, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Load reads both slots. A missing or unreadable slot clears the
// other and reports no session, so a partial write never resurfaces
// as a half-restored login.
func (s *RedisStore) Load(ctx context.Context) (core.Session, error) {
	token, err := s.client.Get(ctx, tokenSlot).Result()
	if err == redis.Nil {
		_ = s.Clear(ctx)
		return core.Session{}, core.ErrNoSession
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("load session token: %w", err)
	}
	raw, err := s.client.Get(ctx, profileSlot).Bytes()
	if err == redis.Nil {
		_ = s.Clear(ctx)
		return core.Session{}, core.ErrNoSession
	}
	if err != nil {
		return core.Session{}, fmt.Errorf("load profile snapshot: %w", err)
	}
	var snap profileSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		_ = s.Clear(ctx)
		return core.Session{}, core.ErrNoSession
	}
	return core.Session{
		Identity: snap.User,
		AuthType: snap.AuthType,
		Token:    token,
		IssuedAt: unixTime(snap.IssuedAt),
	}, nil
}

// Clear deletes both slots together.
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, tokenSlot, profileSlot).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
