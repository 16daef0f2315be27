// Package rediskv is the Redis key-value layer shared by the cart cache, the merge
// receipts and the browser store. Keys live under a fixed prefix and values expire
// after a base TTL plus optional random jitter, so entries written together do not
// all expire at once.
package rediskv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrCorrupt  = errors.New("stored value does not decode")
)

type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	jitter time.Duration
}

// New returns a store writing keys as "<prefix>:<key>". A zero ttl stores values
// without expiry.
func New(client *redis.Client, prefix string, ttl, jitter time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl, jitter: jitter}
}

// Key returns the full Redis key for key.
func (s *Store) Key(key string) string {
	return s.prefix + ":" + key
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.Key(key), value, s.expiry()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// SetNX writes value only when key is absent and reports whether it did.
func (s *Store) SetNX(ctx context.Context, key string, value []byte) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.Key(key), value, s.expiry()).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

// Delete removes key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.Key(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// GetJSON decodes the value at key into v. A value that does not decode yields
// an error wrapping ErrCorrupt.
func (s *Store) GetJSON(ctx context.Context, key string, v any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w: %w", s.Key(key), ErrCorrupt, err)
	}
	return nil
}

func (s *Store) SetJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", s.Key(key), err)
	}
	return s.Set(ctx, key, data)
}

func (s *Store) SetJSONNX(ctx context.Context, key string, v any) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal %s failed: %w", s.Key(key), err)
	}
	return s.SetNX(ctx, key, data)
}

func (s *Store) expiry() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	if s.jitter <= 0 {
		return s.ttl
	}
	return s.ttl + rand.N(s.jitter)
}
