// Package idempotency remembers the reply of each mutation token so a
// replayed request gets the first answer instead of running twice.
package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"madrasah/internal/optimistic"
)

// ErrInFlight is returned when the same token is still being handled.
var ErrInFlight = optimistic.NewError(optimistic.KindConflict, "request with this token is still in progress")

const pending = "\x00pending"

// Store claims tokens and keeps their replies for a while.
type Store interface {
	// Begin claims key. It returns the saved reply when key already
	// finished, ErrInFlight when another request holds it, or nil and nil
	// when the caller now owns it.
	Begin(ctx context.Context, key string) ([]byte, error)
	// Finish saves the reply of a claimed key.
	Finish(ctx context.Context, key string, reply []byte) error
	// Release drops a claim without a reply.
	Release(ctx context.Context, key string) error
}

// RedisStore keeps claims in Redis with SET NX and a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "portal:idem:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Begin(ctx context.Context, key string) ([]byte, error) {
	k := s.prefix + key
	ok, err := s.client.SetNX(ctx, k, pending, s.ttl).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	val, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return s.Begin(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	if string(val) == pending {
		return nil, ErrInFlight
	}
	return val, nil
}

func (s *RedisStore) Finish(ctx context.Context, key string, reply []byte) error {
	return s.client.Set(ctx, s.prefix+key, reply, s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// MemoryStore keeps claims in process memory.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]entry
}

type entry struct {
	reply   []byte
	done    bool
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func (s *MemoryStore) Begin(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.sweep(now)
	if e, ok := s.entries[key]; ok {
		if !e.done {
			return nil, ErrInFlight
		}
		return e.reply, nil
	}
	s.entries[key] = entry{expires: now.Add(s.ttl)}
	return nil, nil
}

func (s *MemoryStore) Finish(_ context.Context, key string, reply []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{reply: append([]byte(nil), reply...), done: true, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}
