package cachestore

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memEntry struct {
	val string
	// earlier than the LRU expiry for claims
	expires time.Time
}

// Bounded in-process cache. The LRU enforces the default TTL and capacity; claims carry their own shorter deadline.
type MemCacheStore struct {
	mu   sync.Mutex
	data *expirable.LRU[string, memEntry]
	ttl  time.Duration
}

var _ CacheStore = (*MemCacheStore)(nil)

func NewMemCacheStore(capacity int, ttl time.Duration) *MemCacheStore {
	return &MemCacheStore{
		data: expirable.NewLRU[string, memEntry](capacity, nil, ttl),
		ttl:  ttl,
	}
}

func memCacheKey(name, key string) string {
	return name + "/" + key
}

// caller holds the lock
func (s *MemCacheStore) get(k string) (string, bool) {
	e, ok := s.data.Get(k)
	if !ok {
		return "", false
	}
	if time.Now().After(e.expires) {
		s.data.Remove(k)
		return "", false
	}
	return e.val, true
}

func (s *MemCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.get(memCacheKey(name, key))
	return v, nil
}

func (s *MemCacheStore) Set(ctx context.Context, name, key string, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Add(memCacheKey(name, key), memEntry{val: val, expires: time.Now().Add(s.ttl)})
	return nil
}

func (s *MemCacheStore) Claim(ctx context.Context, name, key, val string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memCacheKey(name, key)
	if _, ok := s.get(k); ok {
		return false, nil
	}
	if ttl <= 0 || ttl > s.ttl {
		ttl = s.ttl
	}
	s.data.Add(k, memEntry{val: val, expires: time.Now().Add(ttl)})
	return true, nil
}

func (s *MemCacheStore) Purge(ctx context.Context, name, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Remove(memCacheKey(name, key))
	return nil
}
