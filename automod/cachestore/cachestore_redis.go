package cachestore

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Values are shared through redis, with a small per-process TinyLFU in front for hot keys.
type RedisCacheStore struct {
	Client *redis.Client
	Data   *cache.Cache
	TTL    time.Duration
}

var _ CacheStore = (*RedisCacheStore)(nil)

func NewRedisCacheStore(ctx context.Context, rdb *redis.Client, ttl time.Duration) (*RedisCacheStore, error) {
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	data := cache.New(&cache.Options{
		Redis: rdb,
		// short local TTL so claims released by another process are noticed quickly
		LocalCache: cache.NewTinyLFU(10_000, time.Minute),
	})
	return &RedisCacheStore{
		Client: rdb,
		Data:   data,
		TTL:    ttl,
	}, nil
}

func redisCacheKey(name, key string) string {
	return "mentionmod/cache/" + name + "/" + key
}

func (s *RedisCacheStore) Get(ctx context.Context, name, key string) (string, error) {
	var val string
	err := s.Data.Get(ctx, redisCacheKey(name, key), &val)
	if errors.Is(err, cache.ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisCacheStore) Set(ctx context.Context, name, key string, val string) error {
	return s.Data.Set(&cache.Item{
		Ctx:   ctx,
		Key:   redisCacheKey(name, key),
		Value: val,
		TTL:   s.TTL,
	})
}

// Claims go straight to redis (SET NX), skipping the local cache, so exactly one process wins.
//
// The stored value is encoded the same way the cache encodes it, so a later Get sees the claim.
func (s *RedisCacheStore) Claim(ctx context.Context, name, key, val string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = s.TTL
	}
	b, err := s.Data.Marshal(val)
	if err != nil {
		return false, err
	}
	return s.Client.SetNX(ctx, redisCacheKey(name, key), b, ttl).Result()
}

func (s *RedisCacheStore) Purge(ctx context.Context, name, key string) error {
	err := s.Data.Delete(ctx, redisCacheKey(name, key))
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil
	}
	return err
}
