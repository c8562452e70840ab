package cachestore

import (
	"context"
	"time"
)

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	// Sets the value only if the key is absent, expiring after ttl instead of the store default. Reports whether this call set it.
	Claim(ctx context.Context, name, key, val string, ttl time.Duration) (bool, error)
	Purge(ctx context.Context, name, key string) error
}
