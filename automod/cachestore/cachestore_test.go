package cachestore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCacheStore(t *testing.T, cs CacheStore) {
	assert := assert.New(t)
	ctx := context.Background()

	v, err := cs.Get(ctx, "seen-note", "9abc")
	assert.NoError(err)
	assert.Equal("", v)

	assert.NoError(cs.Set(ctx, "seen-note", "9abc", "spam"))
	v, err = cs.Get(ctx, "seen-note", "9abc")
	assert.NoError(err)
	assert.Equal("spam", v)

	// namespaces are separate
	v, err = cs.Get(ctx, "other", "9abc")
	assert.NoError(err)
	assert.Equal("", v)

	// claims lose against existing values
	ok, err := cs.Claim(ctx, "seen-note", "9abc", "in-progress", time.Minute)
	assert.NoError(err)
	assert.False(ok)

	assert.NoError(cs.Purge(ctx, "seen-note", "9abc"))
	v, err = cs.Get(ctx, "seen-note", "9abc")
	assert.NoError(err)
	assert.Equal("", v)

	ok, err = cs.Claim(ctx, "seen-note", "9abc", "in-progress", time.Minute)
	assert.NoError(err)
	assert.True(ok)
	v, err = cs.Get(ctx, "seen-note", "9abc")
	assert.NoError(err)
	assert.Equal("in-progress", v)
	ok, err = cs.Claim(ctx, "seen-note", "9abc", "in-progress", time.Minute)
	assert.NoError(err)
	assert.False(ok)

	// a claim can be overwritten with the final value
	assert.NoError(cs.Set(ctx, "seen-note", "9abc", "not-spam"))
	v, err = cs.Get(ctx, "seen-note", "9abc")
	assert.NoError(err)
	assert.Equal("not-spam", v)

	assert.NoError(cs.Purge(ctx, "seen-note", "9abc"))
	// purging a missing key is fine
	assert.NoError(cs.Purge(ctx, "seen-note", "never-set"))
}

func TestMemCacheStoreBasics(t *testing.T) {
	testCacheStore(t, NewMemCacheStore(100, time.Hour))
}

func TestMemCacheStoreExpiry(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(100, time.Hour)
	ok, err := cs.Claim(ctx, "seen-note", "a", "in-progress", 10*time.Millisecond)
	assert.NoError(err)
	assert.True(ok)
	assert.NoError(cs.Set(ctx, "seen-note", "b", "spam"))
	time.Sleep(50 * time.Millisecond)

	// the claim expired on its own deadline, the value did not
	v, err := cs.Get(ctx, "seen-note", "a")
	assert.NoError(err)
	assert.Equal("", v)
	v, err = cs.Get(ctx, "seen-note", "b")
	assert.NoError(err)
	assert.Equal("spam", v)

	// store TTL applies to everything
	cs = NewMemCacheStore(100, 10*time.Millisecond)
	assert.NoError(cs.Set(ctx, "seen-note", "a", "x"))
	time.Sleep(50 * time.Millisecond)
	v, err = cs.Get(ctx, "seen-note", "a")
	assert.NoError(err)
	assert.Equal("", v)
}

func TestMemCacheStoreClaimConcurrent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	cs := NewMemCacheStore(100, time.Hour)
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := cs.Claim(ctx, "seen-note", "9abc", "in-progress", time.Minute)
			assert.NoError(err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(1, winners)
}

func TestRedisCacheStoreBasics(t *testing.T) {
	t.Skip("live test, need redis running locally")

	opt, err := redis.ParseURL("redis://localhost:6379/0")
	require.NoError(t, err)
	cs, err := NewRedisCacheStore(context.Background(), redis.NewClient(opt), time.Hour)
	require.NoError(t, err)
	testCacheStore(t, cs)
}
