package countstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisCountPrefix    = "mentionmod/count/"
	redisDistinctPrefix = "mentionmod/distinct/"
)

// how long each bucket is kept after its last write; zero never expires
var redisBucketTTL = map[string]time.Duration{
	PeriodHour:  2 * time.Hour,
	PeriodDay:   48 * time.Hour,
	PeriodTotal: 0,
}

// KEYS[1] is the bucket checked against ARGV[1] (the limit). KEYS[2..n] are incremented, each with expiry ARGV[2..n] in seconds (0 for none).
var reserveScript = redis.NewScript(`
local c = tonumber(redis.call("GET", KEYS[1]) or "0")
if c >= tonumber(ARGV[1]) then
	return 0
end
for i = 2, #KEYS do
	redis.call("INCR", KEYS[i])
	local ttl = tonumber(ARGV[i])
	if ttl > 0 then
		redis.call("EXPIRE", KEYS[i], ttl)
	end
end
return 1
`)

// Counters in redis, shared by every bot process using the same database. Hour and day buckets expire on their own; totals never do.
type RedisCountStore struct {
	Client *redis.Client
}

var _ CountStore = (*RedisCountStore)(nil)

func NewRedisCountStore(ctx context.Context, rdb *redis.Client) (*RedisCountStore, error) {
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return &RedisCountStore{
		Client: rdb,
	}, nil
}

func (s *RedisCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	c, err := s.Client.Get(ctx, redisCountPrefix+periodBucket(name, val, period)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return c, err
}

func (s *RedisCountStore) Increment(ctx context.Context, name, val string) error {
	// all periods in a single round-trip
	multi := s.Client.Pipeline()
	for _, p := range allPeriods {
		key := redisCountPrefix + periodBucket(name, val, p)
		multi.Incr(ctx, key)
		if ttl := redisBucketTTL[p]; ttl > 0 {
			multi.Expire(ctx, key, ttl)
		}
	}
	_, err := multi.Exec(ctx)
	return err
}

// Check-and-increment runs server-side, so concurrent processes can not overshoot the limit.
func (s *RedisCountStore) Reserve(ctx context.Context, name, val, period string, limit int) (bool, error) {
	keys := []string{redisCountPrefix + periodBucket(name, val, period)}
	args := []any{limit}
	for _, p := range allPeriods {
		keys = append(keys, redisCountPrefix+periodBucket(name, val, p))
		args = append(args, int64(redisBucketTTL[p].Seconds()))
	}
	ok, err := reserveScript.Run(ctx, s.Client, keys, args...).Int()
	if err != nil {
		return false, err
	}
	return ok == 1, nil
}

func (s *RedisCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	c, err := s.Client.PFCount(ctx, redisDistinctPrefix+periodBucket(name, bucket, period)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return int(c), err
}

// Distinct counts are HyperLogLog estimates.
func (s *RedisCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	multi := s.Client.Pipeline()
	for _, p := range allPeriods {
		key := redisDistinctPrefix + periodBucket(name, bucket, p)
		multi.PFAdd(ctx, key, val)
		if ttl := redisBucketTTL[p]; ttl > 0 {
			multi.Expire(ctx, key, ttl)
		}
	}
	_, err := multi.Exec(ctx)
	return err
}
