package flagstore

import (
	"context"
	"errors"
	"sort"

	"github.com/redis/go-redis/v9"
)

const (
	redisFlagPrefix = "mentionmod/flags/"
	// set of keys which currently have flags
	redisFlaggedIndex = "mentionmod/flagged"
)

// Flags stored as redis sets, one set per key, plus an index set of flagged keys.
type RedisFlagStore struct {
	Client *redis.Client
}

var _ FlagStore = (*RedisFlagStore)(nil)

// Removes the flags, and drops the key from the index if its set ended up empty. KEYS[1] is the flag set, KEYS[2] the index, ARGV[1] the key, ARGV[2..n] the flags.
var removeScript = redis.NewScript(`
for i = 2, #ARGV do
	redis.call("SREM", KEYS[1], ARGV[i])
end
if redis.call("SCARD", KEYS[1]) == 0 then
	redis.call("SREM", KEYS[2], ARGV[1])
end
return 0
`)

func NewRedisFlagStore(ctx context.Context, rdb *redis.Client) (*RedisFlagStore, error) {
	// check redis connection
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, err
	}
	return &RedisFlagStore{
		Client: rdb,
	}, nil
}

func (s *RedisFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	l, err := s.Client.SMembers(ctx, redisFlagPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	} else if err != nil {
		return nil, err
	}
	sort.Strings(l)
	return l, nil
}

func (s *RedisFlagStore) Add(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	l := make([]any, len(flags))
	for i, v := range flags {
		l[i] = v
	}
	_, err := s.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, redisFlagPrefix+key, l...)
		pipe.SAdd(ctx, redisFlaggedIndex, key)
		return nil
	})
	return err
}

// does not error if flags not in set
func (s *RedisFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	args := make([]any, 0, len(flags)+1)
	args = append(args, key)
	for _, f := range flags {
		args = append(args, f)
	}
	return removeScript.Run(ctx, s.Client, []string{redisFlagPrefix + key, redisFlaggedIndex}, args...).Err()
}

func (s *RedisFlagStore) List(ctx context.Context) ([]string, error) {
	l, err := s.Client.SMembers(ctx, redisFlaggedIndex).Result()
	if errors.Is(err, redis.Nil) {
		return []string{}, nil
	} else if err != nil {
		return nil, err
	}
	sort.Strings(l)
	return l, nil
}
