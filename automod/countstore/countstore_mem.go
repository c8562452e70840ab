package countstore

import (
	"context"
	"sync"
)

// In-process counters. Nothing expires; intended for a single short-lived process or tests.
type MemCountStore struct {
	mu       sync.Mutex
	counts   map[string]int
	distinct map[string]map[string]struct{}
}

var _ CountStore = (*MemCountStore)(nil)

func NewMemCountStore() *MemCountStore {
	return &MemCountStore{
		counts:   make(map[string]int),
		distinct: make(map[string]map[string]struct{}),
	}
}

func (s *MemCountStore) GetCount(ctx context.Context, name, val, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[periodBucket(name, val, period)], nil
}

func (s *MemCountStore) Increment(ctx context.Context, name, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.increment(name, val)
	return nil
}

// caller holds the lock
func (s *MemCountStore) increment(name, val string) {
	for _, p := range allPeriods {
		s.counts[periodBucket(name, val, p)]++
	}
}

func (s *MemCountStore) Reserve(ctx context.Context, name, val, period string, limit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[periodBucket(name, val, period)] >= limit {
		return false, nil
	}
	s.increment(name, val)
	return true, nil
}

func (s *MemCountStore) GetCountDistinct(ctx context.Context, name, bucket, period string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.distinct[periodBucket(name, bucket, period)]), nil
}

func (s *MemCountStore) IncrementDistinct(ctx context.Context, name, bucket, val string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range allPeriods {
		k := periodBucket(name, bucket, p)
		set, ok := s.distinct[k]
		if !ok {
			set = make(map[string]struct{})
			s.distinct[k] = set
		}
		set[val] = struct{}{}
	}
	return nil
}
