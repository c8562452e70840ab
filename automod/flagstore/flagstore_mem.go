package flagstore

import (
	"context"
	"sort"
	"sync"
)

type MemFlagStore struct {
	mu   sync.Mutex
	data map[string]map[string]struct{}
}

var _ FlagStore = (*MemFlagStore)(nil)

func NewMemFlagStore() *MemFlagStore {
	return &MemFlagStore{
		data: make(map[string]map[string]struct{}),
	}
}

func (s *MemFlagStore) Get(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for f := range s.data[key] {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemFlagStore) Add(ctx context.Context, key string, flags []string) error {
	if len(flags) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.data[key]
	if !ok {
		set = make(map[string]struct{}, len(flags))
		s.data[key] = set
	}
	for _, f := range flags {
		set[f] = struct{}{}
	}
	return nil
}

// does not error if flags not in set
func (s *MemFlagStore) Remove(ctx context.Context, key string, flags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.data[key]
	if !ok {
		return nil
	}
	for _, f := range flags {
		delete(set, f)
	}
	if len(set) == 0 {
		delete(s.data, key)
	}
	return nil
}

func (s *MemFlagStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}
