package llm

import (
	"context"
	"fmt"
	"sync"
)

// Backend with canned responses, for tests. Intentionally exported, for use in other packages.
//
// Free-text requests get Reasoning. JSON requests consume Decisions in order; once exhausted, the last decision repeats.
type ScriptedBackend struct {
	ModelName string
	Reasoning string
	Decisions []string
	// if set, every request fails with this error
	Err error

	mu       sync.Mutex
	requests []Request
	decided  int
}

var _ Backend = (*ScriptedBackend)(nil)

func (s *ScriptedBackend) Name() string {
	if s.ModelName == "" {
		return "scripted:test"
	}
	return s.ModelName
}

func (s *ScriptedBackend) Complete(ctx context.Context, req Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.Err != nil {
		return "", s.Err
	}
	if !req.JSON {
		if s.Reasoning == "" {
			return "The message looks like an unsolicited advertisement.", nil
		}
		return s.Reasoning, nil
	}
	if len(s.Decisions) == 0 {
		return "", fmt.Errorf("scripted backend has no decisions")
	}
	idx := s.decided
	if idx >= len(s.Decisions) {
		idx = len(s.Decisions) - 1
	}
	s.decided++
	return s.Decisions[idx], nil
}

// All requests received so far, in order.
func (s *ScriptedBackend) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Number of JSON (decision) requests received so far.
func (s *ScriptedBackend) DecisionCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decided
}
