package visual

import (
	"context"
	"fmt"
	"sync"
)

// Extractor with canned per-URL output, for tests. Intentionally exported, for use in other packages.
type StaticExtractor struct {
	ExtractorName string
	// URL to extracted text. URLs not in the map fail.
	Texts map[string]string

	mu    sync.Mutex
	calls []string
}

var _ Extractor = (*StaticExtractor)(nil)

func (s *StaticExtractor) Name() string {
	return s.ExtractorName
}

func (s *StaticExtractor) Extract(ctx context.Context, imageURL string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, imageURL)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, ok := s.Texts[imageURL]
	if !ok {
		return "", fmt.Errorf("%s: extraction failed for %s", s.ExtractorName, imageURL)
	}
	return text, nil
}

func (s *StaticExtractor) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}
