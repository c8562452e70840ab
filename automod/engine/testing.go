package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mentionmod/mentionmod/automod/cachestore"
	"github.com/mentionmod/mentionmod/automod/consensus"
	"github.com/mentionmod/mentionmod/automod/countstore"
	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/automod/evidence"
	"github.com/mentionmod/mentionmod/automod/flagstore"
	"github.com/mentionmod/mentionmod/automod/judge"
	"github.com/mentionmod/mentionmod/automod/llm"
	"github.com/mentionmod/mentionmod/automod/visual"
)

// In-memory API which records moderation calls. Intentionally exported, for use in other packages.
type FakeAPI struct {
	mu       sync.Mutex
	Profiles map[string]*event.AuthorProfile
	Mentions []event.Mention
	// if set, returned by the respective calls
	ProfileErr error
	DeleteErr  error
	SuspendErr error

	ProfileCalls []string
	Deletes      []string
	Suspends     []string
}

var _ API = (*FakeAPI)(nil)

func NewFakeAPI() *FakeAPI {
	return &FakeAPI{
		Profiles: make(map[string]*event.AuthorProfile),
	}
}

func (f *FakeAPI) UserDetail(ctx context.Context, userID string) (*event.AuthorProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ProfileCalls = append(f.ProfileCalls, userID)
	if f.ProfileErr != nil {
		return nil, f.ProfileErr
	}
	p, ok := f.Profiles[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %s", userID)
	}
	cp := *p
	return &cp, nil
}

func (f *FakeAPI) RecentMentions(ctx context.Context, limit int) ([]event.Mention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if limit > len(f.Mentions) {
		limit = len(f.Mentions)
	}
	out := make([]event.Mention, limit)
	copy(out, f.Mentions[:limit])
	return out, nil
}

func (f *FakeAPI) GetMention(ctx context.Context, noteID string) (*event.Mention, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.Mentions {
		if m.NoteID == noteID {
			cp := m
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("note not found: %s", noteID)
}

func (f *FakeAPI) DeleteNote(ctx context.Context, noteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deletes = append(f.Deletes, noteID)
	return f.DeleteErr
}

func (f *FakeAPI) SuspendUser(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Suspends = append(f.Suspends, userID)
	return f.SuspendErr
}

func (f *FakeAPI) Calls() (profiles, deletes, suspends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ProfileCalls), len(f.Deletes), len(f.Suspends)
}

var TestBot = event.BotIdentity{ID: "bot0", Username: "modbot", Name: "Mod Bot", Host: "example.social"}

// Builds an engine around the given API, with one judge per scripted backend (in order) and in-memory stores.
func EngineTestFixture(api *FakeAPI, backends []*llm.ScriptedBackend, extractors ...visual.Extractor) *Engine {
	logger := slog.Default()
	judges := make([]consensus.Evaluator, len(backends))
	for i, be := range backends {
		judges[i] = judge.New(be, judge.BinaryCategories, logger)
	}
	flags := flagstore.NewMemFlagStore()
	counters := countstore.NewMemCountStore()
	return &Engine{
		Logger:        logger,
		API:           api,
		Bot:           TestBot,
		Collector:     evidence.NewCollector(api, extractors, TestBot, logger),
		Consensus:     consensus.NewCoordinator(judges, logger),
		Actuator:      NewActuator(api, counters, flags, true, logger),
		Cache:         cachestore.NewMemCacheStore(100, time.Hour),
		Flags:         flags,
		MaxConcurrent: 2,
	}
}
