package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/mentionmod/mentionmod/automod/consensus"
	"github.com/mentionmod/mentionmod/automod/event"
	"github.com/mentionmod/mentionmod/automod/flagstore"
	"github.com/mentionmod/mentionmod/automod/llm"
	"github.com/mentionmod/mentionmod/automod/visual"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	spamJSON    = `{"reasoning": "discord invite spam from a fresh account", "result": "spam"}`
	notSpamJSON = `{"reasoning": "looks like a normal reply", "result": "not-spam"}`
)

func spamMention(noteID string) event.Mention {
	return event.Mention{
		NoteID:         noteID,
		AuthorID:       "spammer1",
		AuthorUsername: "nitro4u",
		AuthorHost:     "spam.example",
		Text:           "check out discord.gg/ctkpaarr join now!!",
	}
}

func strangerAPI() *FakeAPI {
	api := NewFakeAPI()
	api.Profiles["spammer1"] = &event.AuthorProfile{FollowersCount: 0, FollowingCount: 3}
	return api
}

func judgeCalls(bes ...*llm.ScriptedBackend) int {
	n := 0
	for _, be := range bes {
		n += len(be.Requests())
	}
	return n
}

// Scenario A: two judges agree on spam, both actions happen exactly once.
func TestScenarioAllJudgesSpam(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	api := strangerAPI()
	bes := []*llm.ScriptedBackend{
		{ModelName: "gemini:small", Decisions: []string{spamJSON}},
		{ModelName: "gemini:large", Decisions: []string{spamJSON}},
	}
	eng := EngineTestFixture(api, bes)

	res, err := eng.ProcessMention(ctx, spamMention("n1"))
	require.NoError(err)
	assert.Equal(consensus.OutcomeSpam, res.Outcome())
	assert.Equal([]string{"n1"}, api.Deletes)
	assert.Equal([]string{"spammer1"}, api.Suspends)
	assert.True(res.Action.Deleted)
	assert.True(res.Action.Suspended)
	assert.Empty(res.Action.Suppressed)

	// both judges saw identical evidence
	r0 := bes[0].Requests()[0].Turns[0].Text
	r1 := bes[1].Requests()[0].Turns[0].Text
	assert.Equal(r0, r1)
	assert.True(strings.Contains(r0, "discord.gg/ctkpaarr"))
}

// Scenario B: the second judge dissents, nothing happens.
func TestScenarioDissent(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	api := strangerAPI()
	bes := []*llm.ScriptedBackend{
		{ModelName: "gemini:small", Decisions: []string{spamJSON}},
		{ModelName: "gemini:large", Decisions: []string{notSpamJSON}},
	}
	eng := EngineTestFixture(api, bes)

	res, err := eng.ProcessMention(context.Background(), spamMention("n1"))
	require.NoError(err)
	assert.Equal(consensus.OutcomeNotSpam, res.Outcome())
	_, deletes, suspends := api.Calls()
	assert.Equal(0, deletes)
	assert.Equal(0, suspends)
	assert.False(res.Action.DeleteAttempted)
}

// Scenario C: the bot follows the author; the pipeline stops at the pre-filter.
func TestScenarioFriendlyFire(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	for _, p := range []event.AuthorProfile{
		{IsFollowedByBot: true},
		{IsFollowingBot: true},
		{IsFollowingBot: true, IsFollowedByBot: true},
	} {
		api := strangerAPI()
		api.Profiles["spammer1"] = &p
		bes := []*llm.ScriptedBackend{
			{ModelName: "gemini:small", Decisions: []string{spamJSON}},
			{ModelName: "gemini:large", Decisions: []string{spamJSON}},
		}
		ex := &visual.StaticExtractor{ExtractorName: "ocr", Texts: map[string]string{}}
		eng := EngineTestFixture(api, bes, ex)

		m := spamMention("n1")
		m.Attachments = []event.Attachment{{URL: "https://spam.example/a.png", Type: "image/png"}}
		res, err := eng.ProcessMention(context.Background(), m)
		require.NoError(err)
		assert.Equal(SkipFriendlyFire, res.Skipped)
		assert.Equal(0, judgeCalls(bes...))
		assert.Empty(ex.Calls())
		_, deletes, suspends := api.Calls()
		assert.Equal(0, deletes)
		assert.Equal(0, suspends)
	}
}

func TestSkipSuspended(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	api := strangerAPI()
	api.Profiles["spammer1"].IsSuspended = true
	be := &llm.ScriptedBackend{Decisions: []string{spamJSON}}
	eng := EngineTestFixture(api, []*llm.ScriptedBackend{be})

	res, err := eng.ProcessMention(context.Background(), spamMention("n1"))
	require.NoError(err)
	assert.Equal(SkipSuspended, res.Skipped)
	assert.Equal(0, judgeCalls(be))
	_, deletes, suspends := api.Calls()
	assert.Equal(0, deletes+suspends)
}

func TestSkipSelfAndSeen(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	api := strangerAPI()
	be := &llm.ScriptedBackend{Decisions: []string{notSpamJSON}}
	eng := EngineTestFixture(api, []*llm.ScriptedBackend{be})

	self := spamMention("n0")
	self.AuthorID = TestBot.ID
	res, err := eng.ProcessMention(ctx, self)
	require.NoError(err)
	assert.Equal(SkipSelf, res.Skipped)

	res, err = eng.ProcessMention(ctx, spamMention("n1"))
	require.NoError(err)
	assert.Equal(consensus.OutcomeNotSpam, res.Outcome())
	calls := judgeCalls(be)

	// the same note again (eg, from stream and backlog) is not judged twice
	res, err = eng.ProcessMention(ctx, spamMention("n1"))
	require.NoError(err)
	assert.Equal(SkipSeen, res.Skipped)
	assert.Equal(calls, judgeCalls(be))
	profiles, _, _ := api.Calls()
	assert.Equal(1, profiles)
}

// The same note arriving on several paths at once is judged and actioned once.
func TestConcurrentDuplicateMention(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	api := strangerAPI()
	be := &llm.ScriptedBackend{Decisions: []string{spamJSON}}
	eng := EngineTestFixture(api, []*llm.ScriptedBackend{be})

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := eng.ProcessMention(ctx, spamMention("n1"))
			assert.NoError(err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	judged := 0
	for _, res := range results {
		if res != nil && res.Skipped == "" {
			judged++
		} else if res != nil {
			assert.Equal(SkipSeen, res.Skipped)
		}
	}
	assert.Equal(1, judged)
	_, deletes, _ := api.Calls()
	assert.Equal(1, deletes)
}

func TestCollectionFailure(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	api := strangerAPI()
	api.ProfileErr = errors.New("statusCode=500")
	be := &llm.ScriptedBackend{Decisions: []string{spamJSON}}
	eng := EngineTestFixture(api, []*llm.ScriptedBackend{be})

	res, err := eng.ProcessMention(ctx, spamMention("n1"))
	assert.Error(err)
	assert.Nil(res)
	assert.Equal(0, judgeCalls(be))

	// not remembered as seen: it gets another chance
	api.ProfileErr = nil
	res, err = eng.ProcessMention(ctx, spamMention("n1"))
	assert.NoError(err)
	assert.Equal(consensus.OutcomeSpam, res.Outcome())
}

func TestInconclusiveNoAction(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	api := strangerAPI()
	bes := []*llm.ScriptedBackend{
		{ModelName: "gemini:small", Decisions: []string{"spam!", "SPAM", "```json\n{}\n```"}},
		{ModelName: "gemini:large", Decisions: []string{spamJSON}},
	}
	eng := EngineTestFixture(api, bes)

	res, err := eng.ProcessMention(ctx, spamMention("n1"))
	require.NoError(err)
	assert.Equal(consensus.OutcomeInconclusive, res.Outcome())
	assert.Equal(3, bes[0].DecisionCalls())
	assert.Equal(0, judgeCalls(bes[1]))
	_, deletes, suspends := api.Calls()
	assert.Equal(0, deletes+suspends)

	flags, err := eng.Flags.Get(ctx, "n1")
	require.NoError(err)
	assert.Equal([]string{flagstore.FlagInconclusive}, flags)
}

func TestMalformedThenSpamProceeds(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	api := strangerAPI()
	bes := []*llm.ScriptedBackend{
		{ModelName: "gemini:small", Decisions: []string{"nope", `{"result": "spam"}`, spamJSON}},
		{ModelName: "gemini:large", Decisions: []string{spamJSON}},
	}
	eng := EngineTestFixture(api, bes)

	res, err := eng.ProcessMention(context.Background(), spamMention("n1"))
	require.NoError(err)
	assert.Equal(consensus.OutcomeSpam, res.Outcome())
	assert.Equal(1, bes[1].DecisionCalls())
	assert.Equal([]string{"n1"}, api.Deletes)
}

func TestExtractionFailuresStillJudged(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	api := strangerAPI()
	be := &llm.ScriptedBackend{Decisions: []string{spamJSON}}
	m := spamMention("n1")
	m.Attachments = []event.Attachment{
		{URL: "https://spam.example/a.png", Type: "image/png"},
		{URL: "https://spam.example/b.png", Type: "image/png"},
		{URL: "https://spam.example/c.png", Type: "image/png"},
	}
	extractors := []visual.Extractor{
		&visual.StaticExtractor{ExtractorName: "caption-a", Texts: map[string]string{"https://spam.example/c.png": "a purple banner"}},
		&visual.StaticExtractor{ExtractorName: "caption-b", Texts: map[string]string{}},
		&visual.StaticExtractor{ExtractorName: "ocr", Texts: map[string]string{"https://spam.example/c.png": "FREE NITRO"}},
	}
	eng := EngineTestFixture(api, []*llm.ScriptedBackend{be}, extractors...)

	res, err := eng.ProcessMention(context.Background(), m)
	require.NoError(err)
	assert.Equal(consensus.OutcomeSpam, res.Outcome())
	evidence := be.Requests()[0].Turns[0].Text
	assert.True(strings.Contains(evidence, "FREE NITRO"))
	assert.True(strings.Contains(evidence, "a purple banner"))
}

type panicDecider struct{}

func (panicDecider) Decide(ctx context.Context, report event.EvidenceReport) consensus.Decision {
	panic("judge exploded")
}

func TestPanicIsolated(t *testing.T) {
	assert := assert.New(t)

	api := strangerAPI()
	eng := EngineTestFixture(api, nil)
	eng.Consensus = panicDecider{}

	res, err := eng.ProcessMention(context.Background(), spamMention("n1"))
	assert.Error(err)
	assert.Nil(res)
	_, deletes, suspends := api.Calls()
	assert.Equal(0, deletes+suspends)
}

func TestProcessBacklog(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	api := strangerAPI()
	api.Profiles["friend"] = &event.AuthorProfile{IsFollowingBot: true}
	for i := 0; i < 5; i++ {
		m := spamMention(fmt.Sprintf("n%d", i))
		switch i {
		case 1:
			m.AuthorID = "friend"
		case 3:
			// profile lookup fails for this one only
			m.AuthorID = "ghost"
		}
		api.Mentions = append(api.Mentions, m)
	}
	be := &llm.ScriptedBackend{Decisions: []string{spamJSON}}
	eng := EngineTestFixture(api, []*llm.ScriptedBackend{be})
	// after the fixture: its LRU caches run janitor goroutines for good
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	stats, err := eng.ProcessBacklog(ctx, 10)
	require.NoError(err)
	assert.Equal(5, stats.Fetched)
	assert.Equal(1, stats.Failed)
	assert.Nil(stats.Results[3])
	assert.Equal(SkipFriendlyFire, stats.Results[1].Skipped)
	assert.Equal(3, len(api.Deletes))
	assert.Equal(3, len(api.Suspends))

	// a second scan is idempotent
	stats, err = eng.ProcessBacklog(ctx, 10)
	require.NoError(err)
	assert.Equal(3, len(api.Deletes))
	assert.Equal(SkipSeen, stats.Results[0].Skipped)
}

func TestIntakeSubmit(t *testing.T) {
	assert := assert.New(t)

	api := strangerAPI()
	be := &llm.ScriptedBackend{Decisions: []string{notSpamJSON}}
	eng := EngineTestFixture(api, []*llm.ScriptedBackend{be})
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	in := eng.NewIntake(context.Background())
	for i := 0; i < 6; i++ {
		in.Submit(spamMention(fmt.Sprintf("n%d", i)))
	}
	// one that fails
	bad := spamMention("bad")
	bad.AuthorID = "ghost"
	in.Submit(bad)
	in.Wait()

	profiles, deletes, _ := api.Calls()
	assert.Equal(7, profiles)
	assert.Equal(0, deletes)
	assert.Equal(6, be.DecisionCalls())
}

func TestProcessNote(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	api := strangerAPI()
	api.Mentions = []event.Mention{spamMention("n1")}
	be := &llm.ScriptedBackend{Decisions: []string{notSpamJSON}}
	eng := EngineTestFixture(api, []*llm.ScriptedBackend{be})

	res, err := eng.ProcessNote(ctx, "n1")
	require.NoError(err)
	assert.Equal(consensus.OutcomeNotSpam, res.Outcome())

	// explicitly requested notes are re-judged even if seen
	res, err = eng.ProcessNote(ctx, "n1")
	require.NoError(err)
	assert.Equal("", res.Skipped)
	assert.Equal(2, be.DecisionCalls())

	_, err = eng.ProcessNote(ctx, "missing")
	assert.Error(err)
}
