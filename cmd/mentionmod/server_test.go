package main

import (
	"context"
	"testing"
	"time"

	"github.com/mentionmod/mentionmod/automod/llm"
	"github.com/mentionmod/mentionmod/automod/visual"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestJudgeModelOrder(t *testing.T) {
	assert := assert.New(t)

	c := Config{SmallModel: "gemini:small", LargeModel: "openai:large"}
	assert.Equal([]string{"gemini:small", "openai:large"}, c.judgeModels())
	assert.True(c.needsGemini())

	c.LargeModel = ""
	assert.Equal([]string{"gemini:small"}, c.judgeModels())

	// explicit list wins, order preserved
	c.JudgeModels = []string{"openai:a", " ", "openai:b"}
	assert.Equal([]string{"openai:a", "openai:b"}, c.judgeModels())
	assert.False(c.needsGemini())

	c.JudgeModels = []string{"openai:a", "openai:b", "openai:a"}
	assert.Equal([]string{"openai:a", "openai:b"}, c.judgeModels())

	c.CaptionModels = []string{"gemini:vision"}
	assert.True(c.needsGemini())
}

func TestNewExtractors(t *testing.T) {
	assert := assert.New(t)
	factory := &llm.Factory{}

	ex, err := newExtractors(Config{}, factory)
	assert.NoError(err)
	assert.Empty(ex)

	ex, err = newExtractors(Config{
		CaptionModels: []string{"openai:llava"},
		OpenAIBaseURL: "http://localhost:11434/v1",
		OCRHost:       "http://localhost:8000",
	}, factory)
	assert.NoError(err)
	assert.Equal(2, len(ex))
	_, ok := ex[0].(*visual.ChatCaptioner)
	assert.True(ok)
	_, ok = ex[1].(*visual.OCRClient)
	assert.True(ok)

	// vision model without an endpoint
	_, err = newExtractors(Config{CaptionModels: []string{"openai:llava"}}, factory)
	assert.Error(err)

	_, err = newExtractors(Config{CaptionModels: []string{"gemini:a", "gemini:b", "gemini:c"}}, factory)
	assert.Error(err)
}

func TestBackoff(t *testing.T) {
	assert := assert.New(t)

	assert.True(backoff(0, 60) < 2*time.Second)
	assert.True(backoff(3, 60) >= 8*time.Second)
	assert.True(backoff(20, 60) < 61*time.Second)
}

func TestOpenStores(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	st, err := openStores(ctx, "")
	require.NoError(err)
	assert.Nil(st.rdb)
	assert.NotNil(st.counters)
	assert.NotNil(st.cache)
	assert.NotNil(st.flags)

	_, err = openStores(ctx, "mysql://localhost/mentionmod")
	assert.Error(err)
}

func TestOpenStoresUnreachableRedis(t *testing.T) {
	// in-process caches from other tests keep their expiry goroutines
	current := goleak.IgnoreCurrent()

	// with a pool of one, the first failed dial starts a background redial loop that only stops once the client is closed
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := openStores(ctx, "redis://127.0.0.1:1/0?pool_size=1&max_retries=-1")
	assert.ErrorContains(t, err, "redis ping failed")

	// the redial loop checks for close once per second
	time.Sleep(1500 * time.Millisecond)
	goleak.VerifyNone(t, current)
}
