package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelID(t *testing.T) {
	assert := assert.New(t)

	p, m, err := ParseModelID("gemini:gemini-2.5-flash")
	assert.NoError(err)
	assert.Equal(ProviderGemini, p)
	assert.Equal("gemini-2.5-flash", m)

	p, m, err = ParseModelID("gemini-2.5-pro")
	assert.NoError(err)
	assert.Equal(ProviderGemini, p)
	assert.Equal("gemini-2.5-pro", m)

	// model names may themselves contain colons (ollama tags)
	p, m, err = ParseModelID("openai:llama3.1:8b")
	assert.NoError(err)
	assert.Equal(ProviderOpenAI, p)
	assert.Equal("llama3.1:8b", m)

	_, _, err = ParseModelID("")
	assert.Error(err)
	_, _, err = ParseModelID("openai:")
	assert.Error(err)
	_, _, err = ParseModelID("claude:foo")
	assert.Error(err)
}

func TestFactory(t *testing.T) {
	assert := assert.New(t)

	f := Factory{}
	_, err := f.New("gemini:gemini-2.5-flash")
	assert.Error(err)
	_, err = f.New("openai:llama3.1")
	assert.Error(err)

	f.OpenAIBaseURL = "http://localhost:11434/v1"
	f.RequestsPerSecond = 2
	b, err := f.New("openai:llama3.1")
	assert.NoError(err)
	assert.Equal("openai:llama3.1", b.Name())
	ob, ok := b.(*OpenAIBackend)
	assert.True(ok)
	assert.NotNil(ob.Limiter)
}

func TestOpenAIBackend(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/v1/chat/completions", r.URL.Path)
		assert.Equal("Bearer key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "  {\"reasoning\": \"r\", \"result\": \"spam\"}  "}}]}`))
	}))
	defer srv.Close()

	b := OpenAIBackend{
		Client:  srv.Client(),
		BaseURL: srv.URL + "/v1/",
		APIKey:  "key",
		Model:   "llama3.1",
	}
	out, err := b.Complete(ctx, Request{
		System: "sys",
		Turns: []Turn{
			{Role: RoleUser, Text: "evidence"},
			{Role: RoleModel, Text: "thinking"},
			{Role: RoleUser, Text: "decide"},
		},
		JSON: true,
	})
	require.NoError(err)
	assert.Equal(`{"reasoning": "r", "result": "spam"}`, out)

	assert.Equal("llama3.1", got.Model)
	require.Len(got.Messages, 4)
	assert.Equal("system", got.Messages[0].Role)
	assert.Equal("user", got.Messages[1].Role)
	assert.Equal("assistant", got.Messages[2].Role)
	assert.Equal("decide", got.Messages[3].Content)
	require.NotNil(got.ResponseFormat)
	assert.Equal("json_object", got.ResponseFormat.Type)
}

func TestOpenAIBackendErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	b := OpenAIBackend{Client: srv.Client(), BaseURL: srv.URL, Model: "m"}
	_, err := b.Complete(ctx, Request{Turns: []Turn{{Role: RoleUser, Text: "x"}}})
	assert.Error(err)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"message": "model not found"}}`))
	}))
	defer bad.Close()
	b.BaseURL = bad.URL
	b.Client = bad.Client()
	_, err = b.Complete(ctx, Request{Turns: []Turn{{Role: RoleUser, Text: "x"}}})
	assert.ErrorContains(err, "statusCode=400")
}
