package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// Records each generateContent body and answers with a single model candidate.
func geminiServer(t *testing.T, reply string) (*genai.Client, func() []map[string]any) {
	var mu sync.Mutex
	var bodies []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role":  "model",
						"parts": []any{map[string]any{"text": reply}},
					},
					"finishReason": "STOP",
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      "test-key",
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	})
	require.NoError(t, err)
	return client, func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return bodies
	}
}

func TestGeminiBackend(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	client, bodies := geminiServer(t, ` {"spam": true} `)
	b := &GeminiBackend{Client: client, Model: "gemini-2.5-flash"}
	assert.Equal("gemini:gemini-2.5-flash", b.Name())

	out, err := b.Complete(ctx, Request{
		System: "you are a moderator",
		Turns: []Turn{
			{Role: RoleUser, Text: "evidence"},
			{Role: RoleModel, Text: "reasoning"},
			{Role: RoleUser, Text: "decide"},
		},
		JSON: true,
	})
	require.NoError(err)
	assert.Equal(`{"spam": true}`, out)

	require.Equal(1, len(bodies()))
	body := bodies()[0]

	sys, ok := body["systemInstruction"].(map[string]any)
	require.True(ok)
	sysParts := sys["parts"].([]any)
	assert.Equal("you are a moderator", sysParts[0].(map[string]any)["text"])

	contents := body["contents"].([]any)
	require.Equal(3, len(contents))
	var roles []string
	for _, c := range contents {
		roles = append(roles, c.(map[string]any)["role"].(string))
	}
	assert.Equal([]string{"user", "model", "user"}, roles)
	last := contents[2].(map[string]any)["parts"].([]any)[0].(map[string]any)
	assert.Equal("decide", last["text"])

	gen := body["generationConfig"].(map[string]any)
	assert.Equal("application/json", gen["responseMimeType"])
	assert.Equal(float64(1), gen["candidateCount"])
}

func TestGeminiBackendReasoningStep(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	client, bodies := geminiServer(t, "looks like an invite scam")
	b := &GeminiBackend{Client: client, Model: "gemini-2.5-flash"}

	out, err := b.Complete(ctx, Request{
		Turns: []Turn{{Role: RoleUser, Text: "evidence"}},
	})
	require.NoError(err)
	assert.Equal("looks like an invite scam", out)

	body := bodies()[0]
	_, hasSystem := body["systemInstruction"]
	assert.False(hasSystem)
	gen := body["generationConfig"].(map[string]any)
	_, hasMIME := gen["responseMimeType"]
	assert.False(hasMIME)
}

func TestGeminiBackendEmptyResponse(t *testing.T) {
	client, _ := geminiServer(t, "   ")
	b := &GeminiBackend{Client: client, Model: "gemini-2.5-flash"}
	_, err := b.Complete(context.Background(), Request{Turns: []Turn{{Role: RoleUser, Text: "x"}}})
	assert.Error(t, err)
}
