package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mentionmod/mentionmod/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

// Backend for any OpenAI-compatible "/chat/completions" endpoint (OpenAI, Ollama, vLLM, llama.cpp server, ...).
type OpenAIBackend struct {
	// If nil, a retrying client with a long timeout is used
	Client  *http.Client
	BaseURL string
	APIKey  string
	Model   string
	Limiter *rate.Limiter
}

var _ Backend = (*OpenAIBackend)(nil)

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (b *OpenAIBackend) Name() string {
	return ProviderOpenAI + ":" + b.Model
}

// shared by backends without their own client; local models can be slow
var defaultLLMClient = sync.OnceValue(func() *http.Client {
	return util.RobustHTTPClientTimeout(5 * time.Minute)
})

func (b *OpenAIBackend) httpClient() *http.Client {
	if b.Client == nil {
		return defaultLLMClient()
	}
	return b.Client
}

func (b *OpenAIBackend) Complete(ctx context.Context, req Request) (string, error) {
	if err := wait(ctx, b.Limiter); err != nil {
		return "", err
	}

	msgs := make([]openAIMessage, 0, len(req.Turns)+1)
	if req.System != "" {
		msgs = append(msgs, openAIMessage{Role: "system", Content: req.System})
	}
	for _, t := range req.Turns {
		role := "user"
		if t.Role == RoleModel {
			role = "assistant"
		}
		msgs = append(msgs, openAIMessage{Role: role, Content: t.Text})
	}
	body := openAIRequest{
		Model:       b.Model,
		Messages:    msgs,
		Temperature: 0,
	}
	if req.JSON {
		body.ResponseFormat = &openAIResponseFormat{Type: "json_object"}
	}

	out, err := b.post(ctx, body)
	if err != nil {
		llmRequests.WithLabelValues(b.Name(), "error").Inc()
		return "", err
	}
	llmRequests.WithLabelValues(b.Name(), "ok").Inc()
	return out, nil
}

func (b *OpenAIBackend) post(ctx context.Context, body openAIRequest) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	uri := strings.TrimSuffix(b.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mentionmod/"+versioninfo.Short())
	if b.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.APIKey)
	}

	start := time.Now()
	resp, err := b.httpClient().Do(req)
	llmDuration.WithLabelValues(b.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read chat completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion failed statusCode=%d: %s", resp.StatusCode, util.TruncateRunes(string(respBytes), 256))
	}

	var parsed openAIResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse chat completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("chat completion returned empty content")
	}
	return text, nil
}
