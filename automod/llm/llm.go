// Language-model backends used by judges.
//
// A Backend is stateless from the caller's perspective: every call carries the complete conversation, and nothing is remembered between calls.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Turn struct {
	Role Role
	Text string
}

type Request struct {
	System string
	Turns  []Turn
	// Ask the backend to constrain output to a JSON object, where supported. Callers must still validate the output.
	JSON bool
}

type Backend interface {
	// Identifier of the form "provider:model"
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Splits a "provider:model" identifier. A bare model name defaults to the Gemini provider.
func ParseModelID(id string) (provider, model string, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", fmt.Errorf("empty model identifier")
	}
	provider, model, found := strings.Cut(id, ":")
	if !found {
		return ProviderGemini, id, nil
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if model == "" {
		return "", "", fmt.Errorf("model identifier missing model name: %q", id)
	}
	switch provider {
	case ProviderGemini, ProviderOpenAI:
		return provider, model, nil
	default:
		return "", "", fmt.Errorf("unsupported model provider %q in %q", provider, id)
	}
}

// Constructs backends from model identifiers. Holds the shared, once-initialized clients.
type Factory struct {
	// Required for "gemini:" models
	Gemini *genai.Client
	// Required for "openai:" models, eg "http://localhost:11434/v1" for Ollama
	OpenAIBaseURL string
	OpenAIAPIKey  string
	HTTPClient    *http.Client
	// Per-backend request rate limit. Zero or negative disables limiting.
	RequestsPerSecond float64
}

func (f *Factory) limiter() *rate.Limiter {
	if f.RequestsPerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(f.RequestsPerSecond), 1)
}

func (f *Factory) New(id string) (Backend, error) {
	provider, model, err := ParseModelID(id)
	if err != nil {
		return nil, err
	}
	switch provider {
	case ProviderGemini:
		if f.Gemini == nil {
			return nil, fmt.Errorf("model %q requires a Gemini API key", id)
		}
		return &GeminiBackend{
			Client:  f.Gemini,
			Model:   model,
			Limiter: f.limiter(),
		}, nil
	case ProviderOpenAI:
		if f.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("model %q requires an OpenAI-compatible base URL", id)
		}
		return &OpenAIBackend{
			Client:  f.HTTPClient,
			BaseURL: f.OpenAIBaseURL,
			APIKey:  f.OpenAIAPIKey,
			Model:   model,
			Limiter: f.limiter(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported model provider: %s", provider)
	}
}

func wait(ctx context.Context, lim *rate.Limiter) error {
	if lim == nil {
		return nil
	}
	return lim.Wait(ctx)
}
