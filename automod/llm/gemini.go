package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

type GeminiBackend struct {
	Client  *genai.Client
	Model   string
	Limiter *rate.Limiter
}

var _ Backend = (*GeminiBackend)(nil)

func (b *GeminiBackend) Name() string {
	return ProviderGemini + ":" + b.Model
}

func (b *GeminiBackend) Complete(ctx context.Context, req Request) (string, error) {
	if err := wait(ctx, b.Limiter); err != nil {
		return "", err
	}

	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		var role genai.Role = genai.RoleUser
		if t.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}

	cfg := &genai.GenerateContentConfig{
		CandidateCount: 1,
		Temperature:    genai.Ptr[float32](0),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := b.Client.Models.GenerateContent(ctx, b.Model, contents, cfg)
	llmDuration.WithLabelValues(b.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		llmRequests.WithLabelValues(b.Name(), "error").Inc()
		return "", fmt.Errorf("gemini generate (%s): %w", b.Model, err)
	}
	llmRequests.WithLabelValues(b.Name(), "ok").Inc()

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate (%s): empty response", b.Model)
	}
	return text, nil
}
