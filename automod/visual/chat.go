package visual

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mentionmod/mentionmod/util"

	"github.com/carlmjohnson/versioninfo"
	"golang.org/x/time/rate"
)

// Captions images with a vision model behind an OpenAI-compatible "/chat/completions" endpoint (eg, llava or qwen-vl on Ollama). The image is sent as a base64 data URL, so the model server does not need network access.
type ChatCaptioner struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
	Model   string
	Fetcher *ImageFetcher
	Limiter *rate.Limiter
}

var _ Extractor = (*ChatCaptioner)(nil)

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatVisionMessage struct {
	Role    string            `json:"role"`
	Content []chatContentPart `json:"content"`
}

type chatVisionRequest struct {
	Model       string              `json:"model"`
	Messages    []chatVisionMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type chatVisionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *ChatCaptioner) Name() string {
	return "caption:openai:" + c.Model
}

func (c *ChatCaptioner) Extract(ctx context.Context, imageURL string) (string, error) {
	return observe(ctx, c.Name(), func(ctx context.Context) (string, error) {
		img, err := c.Fetcher.Fetch(ctx, imageURL)
		if err != nil {
			return "", err
		}
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		dataURL := "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
		return c.complete(ctx, chatVisionRequest{
			Model: c.Model,
			Messages: []chatVisionMessage{{
				Role: "user",
				Content: []chatContentPart{
					{Type: "text", Text: captionPrompt},
					{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}},
				},
			}},
		})
	})
}

func (c *ChatCaptioner) complete(ctx context.Context, body chatVisionRequest) (string, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	uri := strings.TrimSuffix(c.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mentionmod/"+versioninfo.Short())
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.Client
	if client == nil {
		client = util.RobustHTTPClient()
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("caption request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("caption request failed statusCode=%d", resp.StatusCode)
	}
	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read caption response: %w", err)
	}
	var parsed chatVisionResponse
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse caption response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("caption response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
