package visual

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Captions images with a Gemini multimodal model. The image is sent inline.
type GeminiCaptioner struct {
	Client  *genai.Client
	Model   string
	Fetcher *ImageFetcher
	Limiter *rate.Limiter
}

var _ Extractor = (*GeminiCaptioner)(nil)

func (g *GeminiCaptioner) Name() string {
	return "caption:gemini:" + g.Model
}

func (g *GeminiCaptioner) Extract(ctx context.Context, imageURL string) (string, error) {
	return observe(ctx, g.Name(), func(ctx context.Context) (string, error) {
		img, err := g.Fetcher.Fetch(ctx, imageURL)
		if err != nil {
			return "", err
		}
		if g.Limiter != nil {
			if err := g.Limiter.Wait(ctx); err != nil {
				return "", err
			}
		}
		parts := []*genai.Part{
			genai.NewPartFromBytes(img.Data, img.MimeType),
			genai.NewPartFromText(captionPrompt),
		}
		contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
		resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, &genai.GenerateContentConfig{
			CandidateCount: 1,
			Temperature:    genai.Ptr[float32](0),
		})
		if err != nil {
			return "", fmt.Errorf("gemini caption (%s): %w", g.Model, err)
		}
		return resp.Text(), nil
	})
}
