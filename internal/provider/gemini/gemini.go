// Package gemini generates frames with a Gemini image model through the
// google.golang.org/genai client.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/media"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash-image"

var (
	// ErrMissingAPIKey is returned by New without a key.
	ErrMissingAPIKey = errors.New("gemini: API key is required")
	// ErrBlocked is returned when the prompt or output was blocked.
	ErrBlocked = errors.New("gemini: blocked")
)

// contentGenerator is the part of genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Generator sends both portraits and the prompt in one user turn and takes
// the first inline image of the response.
type Generator struct {
	models contentGenerator
	model  string
}

// New creates a Generator backed by the Gemini API.
func New(ctx context.Context, apiKey, modelName string) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newWithModels(client.Models, modelName), nil
}

func newWithModels(models contentGenerator, modelName string) *Generator {
	if modelName == "" {
		modelName = DefaultModel
	}
	return &Generator{models: models, model: modelName}
}

// Generate composes the two portraits into one frame.
func (g *Generator) Generate(ctx context.Context, req job.FrameRequest) (media.Image, error) {
	left, right := req.Inputs.Left(), req.Inputs.Right()
	parts := []*genai.Part{
		genai.NewPartFromText(req.Prompt),
		genai.NewPartFromBytes(left.Data, left.MediaType),
		genai.NewPartFromBytes(right.Data, right.MediaType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage)},
		Seed:               genai.Ptr(int32(req.Seed)),
		ImageConfig: &genai.ImageConfig{
			AspectRatio: string(req.Options.AspectRatio),
		},
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return media.Image{}, fmt.Errorf("gemini: generate content: %w", err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return media.Image{}, fmt.Errorf("%w: %s", ErrBlocked, resp.PromptFeedback.BlockReason)
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			return media.NewImage("", part.InlineData.MIMEType, part.InlineData.Data)
		}
		if cand.FinishReason == genai.FinishReasonSafety || cand.FinishReason == genai.FinishReasonProhibitedContent {
			return media.Image{}, fmt.Errorf("%w: %s", ErrBlocked, cand.FinishReason)
		}
	}
	return media.Image{}, nil
}
