package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/keepmark/recall/internal/recallerr"
)

// GeminiConfig configures the hosted Gemini backend.
type GeminiConfig struct {
	APIKey        string
	EmbedModel    string
	GenerateModel string
	Dimensions    int
}

// GeminiEmbedder embeds text via the Gemini API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dims   int
}

// NewGeminiEmbedder creates a Gemini embedder. The client is shared with
// no other component and closed by Close.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, recallerr.New(recallerr.ErrCodeProvider, "create gemini client", err)
	}
	return &GeminiEmbedder{
		client: client,
		model:  cfg.EmbedModel,
		dims:   cfg.Dimensions,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := e.client.EmbeddingModel(e.model).EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, mapGeminiError(err, "gemini embed")
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, recallerr.New(recallerr.ErrCodeProvider,
			fmt.Sprintf("gemini returned no embedding for model %s", e.model), nil)
	}
	return res.Embedding.Values, nil
}

// Dimensions returns the configured embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

// Close closes the underlying API client.
func (e *GeminiEmbedder) Close() error {
	return e.client.Close()
}

// GeminiGenerator produces completions via the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini generator.
func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, recallerr.New(recallerr.ErrCodeProvider, "create gemini client", err)
	}
	return &GeminiGenerator{client: client, model: cfg.GenerateModel}, nil
}

// Generate returns the completion for the prompt.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", mapGeminiError(err, "gemini generate")
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	if sb.Len() == 0 {
		return "", recallerr.New(recallerr.ErrCodeProvider,
			fmt.Sprintf("gemini returned no text for model %s", g.model), nil)
	}
	return sb.String(), nil
}

// ModelName returns the model identifier.
func (g *GeminiGenerator) ModelName() string {
	return g.model
}

// Close closes the underlying API client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// mapGeminiError converts API errors into typed provider errors using the
// underlying HTTP status where available.
func mapGeminiError(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return mapHTTPStatus(apiErr.Code, fmt.Sprintf("%s: %s", op, apiErr.Message))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return recallerr.NetworkError(op+" failed", err)
}

var (
	_ EmbeddingProvider  = (*GeminiEmbedder)(nil)
	_ GenerationProvider = (*GeminiGenerator)(nil)
)
