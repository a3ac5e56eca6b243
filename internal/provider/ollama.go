package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/keepmark/recall/internal/recallerr"
)

// OllamaConfig configures the Ollama backend.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default http://localhost:11434).
	Host string

	// EmbedModel is the embedding model name.
	EmbedModel string

	// GenerateModel is the answer-synthesis model name.
	GenerateModel string

	// Dimensions is the expected embedding dimension.
	Dimensions int
}

// ollamaEmbedRequest is the request body for POST /api/embed.
type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResponse is the response body for POST /api/embed.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// ollamaGenerateRequest is the request body for POST /api/generate.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaGenerateResponse is the response body for POST /api/generate.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// OllamaEmbedder embeds text via a local Ollama instance.
type OllamaEmbedder struct {
	host   string
	model  string
	dims   int
	client *http.Client
}

// NewOllamaEmbedder creates an embedder against the configured host.
// No connection is made until the first call.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:   strings.TrimSuffix(cfg.Host, "/"),
		model:  cfg.EmbedModel,
		dims:   cfg.Dimensions,
		client: &http.Client{},
	}
}

// Embed returns the embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, recallerr.InternalError("marshal embed request", err)
	}

	var result ollamaEmbedResponse
	if err := e.post(ctx, "/api/embed", body, &result); err != nil {
		return nil, err
	}

	if len(result.Embeddings) == 0 {
		return nil, recallerr.New(recallerr.ErrCodeProvider,
			fmt.Sprintf("ollama returned no embedding for model %s", e.model), nil).
			WithSuggestion("check that the model is pulled: ollama pull " + e.model)
	}
	return result.Embeddings[0], nil
}

// Dimensions returns the configured embedding dimension.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *OllamaEmbedder) ModelName() string {
	return e.model
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func (e *OllamaEmbedder) post(ctx context.Context, path string, body []byte, out any) error {
	return ollamaPost(ctx, e.client, e.host, path, body, out)
}

// OllamaGenerator produces completions via a local Ollama instance.
type OllamaGenerator struct {
	host   string
	model  string
	client *http.Client
}

// NewOllamaGenerator creates a generator against the configured host.
func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	return &OllamaGenerator{
		host:   strings.TrimSuffix(cfg.Host, "/"),
		model:  cfg.GenerateModel,
		client: &http.Client{},
	}
}

// Generate returns the completion for the prompt.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  g.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", recallerr.InternalError("marshal generate request", err)
	}

	var result ollamaGenerateResponse
	if err := ollamaPost(ctx, g.client, g.host, "/api/generate", body, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}

// ModelName returns the model identifier.
func (g *OllamaGenerator) ModelName() string {
	return g.model
}

// Close releases idle connections.
func (g *OllamaGenerator) Close() error {
	g.client.CloseIdleConnections()
	return nil
}

// ollamaPost issues a POST and decodes the JSON response, mapping HTTP
// failures to typed errors so callers can tell retryable conditions
// (rate limits, network trouble) from fatal ones (auth).
func ollamaPost(ctx context.Context, client *http.Client, host, path string, body []byte, out any) error {
	url := host + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return recallerr.InternalError("build ollama request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return recallerr.NetworkError(fmt.Sprintf("ollama request to %s failed", url), err).
			WithSuggestion("check that Ollama is running: ollama serve")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return mapHTTPStatus(resp.StatusCode, fmt.Sprintf("ollama %s: %s", path, strings.TrimSpace(string(respBody))))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return recallerr.New(recallerr.ErrCodeProvider, "decode ollama response", err)
	}
	return nil
}

// mapHTTPStatus converts an HTTP error status into a typed provider error.
func mapHTTPStatus(status int, message string) error {
	switch {
	case status == http.StatusTooManyRequests:
		return recallerr.RateLimited(message, nil)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return recallerr.AuthError(message, nil)
	case status >= 500:
		return recallerr.NetworkError(message, nil)
	default:
		return recallerr.New(recallerr.ErrCodeProvider,
			fmt.Sprintf("unexpected status %d: %s", status, message), nil)
	}
}

var (
	_ EmbeddingProvider  = (*OllamaEmbedder)(nil)
	_ GenerationProvider = (*OllamaGenerator)(nil)
)
