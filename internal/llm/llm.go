// Package llm wraps the Gemini SDK behind small interfaces: plain text
// generation, schema-constrained JSON generation, and embeddings.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"clipbrief/internal/config"
	"clipbrief/internal/logger"
)

const (
	// DefaultEmbeddingDimensions uses Matryoshka truncation so vectors
	// stay compatible with the 768-dim collections in the vector store.
	DefaultEmbeddingDimensions int32 = 768
)

var (
	// ErrTransport wraps SDK and network failures.
	ErrTransport = errors.New("llm: transport error")
	// ErrSchema indicates the model returned output that does not
	// decode into the requested structure.
	ErrSchema = errors.New("llm: response does not match schema")
)

// Generator is the text-generation surface the agents depend on.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any) error
}

// Embedder produces fixed-size embedding vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client talks to the Gemini API. It satisfies Generator and Embedder.
type Client struct {
	gClient        *genai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int32
}

// NewClient builds a client from configuration. The API key is
// required.
func NewClient(ctx context.Context, cfg config.LLM) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: missing API key, set GEMINI_API_KEY", ErrTransport)
	}

	backend := genai.BackendGeminiAPI
	if cfg.Provider == "secondary" {
		backend = genai.BackendVertexAI
	}

	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: backend,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating Gemini client: %v", ErrTransport, err)
	}

	return &Client{
		gClient:        gClient,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
	}, nil
}

func userContent(prompt string) []*genai.Content {
	return []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
}

// GenerateText runs one free-form generation.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = c.maxTokens
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.model, userContent(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response from model", ErrTransport)
	}
	return text, nil
}

// GenerateJSON runs one generation constrained to the given response
// schema and decodes the result into out.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema *genai.Schema, out any) error {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	if c.maxTokens > 0 {
		cfg.MaxOutputTokens = c.maxTokens
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.model, userContent(prompt), cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	text := resp.Text()
	if text == "" {
		return fmt.Errorf("%w: empty response from model", ErrTransport)
	}
	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		logger.Debug("undecodable model output", "output", snippetForLog(text))
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}

// Embed produces a 768-dimension embedding for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := DefaultEmbeddingDimensions
	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, userContent(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("%w: no embedding values returned", ErrTransport)
	}
	return resp.Embeddings[0].Values, nil
}

// stripFences removes a markdown code fence wrapper some models emit
// even in JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func snippetForLog(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
