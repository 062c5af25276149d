// Package gemini implements the knowledge.Embedder and knowledge.Generator
// contracts on top of the Gemini API.
//
// gemini-embedding-001 emits 3072 dimensions by default; it supports
// truncation via OutputDimensionality, which is how the configured store
// dimension (768 by default) is enforced at the source.
package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/prvlabs/prva/internal/knowledge"
)

// Config holds the model selection for a Client.
type Config struct {
	APIKey         string
	EmbedderModel  string  // e.g. "gemini-embedding-001"
	GeneratorModel string  // e.g. "gemini-2.5-flash"
	Dimension      int     // Declared embedding dimensionality
	Temperature    float32 // Generation temperature
	MaxTokens      int32   // Generation output cap
	SystemPrompt   string  // Optional system instruction for generation
}

// Client wraps a genai client behind the two model interfaces.
// Safe for concurrent use.
type Client struct {
	client *genai.Client
	cfg    Config
	logger *slog.Logger
}

var (
	_ knowledge.Embedder  = (*Client)(nil)
	_ knowledge.Generator = (*Client)(nil)
)

// New creates a Client for the Gemini API backend.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Client{client: client, cfg: cfg, logger: logger}, nil
}

// Dimension returns the declared embedding dimensionality.
func (c *Client) Dimension() int {
	return c.cfg.Dimension
}

// Embed maps each text to a vector of exactly Dimension() elements.
// The whole batch goes out in a single request; a transport failure is
// reported as knowledge.ErrUpstreamUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.cfg.EmbedderModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(int32(c.cfg.Dimension)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: embed content: %v", knowledge.ErrUpstreamUnavailable, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if len(emb.Values) != c.cfg.Dimension {
			return nil, fmt.Errorf("%w: got %d dimensions, want %d",
				knowledge.ErrSchemaMismatch, len(emb.Values), c.cfg.Dimension)
		}
		vectors[i] = emb.Values
	}

	c.logger.Debug("embedded batch", "texts", len(texts), "dimension", c.cfg.Dimension)
	return vectors, nil
}

// Generate produces a single completion for the prompt.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.cfg.Temperature),
		MaxOutputTokens: c.cfg.MaxTokens,
	}
	if c.cfg.SystemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(c.cfg.SystemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.GeneratorModel, genai.Text(prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("%w: generate content: %v", knowledge.ErrUpstreamUnavailable, err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("generator returned empty completion")
	}
	return text, nil
}
