// Package openai provides an embedder backed by the OpenAI Embeddings API or
// any OpenAI compatible embeddings endpoint (for example Qwen's compatible mode).
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hibiki-ai/hibiki-go/pkg/embedder"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultModel      = "text-embedding-ada-002"
	DefaultDimensions = 1536
)

var (
	// ErrNoEmbedding is returned when the API answers without any vector.
	ErrNoEmbedding = errors.New("embedding generation failed: no data returned from OpenAI API")

	// ErrUnsupportedModel is returned when Config.Model names a model the SDK
	// cannot encode.
	ErrUnsupportedModel = errors.New("unsupported embedding model")
)

// Client is an OpenAI embedder. It implements embedder.Provider.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config is the configuration for the OpenAI embedder.
// APIKey: API key (required)
// Model: Embedding model name, defaults to DefaultModel
// BaseURL: API base URL, defaults to OpenAI official address
// Dimensions: Expected vector size, defaults to DefaultDimensions
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// NewClient creates a new OpenAI embedder.
//
// Args:
//   - cfg: Embedder configuration containing APIKey, Model, BaseURL and Dimensions
//
// Returns:
//   - *Client: OpenAI embedder instance
//   - error: Returns an error if the API key is missing or the model is unknown
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	name := cfg.Model
	if name == "" {
		name = DefaultModel
	}

	var model openai.EmbeddingModel
	_ = model.UnmarshalText([]byte(name))
	if model == openai.Unknown {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, name)
	}

	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}

	return &Client{
		client:     openai.NewClientWithConfig(config),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed converts text to a vector.
//
// A vector whose length differs from the configured dimensions is rejected with
// embedder.ErrDimensionMismatch.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) == 0 {
		return nil, ErrNoEmbedding
	}

	vec := resp.Data[0].Embedding
	if len(vec) != c.dimensions {
		return nil, fmt.Errorf("%w: model %s returned %d values, want %d",
			embedder.ErrDimensionMismatch, c.model, len(vec), c.dimensions)
	}

	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out, nil
}

// Dimensions returns the vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Close is retained for interface compatibility; the SDK client holds no resources.
func (c *Client) Close() error {
	return nil
}
