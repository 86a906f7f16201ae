// Package embedder provides the text-to-vector abstraction behind memory search.
//
// The same Provider embeds both the stored exchanges and the search queries, so
// its dimensions must match the vector store's column size.
package embedder

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a provider yields a vector whose length
// differs from its configured dimensions.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Provider defines the interface for embedding providers.
//
// All embedding implementations (OpenAI, hash, cached wrappers) must implement this interface.
type Provider interface {
	// Embed converts a text into a vector of Dimensions() values.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Dimensions returns the vector size produced by this provider.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}
