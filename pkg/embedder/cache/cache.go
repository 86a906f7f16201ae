// Package cache provides an embedder wrapper that memoizes embeddings in a
// ristretto cache.
//
// Retrieval embeds every utterance, and users often repeat themselves, so
// caching the query vector saves one embedding round trip per repeated text.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/hibiki-ai/hibiki-go/pkg/embedder"
)

// DefaultMaxEntries is used when Config.MaxEntries is zero.
const DefaultMaxEntries = 10000

// Config contains configuration for the cached embedder.
type Config struct {
	// MaxEntries is the approximate number of embeddings kept in memory.
	MaxEntries int64
}

// Embedder wraps another embedder.Provider with a ristretto cache.
type Embedder struct {
	next  embedder.Provider
	cache *ristretto.Cache
}

// New creates a cached embedder in front of next.
func New(next embedder.Provider, cfg *Config) (*Embedder, error) {
	maxEntries := int64(DefaultMaxEntries)
	if cfg != nil && cfg.MaxEntries > 0 {
		maxEntries = cfg.MaxEntries
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
		// every entry costs 1, so MaxCost counts entries
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("NewCachedEmbedder: %w", err)
	}

	return &Embedder{next: next, cache: c}, nil
}

// Embed returns the cached vector for text, or embeds it and caches the result.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if v, ok := e.cache.Get(text); ok {
		if vec, ok := v.([]float64); ok {
			return vec, nil
		}
	}

	vec, err := e.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(text, vec, 1)
	return vec, nil
}

// Wait blocks until pending cache writes are applied.
func (e *Embedder) Wait() {
	e.cache.Wait()
}

// Dimensions returns the wrapped embedder's dimensions.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}

// Close closes the cache and the wrapped embedder.
func (e *Embedder) Close() error {
	e.cache.Close()
	return e.next.Close()
}
