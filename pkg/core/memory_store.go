package core

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/hibiki-ai/hibiki-go/pkg/embedder"
	"github.com/hibiki-ai/hibiki-go/pkg/storage"
)

// DefaultSearchLimit is the number of fragments returned by a search when no
// limit is configured.
const DefaultSearchLimit = 10

// MemoryStore is the long-term memory contract used by the pipeline.
//
// Implementations must be safe for concurrent use. Failures of the backend are
// reported as errors wrapping ErrStoreUnavailable; nothing is retried.
type MemoryStore interface {
	// Search returns fragments relevant to query, ranked by the backend.
	// An empty result is not an error.
	Search(ctx context.Context, ns Namespace, query string) ([]Fragment, error)

	// Create appends a new immutable record and returns its key.
	// Writes are not idempotent: repeating a call creates a second record.
	Create(ctx context.Context, ns Namespace, content string) (string, error)

	// Close releases the store's resources.
	Close() error
}

// VectorMemoryStore implements MemoryStore on top of an embedder and a vector store.
//
// Every text is embedded once; search results keep the order the vector store
// returns them in. Keys are snowflake IDs rendered in base 10.
type VectorMemoryStore struct {
	store    storage.VectorStore
	embedder embedder.Provider
	node     *snowflake.Node
	limit    int
	minScore float64
}

// VectorMemoryStoreConfig contains configuration for a VectorMemoryStore.
type VectorMemoryStoreConfig struct {
	// SearchLimit is the maximum number of fragments per search (default 10).
	SearchLimit int

	// MinScore drops results scoring below it (default 0).
	MinScore float64

	// NodeID is the snowflake node number used for keys (default 1).
	NodeID int64
}

// NewVectorMemoryStore creates a MemoryStore backed by a vector store.
//
// Parameters:
//   - store: Vector storage backend (SQLite, PostgreSQL, OceanBase, chromem)
//   - emb: Embedding provider used for both writes and queries
//   - cfg: Optional search configuration, nil uses defaults
//
// Returns the store, or an error if the snowflake node cannot be created.
func NewVectorMemoryStore(store storage.VectorStore, emb embedder.Provider, cfg *VectorMemoryStoreConfig) (*VectorMemoryStore, error) {
	if cfg == nil {
		cfg = &VectorMemoryStoreConfig{}
	}

	limit := cfg.SearchLimit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	nodeID := cfg.NodeID
	if nodeID == 0 {
		nodeID = 1
	}

	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, NewMemoryError("NewVectorMemoryStore", err)
	}

	return &VectorMemoryStore{
		store:    store,
		embedder: emb,
		node:     node,
		limit:    limit,
		minScore: cfg.MinScore,
	}, nil
}

// Search embeds query and returns the matching fragments of the namespace.
func (s *VectorMemoryStore) Search(ctx context.Context, ns Namespace, query string) ([]Fragment, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, storeError("Search", err)
	}

	records, err := s.store.Search(ctx, vec, &storage.SearchOptions{
		Namespace: ns,
		Limit:     s.limit,
		MinScore:  s.minScore,
		Query:     query,
	})
	if err != nil {
		return nil, storeError("Search", err)
	}

	fragments := make([]Fragment, 0, len(records))
	for _, record := range records {
		value := make(map[string]interface{}, len(record.Metadata)+1)
		for k, v := range record.Metadata {
			value[k] = v
		}
		value["content"] = record.Content

		fragments = append(fragments, Fragment{
			Namespace: ns,
			Key:       strconv.FormatInt(record.ID, 10),
			Value:     value,
			Score:     record.Score,
		})
	}

	return fragments, nil
}

// Create embeds content and inserts it as a new record.
func (s *VectorMemoryStore) Create(ctx context.Context, ns Namespace, content string) (string, error) {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		return "", storeError("Create", err)
	}

	id := s.node.Generate().Int64()
	record := &storage.Record{
		ID:        id,
		Namespace: ns,
		Content:   content,
		Embedding: vec,
		Metadata: map[string]interface{}{
			"source": "conversation",
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Insert(ctx, record); err != nil {
		return "", storeError("Create", err)
	}

	return strconv.FormatInt(id, 10), nil
}

// Close closes the vector store and the embedder.
func (s *VectorMemoryStore) Close() error {
	storeErr := s.store.Close()
	embedErr := s.embedder.Close()
	if storeErr != nil {
		return NewMemoryError("Close", storeErr)
	}
	return NewMemoryError("Close", embedErr)
}

// storeError tags a backend failure as ErrStoreUnavailable while keeping the cause.
func storeError(op string, err error) error {
	return NewMemoryError(op, fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
}
