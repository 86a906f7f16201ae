// Package chromem provides an in-process vector store backed by chromem-go.
//
// chromem-go is a pure Go, embedded vector database. Each namespace gets its own
// collection, so records of one user can never surface in another user's search.
// Data lives in memory unless a persistence directory is configured.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/hibiki-ai/hibiki-go/pkg/storage"
)

const createdAtKey = "created_at"

// Store implements VectorStore on top of chromem-go.
type Store struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// Config contains configuration for the chromem store.
type Config struct {
	// PersistDir enables on-disk persistence when set. Empty keeps everything in memory.
	PersistDir string
}

// New creates a new chromem-backed store.
func New(cfg *Config) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg != nil && cfg.PersistDir != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistDir, false)
		if err != nil {
			return nil, fmt.Errorf("NewChromemStore: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	return &Store{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// collection returns the collection for a namespace, creating it on first use.
func (s *Store) collection(ns storage.Namespace) (*chromem.Collection, error) {
	name := ns.String()

	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	// Embeddings are always supplied by the caller, so no embedding func is needed.
	col, err := s.db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection %q: %w", name, err)
	}

	s.collections[name] = col
	return col, nil
}

// Insert stores a record as a chromem document.
func (s *Store) Insert(ctx context.Context, record *storage.Record) error {
	col, err := s.collection(record.Namespace)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	metadata := map[string]string{
		createdAtKey: createdAt.Format(time.RFC3339Nano),
	}
	for k, v := range record.Metadata {
		if str, ok := v.(string); ok {
			metadata[k] = str
			continue
		}
		if b, err := json.Marshal(v); err == nil {
			metadata[k] = string(b)
		}
	}

	doc := chromem.Document{
		ID:        strconv.FormatInt(record.ID, 10),
		Content:   record.Content,
		Embedding: toFloat32(record.Embedding),
		Metadata:  metadata,
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Search queries the namespace's collection by embedding similarity.
func (s *Store) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Record, error) {
	col, err := s.collection(opts.Namespace)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	// chromem-go requires 0 < nResults <= collection size
	limit := opts.Limit
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	results, err := col.QueryEmbedding(ctx, toFloat32(embedding), limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	records := make([]*storage.Record, 0, len(results))
	for _, result := range results {
		score := float64(result.Similarity)
		if score < opts.MinScore {
			continue
		}

		id, err := strconv.ParseInt(result.ID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("Search: parse id %q: %w", result.ID, err)
		}

		record := &storage.Record{
			ID:        id,
			Namespace: opts.Namespace,
			Content:   result.Content,
			Score:     score,
			Metadata:  make(map[string]interface{}, len(result.Metadata)),
		}
		for k, v := range result.Metadata {
			if k == createdAtKey {
				record.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
				continue
			}
			record.Metadata[k] = v
		}

		records = append(records, record)
	}

	return records, nil
}

// Close releases resources. chromem keeps everything in memory, so there is nothing to close.
func (s *Store) Close() error {
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
