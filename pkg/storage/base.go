// Package storage provides interfaces and types for vector storage backends.
//
// It defines the VectorStore interface that all storage implementations must satisfy,
// along with the record type and search options. Every record lives inside a
// namespace, and backends never return records from a namespace other than the
// one a query names.
package storage

import (
	"context"
	"strings"
	"time"
)

// Namespace identifies an isolated memory space.
//
// It is an ordered tuple of path segments, for example {"memories", "user_001"}.
type Namespace []string

// String renders the namespace as a dotted path ("memories.user_001").
//
// Backends use this form as the value of their namespace column or as the
// suffix of a collection name.
func (ns Namespace) String() string {
	return strings.Join(ns, ".")
}

// Record represents a memory record stored in the vector store.
type Record struct {
	// ID is the unique identifier of the record, assigned by the caller.
	ID int64

	// Namespace is the memory space the record belongs to.
	Namespace Namespace

	// Content is the text content of the record.
	Content string

	// Embedding is the vector embedding for similarity search.
	Embedding []float64

	// Metadata contains additional structured information.
	Metadata map[string]interface{}

	// CreatedAt is when the record was created.
	CreatedAt time.Time

	// Score is the similarity score from search operations.
	Score float64
}

// VectorStore defines the interface for vector storage backends.
//
// All storage implementations (SQLite, PostgreSQL, OceanBase, chromem) must implement this interface.
type VectorStore interface {
	// Insert inserts a record into the store.
	//
	// Records are immutable once inserted; there is no update path.
	Insert(ctx context.Context, record *Record) error

	// Search performs vector similarity search inside one namespace.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - embedding: Query embedding vector
	//   - opts: Search options (Namespace, Limit, MinScore)
	//
	// Returns matching records sorted by similarity (highest first).
	// An empty result is not an error.
	Search(ctx context.Context, embedding []float64, opts *SearchOptions) ([]*Record, error)

	// Close closes the store and releases resources.
	Close() error
}

// SearchOptions contains options for search operations.
type SearchOptions struct {
	// Namespace restricts results to a single memory space. Required.
	Namespace Namespace

	// Limit sets the maximum number of results to return.
	Limit int

	// MinScore sets the minimum similarity score for results.
	MinScore float64

	// Query is the original query text.
	// Backends that support keyword matching may use it; others ignore it.
	Query string
}
