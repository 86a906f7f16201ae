// Package oceanbase provides an OceanBase (MySQL protocol) implementation for vector storage.
package oceanbase

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/hibiki-ai/hibiki-go/pkg/storage"
)

// Client is an OceanBase client.
type Client struct {
	db             *sql.DB
	collectionName string
	dimensions     int
}

// Config contains OceanBase configuration.
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	CollectionName     string
	EmbeddingModelDims int
}

// NewClient creates a new OceanBase client.
func NewClient(cfg *Config) (*Client, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("NewOceanBaseClient: %w", err)
	}

	client := &Client{
		db:             db,
		collectionName: cfg.CollectionName,
		dimensions:     cfg.EmbeddingModelDims,
	}

	if err := client.initTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			namespace VARCHAR(255) NOT NULL,
			document LONGTEXT,
			embedding VECTOR(%d),
			metadata JSON,
			hash VARCHAR(32),
			created_at DATETIME(6),
			INDEX idx_namespace (namespace)
		)
	`, c.collectionName, c.dimensions)

	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert inserts a record. The content goes to the 'document' column.
func (c *Client) Insert(ctx context.Context, record *storage.Record) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, namespace, document, embedding, metadata, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.collectionName)

	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = c.db.ExecContext(ctx, query,
		record.ID,
		record.Namespace.String(),
		record.Content,
		vectorToString(record.Embedding),
		string(metadataJSON),
		generateHash(record.Content),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Search performs vector search ordered by cosine distance.
func (c *Client) Search(ctx context.Context, embedding []float64, opts *storage.SearchOptions) ([]*storage.Record, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT id, document, metadata, created_at, cosine_distance(embedding, ?) AS distance
		FROM %s
		WHERE namespace = ? AND cosine_distance(embedding, ?) <= ?
		ORDER BY distance ASC, id ASC
		LIMIT ?
	`, c.collectionName)

	vec := vectorToString(embedding)
	rows, err := c.db.QueryContext(ctx, query, vec, opts.Namespace.String(), vec, 1-opts.MinScore, limit)
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*storage.Record
	for rows.Next() {
		var record storage.Record
		var metadata []byte
		var distance float64

		if err := rows.Scan(&record.ID, &record.Content, &metadata, &record.CreatedAt, &distance); err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		record.Score = 1 - distance
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &record.Metadata); err != nil {
				return nil, fmt.Errorf("parse metadata: %w", err)
			}
		}
		record.Namespace = opts.Namespace
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	return records, nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// vectorToString converts a float64 slice to an OceanBase VECTOR literal.
func vectorToString(vector []float64) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// generateHash generates an MD5 hash for content.
func generateHash(content string) string {
	hash := md5.Sum([]byte(content))
	return hex.EncodeToString(hash[:])
}
