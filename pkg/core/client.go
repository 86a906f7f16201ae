package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hibiki-ai/hibiki-go/pkg/embedder"
	embedcache "github.com/hibiki-ai/hibiki-go/pkg/embedder/cache"
	"github.com/hibiki-ai/hibiki-go/pkg/embedder/hash"
	openaiEmbedder "github.com/hibiki-ai/hibiki-go/pkg/embedder/openai"
	"github.com/hibiki-ai/hibiki-go/pkg/llm"
	anthropicLLM "github.com/hibiki-ai/hibiki-go/pkg/llm/anthropic"
	openaiLLM "github.com/hibiki-ai/hibiki-go/pkg/llm/openai"
	"github.com/hibiki-ai/hibiki-go/pkg/storage"
	chromemStore "github.com/hibiki-ai/hibiki-go/pkg/storage/chromem"
	"github.com/hibiki-ai/hibiki-go/pkg/storage/oceanbase"
	postgresStore "github.com/hibiki-ai/hibiki-go/pkg/storage/postgres"
	sqliteStore "github.com/hibiki-ai/hibiki-go/pkg/storage/sqlite"
)

// Client is the main Hibiki client.
//
// It builds the language models, embedder and vector store described by a
// Config, wires them into a Runner and owns their lifecycle.
//
// The client is thread-safe and can be used concurrently from multiple goroutines.
//
// Example usage:
//
//	config, _ := core.LoadConfigFromEnv()
//	client, _ := core.NewClient(config)
//	defer client.Close()
//
//	history := &core.ConversationHistory{}
//	history.Append(core.SpeakerAgent, client.Greeting("Aya"))
//	result, err := client.Converse(ctx, "user_001", history, "I'm tired today")
type Client struct {
	// config contains the client configuration (nil for NewClientWithComponents).
	config *Config

	// store is the long-term memory store.
	store MemoryStore

	// planner is the guidance model.
	planner llm.Provider

	// responder is the persona model.
	responder llm.Provider

	// runner executes the pipeline.
	runner *Runner

	closeOnce sync.Once
	closeErr  error
}

// NewClient creates a new Hibiki client.
//
// The client is initialized with:
//   - Embedding provider (OpenAI or hash), optionally behind a ristretto cache
//   - Vector store (SQLite, PostgreSQL, OceanBase or chromem)
//   - Planner and responder models (OpenAI-compatible providers or Anthropic)
//
// Parameters:
//   - cfg: Configuration containing model, embedding and storage settings
//   - opts: Extra runner options (e.g., WithObserver); they override values from cfg
//
// Returns a new Client instance, or an error if initialization fails.
func NewClient(cfg *Config, opts ...RunnerOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	emb, err := initEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}

	vs, err := initStorage(cfg.VectorStore, emb.Dimensions())
	if err != nil {
		_ = emb.Close()
		return nil, err
	}

	store, err := NewVectorMemoryStore(vs, emb, &VectorMemoryStoreConfig{
		SearchLimit: cfg.Pipeline.SearchLimit,
		MinScore:    cfg.Pipeline.MinScore,
	})
	if err != nil {
		_ = vs.Close()
		_ = emb.Close()
		return nil, err
	}

	planner, err := initLLM(cfg.Planner)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	responder, err := initLLM(cfg.Responder)
	if err != nil {
		_ = planner.Close()
		_ = store.Close()
		return nil, err
	}

	runnerOpts := append([]RunnerOption{
		WithPlanningTemperature(cfg.Planner.Temperature),
		WithResponseTemperature(cfg.Responder.Temperature),
		WithPersonaName(cfg.Pipeline.PersonaName),
		WithStageTimeout(time.Duration(cfg.Pipeline.StageTimeout)),
	}, opts...)

	client := NewClientWithComponents(store, planner, responder, runnerOpts...)
	client.config = cfg
	return client, nil
}

// NewClientWithComponents creates a client from already constructed parts.
//
// The client takes ownership of the components and closes them in Close.
func NewClientWithComponents(store MemoryStore, planner, responder llm.Provider, opts ...RunnerOption) *Client {
	return &Client{
		store:     store,
		planner:   planner,
		responder: responder,
		runner:    NewRunner(store, planner, responder, opts...),
	}
}

// Config returns the configuration the client was built from, or nil.
func (c *Client) Config() *Config {
	return c.config
}

// Run executes one pipeline run. See Runner.Run for the result and error contract.
func (c *Client) Run(ctx context.Context, userID, utterance string) (*Result, error) {
	return c.runner.Run(ctx, userID, utterance)
}

// Converse runs the pipeline and records the exchange in history.
//
// The user turn and the agent reply are appended only once a reply exists, so a
// failed run leaves history unchanged. A memory write failure still appends the
// turns and is returned alongside the result.
//
// Parameters:
//   - ctx: Context for cancellation
//   - userID: Opaque user identifier
//   - history: Caller-owned transcript, may be nil
//   - utterance: Current user utterance
//
// Returns the run result and error, as Runner.Run does.
func (c *Client) Converse(ctx context.Context, userID string, history *ConversationHistory, utterance string) (*Result, error) {
	result, err := c.runner.Run(ctx, userID, utterance)
	if result != nil && history != nil {
		history.Append(SpeakerUser, utterance)
		history.Append(SpeakerAgent, result.Reply)
	}
	return result, err
}

// Greeting returns the persona's opening line for a new conversation.
func (c *Client) Greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Hello! How are you feeling today?"
	}
	return fmt.Sprintf(GreetingTemplate, name)
}

// PersonaName returns the name the persona speaks as.
func (c *Client) PersonaName() string {
	return c.runner.PersonaName()
}

// Close closes the models and the memory store. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		var errs []error
		if c.planner != nil {
			errs = append(errs, c.planner.Close())
		}
		if c.responder != nil && c.responder != c.planner {
			errs = append(errs, c.responder.Close())
		}
		if c.store != nil {
			errs = append(errs, c.store.Close())
		}
		c.closeErr = NewMemoryError("Close", errors.Join(errs...))
	})
	return c.closeErr
}

// initStorage initializes the vector store.
func initStorage(cfg VectorStoreConfig, dims int) (storage.VectorStore, error) {
	collection := cfg.Collection
	if collection == "" {
		collection = "memories"
	}

	var (
		store storage.VectorStore
		err   error
	)
	switch cfg.Provider {
	case "sqlite":
		store, err = sqliteStore.NewClient(&sqliteStore.Config{
			DBPath:         cfg.SQLite.DBPath,
			CollectionName: collection,
		})
	case "postgres":
		store, err = postgresStore.NewClient(&postgresStore.Config{
			Host:               cfg.Postgres.Host,
			Port:               cfg.Postgres.Port,
			User:               cfg.Postgres.User,
			Password:           cfg.Postgres.Password,
			DBName:             cfg.Postgres.DBName,
			CollectionName:     collection,
			EmbeddingModelDims: dims,
			SSLMode:            cfg.Postgres.SSLMode,
		})
	case "oceanbase":
		store, err = oceanbase.NewClient(&oceanbase.Config{
			Host:               cfg.OceanBase.Host,
			Port:               cfg.OceanBase.Port,
			User:               cfg.OceanBase.User,
			Password:           cfg.OceanBase.Password,
			DBName:             cfg.OceanBase.DBName,
			CollectionName:     collection,
			EmbeddingModelDims: dims,
		})
	case "chromem":
		store, err = chromemStore.New(&chromemStore.Config{
			PersistDir: cfg.Chromem.PersistDir,
		})
	default:
		return nil, NewMemoryError("initStorage", ErrInvalidConfig)
	}
	if err != nil {
		return nil, NewMemoryError("initStorage", fmt.Errorf("%w: %w", ErrStoreUnavailable, err))
	}
	return store, nil
}

// initLLM initializes one language model.
func initLLM(cfg LLMConfig) (llm.Provider, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL, _ = llmDefaults(cfg.Provider)
	}

	var (
		provider llm.Provider
		err      error
	)
	switch cfg.Provider {
	case "openai", "deepseek", "qwen", "ollama":
		apiKey := cfg.APIKey
		if apiKey == "" && cfg.Provider == "ollama" {
			apiKey = "ollama"
		}
		provider, err = openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  apiKey,
			Model:   cfg.Model,
			BaseURL: baseURL,
		})
	case "anthropic":
		provider, err = anthropicLLM.NewClient(&anthropicLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: baseURL,
		})
	default:
		return nil, NewMemoryError("initLLM", ErrInvalidConfig)
	}
	if err != nil {
		return nil, NewMemoryError("initLLM", err)
	}
	return provider, nil
}

// initEmbedder initializes the embedder, wrapped in a cache when CacheSize > 0.
func initEmbedder(cfg EmbedderConfig) (embedder.Provider, error) {
	var (
		provider embedder.Provider
		err      error
	)
	switch cfg.Provider {
	case "openai":
		provider, err = openaiEmbedder.NewClient(&openaiEmbedder.Config{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Dimensions: cfg.Dimensions,
		})
	case "hash":
		provider = hash.New(cfg.Dimensions)
	default:
		return nil, NewMemoryError("initEmbedder", ErrInvalidConfig)
	}
	if err != nil {
		return nil, NewMemoryError("initEmbedder", fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	if cfg.CacheSize <= 0 {
		return provider, nil
	}

	cached, err := embedcache.New(provider, &embedcache.Config{MaxEntries: cfg.CacheSize})
	if err != nil {
		_ = provider.Close()
		return nil, NewMemoryError("initEmbedder", err)
	}
	return cached, nil
}
