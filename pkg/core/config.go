package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	anthropicLLM "github.com/hibiki-ai/hibiki-go/pkg/llm/anthropic"
	openaiLLM "github.com/hibiki-ai/hibiki-go/pkg/llm/openai"
)

// Config contains the complete configuration for a Hibiki client.
//
// It includes settings for:
//   - Planner: the guidance language model
//   - Responder: the persona language model
//   - Embedder: vector generation for memory search
//   - VectorStore: long-term memory persistence
//   - Pipeline: persona name, search limits and stage timeout
//
// Example:
//
//	config := core.DefaultConfig()
//	config.Planner.APIKey = "sk-..."
//	config.Responder.APIKey = "sk-..."
//	config.VectorStore.SQLite.DBPath = "./hibiki.db"
type Config struct {
	// Planner contains the guidance model configuration.
	Planner LLMConfig `json:"planner" yaml:"planner"`

	// Responder contains the persona model configuration.
	Responder LLMConfig `json:"responder" yaml:"responder"`

	// Embedder contains embedding provider configuration.
	Embedder EmbedderConfig `json:"embedder" yaml:"embedder"`

	// VectorStore contains vector store configuration.
	VectorStore VectorStoreConfig `json:"vector_store" yaml:"vector_store"`

	// Pipeline contains pipeline behaviour settings.
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
}

// LLMConfig contains configuration for one language model.
//
// Supported providers: openai, deepseek, qwen, ollama (all through the OpenAI
// compatible API) and anthropic.
type LLMConfig struct {
	// Provider is the LLM provider name.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the provider. Not required for ollama.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model name to use (e.g., "gpt-4o", "deepseek-chat").
	Model string `json:"model" yaml:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Temperature is the sampling temperature used by the stage this model serves.
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// EmbedderConfig contains configuration for the embedding provider.
//
// Supported providers: openai, hash (offline, deterministic).
type EmbedderConfig struct {
	// Provider is the embedding provider name.
	Provider string `json:"provider" yaml:"provider"`

	// APIKey is the API key for the embedding provider.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the embedding model name (e.g., "text-embedding-ada-002").
	Model string `json:"model" yaml:"model"`

	// BaseURL is the base URL for the API (optional, uses provider default if empty).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// Dimensions is the dimension of the embedding vectors (e.g., 1536, 256).
	Dimensions int `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`

	// CacheSize is the number of query embeddings kept in memory. Zero disables the cache.
	CacheSize int64 `json:"cache_size,omitempty" yaml:"cache_size,omitempty"`
}

// VectorStoreConfig contains configuration for the vector store.
//
// Supported providers: sqlite, postgres, oceanbase, chromem. Only the section
// matching Provider is used.
type VectorStoreConfig struct {
	// Provider is the vector store provider name.
	Provider string `json:"provider" yaml:"provider"`

	// Collection is the table (or collection prefix) holding memories.
	Collection string `json:"collection" yaml:"collection"`

	SQLite    SQLiteConfig    `json:"sqlite" yaml:"sqlite"`
	Postgres  PostgresConfig  `json:"postgres" yaml:"postgres"`
	OceanBase OceanBaseConfig `json:"oceanbase" yaml:"oceanbase"`
	Chromem   ChromemConfig   `json:"chromem" yaml:"chromem"`
}

// SQLiteConfig contains SQLite settings.
type SQLiteConfig struct {
	// DBPath is the path to the database file.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// PostgresConfig contains PostgreSQL + pgvector settings.
type PostgresConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// OceanBaseConfig contains OceanBase settings.
type OceanBaseConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	DBName   string `json:"db_name" yaml:"db_name"`
}

// ChromemConfig contains settings of the embedded chromem store.
type ChromemConfig struct {
	// PersistDir enables on-disk persistence when set.
	PersistDir string `json:"persist_dir,omitempty" yaml:"persist_dir,omitempty"`
}

// PipelineConfig contains pipeline behaviour settings.
type PipelineConfig struct {
	// PersonaName is the name the persona speaks as.
	PersonaName string `json:"persona_name" yaml:"persona_name"`

	// SearchLimit is the maximum number of memories retrieved per utterance.
	SearchLimit int `json:"search_limit" yaml:"search_limit"`

	// MinScore drops memories scoring below it.
	MinScore float64 `json:"min_score" yaml:"min_score"`

	// StageTimeout bounds every store and model call. Zero disables it.
	StageTimeout Duration `json:"stage_timeout" yaml:"stage_timeout"`
}

// Duration is a time.Duration written as a Go duration string ("30s") in
// JSON and YAML.
type Duration time.Duration

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = Duration(n)
	return nil
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns a configuration using OpenAI models, the hash embedder
// and a local SQLite database.
func DefaultConfig() *Config {
	return &Config{
		Planner: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: DefaultPlanningTemperature,
		},
		Responder: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: DefaultResponseTemperature,
		},
		Embedder: EmbedderConfig{
			Provider:   "hash",
			Dimensions: 256,
			CacheSize:  10000,
		},
		VectorStore: VectorStoreConfig{
			Provider:   "sqlite",
			Collection: "memories",
			SQLite: SQLiteConfig{
				DBPath: "./hibiki.db",
			},
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "postgres",
				DBName:  "hibiki",
				SSLMode: "disable",
			},
			OceanBase: OceanBaseConfig{
				Host:   "127.0.0.1",
				Port:   2881,
				User:   "root@sys",
				DBName: "hibiki",
			},
		},
		Pipeline: PipelineConfig{
			PersonaName: DefaultPersonaName,
			SearchLimit: DefaultSearchLimit,
		},
	}
}

// LoadConfigFromEnv loads configuration from environment variables.
//
// The function:
//  1. Searches for .env or .env.example files (up to 5 directory levels up)
//  2. Loads environment variables from the found file
//  3. Parses environment variables on top of DefaultConfig
//
// Supported environment variables:
//   - LLM_PROVIDER, LLM_API_KEY, LLM_MODEL, LLM_BASE_URL (shared by both models)
//   - PLANNER_MODEL, RESPONDER_MODEL, PLANNER_TEMPERATURE, RESPONDER_TEMPERATURE
//   - EMBEDDING_PROVIDER, EMBEDDING_API_KEY, EMBEDDING_MODEL, EMBEDDING_BASE_URL,
//     EMBEDDING_DIMS, EMBEDDING_CACHE_SIZE
//   - DATABASE_PROVIDER (sqlite, postgres, oceanbase, chromem), MEMORY_COLLECTION
//   - SQLITE_PATH, CHROMEM_PERSIST_DIR
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_USER, POSTGRES_PASSWORD, etc.
//   - OCEANBASE_HOST, OCEANBASE_PORT, OCEANBASE_USER, OCEANBASE_PASSWORD, etc.
//   - PERSONA_NAME, MEMORY_SEARCH_LIMIT, MEMORY_MIN_SCORE, STAGE_TIMEOUT
//
// Returns a Config instance, or an error if a numeric or duration value cannot be parsed.
//
// Example:
//
//	config, err := core.LoadConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
func LoadConfigFromEnv() (*Config, error) {
	// Use FindEnvFile to locate .env file (supports upward search)
	envPath, found := FindEnvFile()
	if found {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	return configFromEnv()
}

// configFromEnv reads the process environment without touching .env files.
func configFromEnv() (*Config, error) {
	config := DefaultConfig()
	p := &envParser{}

	llmProvider := getEnvOrDefault("LLM_PROVIDER", "openai")
	baseURL, model := llmDefaults(llmProvider)
	baseURL = getEnvOrDefault("LLM_BASE_URL", baseURL)
	model = getEnvOrDefault("LLM_MODEL", model)
	apiKey := os.Getenv("LLM_API_KEY")

	config.Planner = LLMConfig{
		Provider:    llmProvider,
		APIKey:      apiKey,
		Model:       getEnvOrDefault("PLANNER_MODEL", model),
		BaseURL:     baseURL,
		Temperature: p.float("PLANNER_TEMPERATURE", DefaultPlanningTemperature),
	}
	config.Responder = LLMConfig{
		Provider:    llmProvider,
		APIKey:      apiKey,
		Model:       getEnvOrDefault("RESPONDER_MODEL", model),
		BaseURL:     baseURL,
		Temperature: p.float("RESPONDER_TEMPERATURE", DefaultResponseTemperature),
	}

	// Without an embedding key the offline hash embedder is the only usable default.
	embedderAPIKey := os.Getenv("EMBEDDING_API_KEY")
	defaultEmbedder := "hash"
	if embedderAPIKey != "" {
		defaultEmbedder = "openai"
	}
	config.Embedder = EmbedderConfig{
		Provider:  getEnvOrDefault("EMBEDDING_PROVIDER", defaultEmbedder),
		APIKey:    embedderAPIKey,
		Model:     os.Getenv("EMBEDDING_MODEL"),
		BaseURL:   os.Getenv("EMBEDDING_BASE_URL"),
		CacheSize: int64(p.int("EMBEDDING_CACHE_SIZE", int(config.Embedder.CacheSize))),
	}
	defaultDims := 256
	if config.Embedder.Provider == "openai" {
		defaultDims = 1536
	}
	config.Embedder.Dimensions = p.int("EMBEDDING_DIMS", defaultDims)

	vs := &config.VectorStore
	vs.Provider = getEnvOrDefault("DATABASE_PROVIDER", vs.Provider)
	vs.Collection = getEnvOrDefault("MEMORY_COLLECTION", vs.Collection)
	vs.SQLite.DBPath = getEnvOrDefault("SQLITE_PATH", vs.SQLite.DBPath)
	vs.Chromem.PersistDir = os.Getenv("CHROMEM_PERSIST_DIR")
	vs.Postgres = PostgresConfig{
		Host:     getEnvOrDefault("POSTGRES_HOST", vs.Postgres.Host),
		Port:     p.int("POSTGRES_PORT", vs.Postgres.Port),
		User:     getEnvOrDefault("POSTGRES_USER", vs.Postgres.User),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		DBName:   getEnvOrDefault("POSTGRES_DATABASE", vs.Postgres.DBName),
		SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", vs.Postgres.SSLMode),
	}
	vs.OceanBase = OceanBaseConfig{
		Host:     getEnvOrDefault("OCEANBASE_HOST", vs.OceanBase.Host),
		Port:     p.int("OCEANBASE_PORT", vs.OceanBase.Port),
		User:     getEnvOrDefault("OCEANBASE_USER", vs.OceanBase.User),
		Password: os.Getenv("OCEANBASE_PASSWORD"),
		DBName:   getEnvOrDefault("OCEANBASE_DATABASE", vs.OceanBase.DBName),
	}

	config.Pipeline = PipelineConfig{
		PersonaName:  getEnvOrDefault("PERSONA_NAME", DefaultPersonaName),
		SearchLimit:  p.int("MEMORY_SEARCH_LIMIT", DefaultSearchLimit),
		MinScore:     p.float("MEMORY_MIN_SCORE", 0),
		StageTimeout: Duration(p.duration("STAGE_TIMEOUT", 0)),
	}

	if p.err != nil {
		return nil, NewMemoryError("LoadConfigFromEnv", p.err)
	}
	return config, nil
}

// llmDefaults returns the default base URL and model of an LLM provider.
func llmDefaults(provider string) (baseURL, model string) {
	switch provider {
	case "deepseek":
		return openaiLLM.DeepSeekBaseURL, "deepseek-chat"
	case "qwen":
		return openaiLLM.QwenBaseURL, "qwen-plus"
	case "ollama":
		return openaiLLM.OllamaBaseURL, "llama3.1"
	case "anthropic":
		return "", anthropicLLM.DefaultModel
	default:
		return "", openaiLLM.DefaultModel
	}
}

// LoadConfigFromEnvFile loads configuration from a specific .env file.
//
// Parameters:
//   - envPath: Path to the .env file
//
// Returns a Config instance, or an error if loading fails.
func LoadConfigFromEnvFile(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}
	return configFromEnv()
}

// LoadConfigFromJSON loads configuration from a JSON file.
//
// Fields missing from the file keep their DefaultConfig values.
//
// Parameters:
//   - path: Path to the JSON configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON", err)
	}

	return config, nil
}

// LoadConfigFromYAML loads configuration from a YAML file.
//
// Fields missing from the file keep their DefaultConfig values.
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns a Config instance, or an error if loading or parsing fails.
func LoadConfigFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, NewMemoryError("LoadConfigFromYAML", err)
	}

	return config, nil
}

// LoadConfigFromFile loads a JSON or YAML file, chosen by extension.
func LoadConfigFromFile(path string) (*Config, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return LoadConfigFromYAML(path)
	case ".json":
		return LoadConfigFromJSON(path)
	default:
		return nil, NewMemoryError("LoadConfigFromFile", fmt.Errorf("%w: unsupported config file %q", ErrInvalidConfig, path))
	}
}

var (
	llmProviders      = map[string]bool{"openai": true, "deepseek": true, "qwen": true, "ollama": true, "anthropic": true}
	embedderProviders = map[string]bool{"openai": true, "hash": true}
	storeProviders    = map[string]bool{"sqlite": true, "postgres": true, "oceanbase": true, "chromem": true}
)

// Validate validates the configuration.
//
// Checks that:
//   - both models name a supported provider, with an API key unless it is ollama
//   - the embedder and vector store providers are supported
//   - 0 <= planner temperature < responder temperature <= 2
//   - search limit, minimum score and stage timeout are not negative
//
// Returns an error wrapping ErrInvalidConfig if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return NewMemoryError("Validate", fmt.Errorf("%w: %s", ErrInvalidConfig, err))
	}
	return nil
}

func (c *Config) validate() error {
	for _, m := range []struct {
		name string
		cfg  LLMConfig
	}{{"planner", c.Planner}, {"responder", c.Responder}} {
		if !llmProviders[m.cfg.Provider] {
			return fmt.Errorf("%s: unsupported provider %q", m.name, m.cfg.Provider)
		}
		if m.cfg.APIKey == "" && m.cfg.Provider != "ollama" {
			return fmt.Errorf("%s: api key is required", m.name)
		}
	}

	if !embedderProviders[c.Embedder.Provider] {
		return fmt.Errorf("embedder: unsupported provider %q", c.Embedder.Provider)
	}
	if c.Embedder.Provider == "openai" && c.Embedder.APIKey == "" {
		return fmt.Errorf("embedder: api key is required")
	}

	if !storeProviders[c.VectorStore.Provider] {
		return fmt.Errorf("vector store: unsupported provider %q", c.VectorStore.Provider)
	}

	planning, responding := c.Planner.Temperature, c.Responder.Temperature
	if planning < 0 || responding > 2 || planning >= responding {
		return fmt.Errorf("temperatures must satisfy 0 <= planner (%.2f) < responder (%.2f) <= 2", planning, responding)
	}

	if c.Pipeline.SearchLimit < 0 {
		return fmt.Errorf("pipeline: negative search limit")
	}
	if c.Pipeline.MinScore < 0 {
		return fmt.Errorf("pipeline: negative min score")
	}
	if c.Pipeline.StageTimeout < 0 {
		return fmt.Errorf("pipeline: negative stage timeout")
	}

	return nil
}

// getEnvOrDefault gets an environment variable or returns the default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envParser parses typed environment values and keeps the first error.
type envParser struct {
	err error
}

func (p *envParser) int(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *envParser) float(key string, def float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
	}
}

// FindEnvFile searches for .env or .env.example files.
//
// The search:
//  1. Checks the current directory
//  2. Searches up to 5 directory levels up
//  3. Returns the first .env or .env.example file found
//
// Returns:
//   - path: Path to the found file (empty if not found)
//   - found: True if a file was found, false otherwise
func FindEnvFile() (string, bool) {
	if _, err := os.Stat(".env"); err == nil {
		return ".env", true
	}
	if _, err := os.Stat(".env.example"); err == nil {
		return ".env.example", true
	}

	dir, _ := os.Getwd()
	for i := 0; i < 5; i++ {
		envPath := filepath.Join(dir, ".env")
		envExamplePath := filepath.Join(dir, ".env.example")

		if _, err := os.Stat(envPath); err == nil {
			return envPath, true
		}
		if _, err := os.Stat(envExamplePath); err == nil {
			return envExamplePath, true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", false
}
