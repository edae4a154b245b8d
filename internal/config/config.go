// Package config loads docqa settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
)

// Backend names accepted in the config file.
const (
	EmbeddingOllama = "ollama"
	EmbeddingHugot  = "hugot"

	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePGVector = "pgvector"
)

// ChunkingConfig controls how documents are split into word windows.
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	Type        string `yaml:"type"`
	URL         string `yaml:"url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	Concurrency int    `yaml:"concurrency"`
	ModelDir    string `yaml:"model_dir"`
}

// VectorStoreConfig selects and configures the vector index.
type VectorStoreConfig struct {
	Type       string `yaml:"type"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
	DSN        string `yaml:"dsn"`
}

// GenerationConfig configures the language model backend.
type GenerationConfig struct {
	URL         string        `yaml:"url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RetrievalConfig configures answering.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// ExtractionConfig configures text extraction. With neither PDFServiceURL nor
// PDFServiceScript set, PDFs are parsed in process. A script is launched with
// Python at startup and serves on PDFServiceURL (or the default service URL).
type ExtractionConfig struct {
	PDFServiceURL    string `yaml:"pdf_service_url"`
	PDFServiceScript string `yaml:"pdf_service_script"`
	Python           string `yaml:"python"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	WatchDir     string   `yaml:"watch_dir"`
}

// Config is the root application configuration structure.
type Config struct {
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generation  GenerationConfig  `yaml:"generation"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Extraction  ExtractionConfig  `yaml:"extraction"`
	Server      ServerConfig      `yaml:"server"`
}

// Load reads a config from path. If the file does not exist, defaults are used.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("%w: parsing %s: %w", entities.ErrConfiguration, path, err)
			}
		}
	}
	applyEnv(cfg)
	applyConfigDefaults(cfg)
	return cfg, nil
}

// Default returns the built-in configuration. Embedding model and
// dimensions are filled in per backend by Load.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{Size: 500, Overlap: 50},
		Embedding: EmbeddingConfig{
			Type:        EmbeddingOllama,
			URL:         "http://127.0.0.1:11434",
			Concurrency: 4,
			ModelDir:    "./models",
		},
		VectorStore: VectorStoreConfig{
			Type:       StoreSQLite,
			Path:       "./data",
			Collection: "documents",
		},
		Generation: GenerationConfig{
			URL:         "http://127.0.0.1:11434",
			Model:       "mistral",
			Temperature: 0.7,
			TopP:        0.9,
			MaxTokens:   500,
			Timeout:     300 * time.Second,
		},
		Retrieval: RetrievalConfig{TopK: 5},
		Server: ServerConfig{
			Addr:         ":8080",
			AllowOrigins: []string{"*"},
		},
	}
}

func applyConfigDefaults(cfg *Config) {
	cfg.Embedding.Type = strings.ToLower(cfg.Embedding.Type)
	cfg.VectorStore.Type = strings.ToLower(cfg.VectorStore.Type)

	switch cfg.Embedding.Type {
	case EmbeddingOllama:
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "nomic-embed-text"
		}
		if cfg.Embedding.Dimensions == 0 {
			cfg.Embedding.Dimensions = 768
		}
	case EmbeddingHugot:
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
		if cfg.Embedding.Dimensions == 0 {
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "documents"
	}
}

// applyEnv lets DOCQA_* variables override file values.
func applyEnv(cfg *Config) {
	cfg.Embedding.Type = envOrDefault("DOCQA_EMBEDDING_TYPE", cfg.Embedding.Type)
	cfg.Embedding.URL = envOrDefault("DOCQA_EMBEDDING_URL", envOrDefault("DOCQA_OLLAMA_URL", cfg.Embedding.URL))
	cfg.Embedding.Model = envOrDefault("DOCQA_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimensions = envOrDefaultInt("DOCQA_EMBEDDING_DIMENSIONS", cfg.Embedding.Dimensions)

	cfg.VectorStore.Type = envOrDefault("DOCQA_VECTOR_STORE", cfg.VectorStore.Type)
	cfg.VectorStore.Path = envOrDefault("DOCQA_DATA_PATH", cfg.VectorStore.Path)
	cfg.VectorStore.Collection = envOrDefault("DOCQA_COLLECTION", cfg.VectorStore.Collection)
	cfg.VectorStore.DSN = envOrDefault("DOCQA_DATABASE_URL", cfg.VectorStore.DSN)

	cfg.Generation.URL = envOrDefault("DOCQA_LLM_URL", envOrDefault("DOCQA_OLLAMA_URL", cfg.Generation.URL))
	cfg.Generation.Model = envOrDefault("DOCQA_LLM_MODEL", cfg.Generation.Model)

	cfg.Retrieval.TopK = envOrDefaultInt("DOCQA_TOP_K", cfg.Retrieval.TopK)
	cfg.Extraction.PDFServiceURL = envOrDefault("DOCQA_PDF_SERVICE_URL", cfg.Extraction.PDFServiceURL)
	cfg.Extraction.PDFServiceScript = envOrDefault("DOCQA_PDF_SERVICE_SCRIPT", cfg.Extraction.PDFServiceScript)
	cfg.Extraction.Python = envOrDefault("DOCQA_PYTHON", cfg.Extraction.Python)
	cfg.Server.Addr = envOrDefault("DOCQA_ADDR", cfg.Server.Addr)
}

// Validate reports every invalid setting. The error wraps entities.ErrConfiguration.
func (c *Config) Validate() error {
	var problems []error
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	if c.Chunking.Size <= 0 {
		add("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		add("chunking.overlap must be in [0, size), got %d", c.Chunking.Overlap)
	}

	switch c.Embedding.Type {
	case EmbeddingOllama:
		if c.Embedding.URL == "" {
			add("embedding.url is required for ollama")
		}
	case EmbeddingHugot:
	default:
		add("embedding.type must be %q or %q, got %q", EmbeddingOllama, EmbeddingHugot, c.Embedding.Type)
	}
	if c.Embedding.Dimensions <= 0 {
		add("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}

	switch c.VectorStore.Type {
	case StoreMemory:
	case StoreSQLite:
		if c.VectorStore.Path == "" {
			add("vector_store.path is required for sqlite")
		}
	case StorePGVector:
		if c.VectorStore.DSN == "" {
			add("vector_store.dsn is required for pgvector")
		}
	default:
		add("vector_store.type must be one of memory, sqlite, pgvector, got %q", c.VectorStore.Type)
	}

	if c.Generation.URL == "" {
		add("generation.url is required")
	}
	if c.Generation.Model == "" {
		add("generation.model is required")
	}
	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2 {
		add("generation.temperature must be in [0, 2], got %v", c.Generation.Temperature)
	}
	if c.Generation.TopP <= 0 || c.Generation.TopP > 1 {
		add("generation.top_p must be in (0, 1], got %v", c.Generation.TopP)
	}
	if c.Generation.MaxTokens <= 0 {
		add("generation.max_tokens must be positive, got %d", c.Generation.MaxTokens)
	}
	if c.Generation.Timeout <= 0 {
		add("generation.timeout must be positive, got %s", c.Generation.Timeout)
	}
	if c.Retrieval.TopK <= 0 {
		add("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", entities.ErrConfiguration, errors.Join(problems...))
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return fallback
}
