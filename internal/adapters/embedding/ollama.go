// Package embedding provides embedding adapters.
// Clean Architecture: These are adapters that implement ports.EmbeddingService.
// They know about Ollama and hugot specifics but the domain layer doesn't.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.EmbeddingService = (*OllamaAdapter)(nil)

// Default configuration values.
const (
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaModel       = "nomic-embed-text"
	DefaultOllamaTimeout     = 60 * time.Second
	DefaultOllamaConcurrency = 4
)

// OllamaConfig holds configuration for the Ollama embedding adapter.
type OllamaConfig struct {
	// BaseURL is the Ollama API base URL (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model (default: nomic-embed-text).
	Model string

	// Dimensions is the expected vector size. Zero learns it from the first response.
	Dimensions int

	// Concurrency bounds parallel requests in EmbedBatch (default: 4).
	Concurrency int

	// Timeout is the per-request timeout (default: 60s).
	Timeout time.Duration
}

// OllamaAdapter implements ports.EmbeddingService using Ollama API.
type OllamaAdapter struct {
	baseURL     string
	model       string
	concurrency int
	dims        atomic.Int64
	client      *http.Client
	logger      *slog.Logger
}

// NewOllamaAdapter creates a new Ollama embedding adapter.
func NewOllamaAdapter(cfg OllamaConfig, logger *slog.Logger) *OllamaAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultOllamaConcurrency
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultOllamaTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	a := &OllamaAdapter{
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		concurrency: cfg.Concurrency,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With("component", "embedding", "model", cfg.Model),
	}
	a.dims.Store(int64(cfg.Dimensions))
	return a
}

// ollamaEmbedRequest is the Ollama API request format.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is the Ollama API response format.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := ollamaEmbedRequest{
		Model:  a.model,
		Prompt: text,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Ollama: %w: %w", entities.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	a.logger.Debug("embedding response", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: Ollama returned status %d", entities.ErrBackendUnavailable, resp.StatusCode)
	}

	var embedResp ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w: %w", entities.ErrBackendUnavailable, err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: Ollama returned an empty embedding", entities.ErrBackendUnavailable)
	}

	if err := a.checkDimensions(len(embedResp.Embedding)); err != nil {
		return nil, err
	}
	return embedResp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts with bounded parallelism.
// Results keep input order; the first failure cancels the rest.
func (a *OllamaAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			emb, err := a.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			embeddings[i] = emb
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	a.logger.Debug("embedded batch", "texts", len(texts), "dimensions", a.Dimensions())
	return embeddings, nil
}

// Dimensions returns the vector size, or 0 before the first response when unconfigured.
func (a *OllamaAdapter) Dimensions() int {
	return int(a.dims.Load())
}

// ModelName returns the embedding model.
func (a *OllamaAdapter) ModelName() string {
	return a.model
}

func (a *OllamaAdapter) checkDimensions(got int) error {
	if a.dims.CompareAndSwap(0, int64(got)) {
		return nil
	}
	if want := a.Dimensions(); want != got {
		return fmt.Errorf("%w: model %s returned %d dimensions, expected %d",
			entities.ErrConfiguration, a.model, got, want)
	}
	return nil
}
