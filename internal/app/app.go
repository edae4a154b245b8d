// Package app wires configuration to adapters and the orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/0xcro3dile/docqa/internal/adapters/embedding"
	"github.com/0xcro3dile/docqa/internal/adapters/llm"
	"github.com/0xcro3dile/docqa/internal/adapters/loader"
	"github.com/0xcro3dile/docqa/internal/adapters/parser"
	"github.com/0xcro3dile/docqa/internal/adapters/vectordb"
	"github.com/0xcro3dile/docqa/internal/config"
	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
	"github.com/0xcro3dile/docqa/internal/domain/usecases"
)

// App owns the orchestrator and every backend it was built from.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Orchestrator *usecases.Orchestrator
	Loader       *loader.MultiLoader

	closers []func() error
}

// Option replaces a backend that Build would otherwise construct from config.
type Option func(*overrides)

type overrides struct {
	embedder  ports.EmbeddingService
	index     ports.VectorIndex
	generator ports.Generator
}

func WithEmbedder(e ports.EmbeddingService) Option {
	return func(o *overrides) { o.embedder = e }
}

func WithIndex(idx ports.VectorIndex) Option {
	return func(o *overrides) { o.index = idx }
}

func WithGenerator(g ports.Generator) Option {
	return func(o *overrides) { o.generator = g }
}

// Build validates cfg and constructs the pipeline. The caller must Close the App.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var ov overrides
	for _, opt := range opts {
		opt(&ov)
	}

	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	chunker, err := usecases.NewChunker(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return nil, err
	}

	embedder := ov.embedder
	if embedder == nil {
		if embedder, err = a.buildEmbedder(); err != nil {
			return nil, err
		}
	}

	index := ov.index
	if index == nil {
		if index, err = a.buildIndex(ctx, embedder.Dimensions()); err != nil {
			return nil, err
		}
	}
	a.closers = append(a.closers, index.Close)

	generator := ov.generator
	if generator == nil {
		generator = llm.NewOllamaLLMAdapter(llm.Config{
			BaseURL:     cfg.Generation.URL,
			Model:       cfg.Generation.Model,
			Temperature: cfg.Generation.Temperature,
			TopP:        cfg.Generation.TopP,
			MaxTokens:   cfg.Generation.MaxTokens,
			Timeout:     cfg.Generation.Timeout,
		}, logger)
	}

	pdfParser, err := a.buildPDFParser(ctx)
	if err != nil {
		return nil, err
	}
	a.Loader = loader.NewMultiLoader(parser.NewTextParser(), pdfParser)

	a.Orchestrator = usecases.NewOrchestrator(chunker, embedder, index, generator,
		logger.With("component", "rag"),
		usecases.WithTopK(cfg.Retrieval.TopK),
		usecases.WithAnswerTimeout(cfg.Generation.Timeout),
		usecases.WithLoader(a.Loader),
	)

	logger.Info("docqa ready",
		"embedding", cfg.Embedding.Type,
		"embedding_model", embedder.ModelName(),
		"vector_store", cfg.VectorStore.Type,
		"llm_model", generator.ModelName(),
	)
	ok = true
	return a, nil
}

func (a *App) buildEmbedder() (ports.EmbeddingService, error) {
	cfg := a.Config.Embedding
	switch cfg.Type {
	case config.EmbeddingOllama:
		return embedding.NewOllamaAdapter(embedding.OllamaConfig{
			BaseURL:     cfg.URL,
			Model:       cfg.Model,
			Dimensions:  cfg.Dimensions,
			Concurrency: cfg.Concurrency,
		}, a.Logger), nil
	case config.EmbeddingHugot:
		h, err := embedding.NewHugotEmbedder(embedding.HugotConfig{
			Model:      cfg.Model,
			ModelDir:   cfg.ModelDir,
			Dimensions: cfg.Dimensions,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("starting hugot embedder: %w", err)
		}
		a.closers = append(a.closers, h.Close)
		return h, nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding type %q", entities.ErrConfiguration, cfg.Type)
	}
}

func (a *App) buildIndex(ctx context.Context, dims int) (ports.VectorIndex, error) {
	cfg := a.Config.VectorStore
	switch cfg.Type {
	case config.StoreMemory:
		return vectordb.NewInMemoryStore(dims), nil
	case config.StoreSQLite:
		return vectordb.NewSQLiteStore(cfg.Path, cfg.Collection, dims, a.Logger)
	case config.StorePGVector:
		return vectordb.NewPGVectorStore(ctx, cfg.DSN, cfg.Collection, dims, a.Logger)
	default:
		return nil, fmt.Errorf("%w: unknown vector store type %q", entities.ErrConfiguration, cfg.Type)
	}
}

func (a *App) buildPDFParser(ctx context.Context) (ports.DocumentParser, error) {
	cfg := a.Config.Extraction
	if cfg.PDFServiceURL == "" && cfg.PDFServiceScript == "" {
		return parser.NewPDFParser(), nil
	}

	p := parser.NewPythonPDFParser(cfg.PDFServiceURL, a.Logger)
	if cfg.PDFServiceScript != "" {
		if err := p.StartService(ctx, cfg.Python, cfg.PDFServiceScript); err != nil {
			return nil, fmt.Errorf("starting PDF service: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		return p, nil
	}
	if !p.IsServiceHealthy(ctx) {
		a.Logger.Warn("PDF service is not reachable yet; PDF uploads will fail until it is", "url", cfg.PDFServiceURL)
	}
	return p, nil
}

// IngestFile loads and ingests the document at path.
func (a *App) IngestFile(ctx context.Context, path string) entities.IngestResult {
	abs, err := filepath.Abs(path)
	if err == nil {
		path = abs
	}
	return a.Orchestrator.IngestFile(ctx, path)
}

// Close releases backends in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
