package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.EmbeddingService = (*HugotEmbedder)(nil)

const (
	DefaultHugotModel      = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultHugotModelDir   = "./models"
	DefaultHugotDimensions = 384
	DefaultHugotBatchSize  = 32
)

// HugotConfig configures the in-process sentence transformer.
type HugotConfig struct {
	Model      string
	ModelDir   string
	Dimensions int
	BatchSize  int
}

// HugotEmbedder runs a sentence transformer in-process with the pure Go backend,
// so ingestion works without an embedding server.
type HugotEmbedder struct {
	model     string
	dims      int
	batchSize int
	logger    *slog.Logger

	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

// PrepareModel downloads the model into dir if it isn't there yet and returns its path.
func PrepareModel(modelName, dir string) (string, error) {
	modelPath := filepath.Join(dir, strings.ReplaceAll(modelName, "/", "_"))

	// Check if model exists, if not download it
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create model directory: %w", err)
		}
		downloadOptions := hugot.NewDownloadOptions()
		downloadOptions.OnnxFilePath = "onnx/model.onnx"
		downloadedPath, err := hugot.DownloadModel(modelName, dir, downloadOptions)
		if err != nil {
			return "", fmt.Errorf("failed to download model: %w: %w", entities.ErrBackendUnavailable, err)
		}
		modelPath = downloadedPath
	}

	return modelPath, nil
}

// NewHugotEmbedder prepares the model and starts a hugot session.
// Close must be called to release the session.
func NewHugotEmbedder(cfg HugotConfig, logger *slog.Logger) (*HugotEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultHugotModel
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = DefaultHugotModelDir
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultHugotDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultHugotBatchSize
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("component", "embedding", "model", cfg.Model)

	modelPath, err := PrepareModel(cfg.Model, cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "docqa-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	logger.Info("Loaded embedding model", "path", modelPath)
	return &HugotEmbedder{
		model:     cfg.Model,
		dims:      cfg.Dimensions,
		batchSize: cfg.BatchSize,
		logger:    logger,
		session:   session,
		pipeline:  pipeline,
	}, nil
}

// Embed generates an embedding for a single text.
func (h *HugotEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := h.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch runs the pipeline over texts in fixed-size batches.
func (h *HugotEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.pipeline == nil {
		return nil, fmt.Errorf("%w: embedder is closed", entities.ErrBackendUnavailable)
	}

	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += h.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+h.batchSize, len(texts))

		result, err := h.pipeline.RunPipeline(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to generate embeddings: %w", err)
		}
		if len(result.Embeddings) != end-start {
			return nil, fmt.Errorf("expected %d embeddings, got %d", end-start, len(result.Embeddings))
		}
		for _, emb := range result.Embeddings {
			if len(emb) != h.dims {
				return nil, fmt.Errorf("%w: model %s returned %d dimensions, expected %d",
					entities.ErrConfiguration, h.model, len(emb), h.dims)
			}
		}
		embeddings = append(embeddings, result.Embeddings...)
	}
	return embeddings, nil
}

func (h *HugotEmbedder) Dimensions() int {
	return h.dims
}

func (h *HugotEmbedder) ModelName() string {
	return h.model
}

// Close destroys the hugot session.
func (h *HugotEmbedder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == nil {
		return nil
	}
	err := h.session.Destroy()
	h.session = nil
	h.pipeline = nil
	return err
}
