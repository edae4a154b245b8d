// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
// Failures wrap entities.ErrBackendUnavailable.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates one embedding per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the fixed length of every vector this service produces.
	Dimensions() int

	// ModelName identifies the embedding model.
	ModelName() string
}

// Generator produces text from a language model.
type Generator interface {
	// IsAvailable reports whether the backend answers a liveness probe.
	// It never returns an error and is bounded by a short timeout.
	IsAvailable(ctx context.Context) bool

	// Generate streams the completion for prompt. The channel is finite and
	// closed after the final token; it cannot be restarted.
	Generate(ctx context.Context, prompt string) (<-chan StreamToken, error)

	// ModelName identifies the generation model.
	ModelName() string
}

// StreamToken is a single fragment of a streaming generation.
// A token with Err set is always the last one on the channel.
type StreamToken struct {
	Content string
	Done    bool
	Err     error
}

// VectorIndex stores one document's chunk embeddings and answers nearest-neighbour queries.
type VectorIndex interface {
	// Reset leaves the collection existing, empty and queryable.
	// Deleting the old collection is best effort.
	Reset(ctx context.Context) error

	// Add inserts entries with IDs chunk_<position>. An empty slice is a no-op.
	Add(ctx context.Context, entries []entities.IndexEntry) error

	// Search returns at most k results ordered by ascending distance.
	Search(ctx context.Context, query []float32, k int) ([]entities.RetrievalResult, error)

	// Count returns the number of entries in the collection.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}

// DocumentLoader reads and parses documents from various formats.
type DocumentLoader interface {
	// Load reads a document from the given path.
	Load(ctx context.Context, path string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// DocumentParser extracts text from document bytes.
// Failures wrap entities.ErrExtraction.
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf", "txt").
	SupportedFormats() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}
