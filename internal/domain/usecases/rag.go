package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

// Readiness is the orchestrator's lifecycle state.
type Readiness int

const (
	Uninitialized Readiness = iota
	Ready
)

func (r Readiness) String() string {
	if r == Ready {
		return "ready"
	}
	return "uninitialized"
}

// Defaults for answering.
const (
	DefaultTopK          = 5
	DefaultAnswerTimeout = 300 * time.Second
)

// Orchestrator runs the RAG pipeline over a single document: ingestion replaces the
// indexed collection, answering retrieves from it and streams a generated answer.
//
// Locking: mu guards state and the collection. Ingest holds it exclusively for
// reset+add; Answer holds it shared only around the search. ingestMu serializes
// whole ingestions so embedding never runs under mu.
type Orchestrator struct {
	chunker   *Chunker
	embedder  ports.EmbeddingService
	index     ports.VectorIndex
	generator ports.Generator
	loader    ports.DocumentLoader
	logger    *slog.Logger

	topK          int
	answerTimeout time.Duration

	ingestMu sync.Mutex
	mu       sync.RWMutex
	state    Readiness
	document string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTopK sets the default number of chunks retrieved per question.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithAnswerTimeout bounds the generation phase of Answer.
func WithAnswerTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.answerTimeout = d
		}
	}
}

// WithLoader enables IngestFile.
func WithLoader(l ports.DocumentLoader) Option {
	return func(o *Orchestrator) {
		o.loader = l
	}
}

// NewOrchestrator wires the pipeline. It starts Uninitialized.
func NewOrchestrator(
	chunker *Chunker,
	embedder ports.EmbeddingService,
	index ports.VectorIndex,
	generator ports.Generator,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	o := &Orchestrator{
		chunker:       chunker,
		embedder:      embedder,
		index:         index,
		generator:     generator,
		logger:        logger,
		topK:          DefaultTopK,
		answerTimeout: DefaultAnswerTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Readiness reports the current lifecycle state.
func (o *Orchestrator) Readiness() Readiness {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Status snapshots readiness, collection size and backend availability.
func (o *Orchestrator) Status(ctx context.Context) entities.Status {
	o.mu.RLock()
	status := entities.Status{
		Ready:          o.state == Ready,
		DocumentName:   o.document,
		GeneratorModel: o.generator.ModelName(),
		EmbeddingModel: o.embedder.ModelName(),
	}
	count, err := o.index.Count(ctx)
	o.mu.RUnlock()

	if err != nil {
		o.logger.Warn("counting indexed chunks", "error", err)
	} else {
		status.IndexedChunks = count
	}
	status.GeneratorAvailable = o.generator.IsAvailable(ctx)
	return status
}

func (o *Orchestrator) setState(s Readiness, document string) {
	o.state = s
	o.document = document
	o.logger.Debug("state changed", "state", s.String())
}

func (o *Orchestrator) recoverPanic(op string, onPanic func(error)) {
	if r := recover(); r != nil {
		err := fmt.Errorf("%s: unexpected panic: %v", op, r)
		o.logger.Error("recovered panic", "op", op, "panic", r)
		onPanic(err)
	}
}
