package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
)

// Ingest replaces the indexed collection with the chunks of doc.
//
// Chunking and embedding happen before the collection is touched, so a failure
// there leaves the previous document queryable. A failure while resetting or
// inserting leaves the orchestrator Uninitialized.
func (o *Orchestrator) Ingest(ctx context.Context, doc *entities.Document) (result entities.IngestResult) {
	defer o.recoverPanic("ingest", func(err error) {
		result = ingestFailure(err)
	})

	o.ingestMu.Lock()
	defer o.ingestMu.Unlock()

	if doc == nil {
		return ingestFailure(fmt.Errorf("%w: no document", entities.ErrExtraction))
	}
	log := o.logger.With("document", doc.Name)

	chunks, totalWords := o.chunker.Split(doc.Content)
	if len(chunks) == 0 {
		log.Warn("document has no extractable text")
		return ingestFailure(fmt.Errorf("%w: document contains no extractable text", entities.ErrExtraction))
	}
	log.Debug("chunked document", "chunks", len(chunks), "words", totalWords)

	entries, err := o.embedChunks(ctx, chunks)
	if err != nil {
		log.Error("embedding chunks", "error", err)
		res := ingestFailure(err)
		if errors.Is(err, entities.ErrBackendUnavailable) {
			res.Outcome = entities.OutcomeEmbedderUnavailable
		}
		return res
	}

	if err := o.replaceCollection(ctx, doc.Name, entries); err != nil {
		log.Error("replacing collection", "error", err)
		return ingestFailure(err)
	}

	log.Info("document ingested", "chunks", len(chunks), "words", totalWords)
	return entities.IngestResult{
		Success:        true,
		Message:        fmt.Sprintf("Successfully processed document with %d chunks.", len(chunks)),
		ChunkCount:     len(chunks),
		TotalWordCount: totalWords,
		Outcome:        entities.OutcomeIngested,
	}
}

// IngestFile loads the document at path and ingests it.
func (o *Orchestrator) IngestFile(ctx context.Context, path string) entities.IngestResult {
	if o.loader == nil {
		return ingestFailure(fmt.Errorf("%w: no document loader configured", entities.ErrConfiguration))
	}
	doc, err := o.loader.Load(ctx, path)
	if err != nil {
		o.logger.Error("loading document", "path", path, "error", err)
		return ingestFailure(err)
	}
	return o.Ingest(ctx, doc)
}

func (o *Orchestrator) embedChunks(ctx context.Context, chunks []entities.Chunk) ([]entities.IndexEntry, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if err := checkVectors(vectors, len(chunks), o.embedder.Dimensions()); err != nil {
		return nil, err
	}

	entries := make([]entities.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = entities.IndexEntry{
			Vector:   vectors[i],
			Text:     c.Text,
			Metadata: c.Metadata(),
		}
	}
	return entries, nil
}

// checkVectors rejects batches the index could not store consistently.
// dims <= 0 means the embedder does not declare a size; all vectors must still agree.
func checkVectors(vectors [][]float32, want, dims int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: embedder returned %d vectors for %d chunks", entities.ErrBackendUnavailable, len(vectors), want)
	}
	if dims <= 0 && len(vectors) > 0 {
		dims = len(vectors[0])
	}
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dims {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", entities.ErrBackendUnavailable, i, len(v), dims)
		}
	}
	return nil
}

func (o *Orchestrator) replaceCollection(ctx context.Context, name string, entries []entities.IndexEntry) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	// Only a verified collection is Ready, even if the index panics below.
	o.setState(Uninitialized, "")

	if err := o.index.Reset(ctx); err != nil {
		return fmt.Errorf("resetting index: %w", err)
	}
	if err := o.index.Add(ctx, entries); err != nil {
		return fmt.Errorf("adding entries: %w", err)
	}
	count, err := o.index.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting entries: %w", err)
	}
	if count != len(entries) {
		return fmt.Errorf("index holds %d entries after inserting %d", count, len(entries))
	}

	o.setState(Ready, name)
	return nil
}

func ingestFailure(err error) entities.IngestResult {
	outcome := entities.OutcomeFailed
	if errors.Is(err, entities.ErrExtraction) {
		outcome = entities.OutcomeExtractionFailed
	}
	return entities.IngestResult{
		Success: false,
		Message: "Error processing document: " + err.Error(),
		Outcome: outcome,
		Err:     err,
	}
}
