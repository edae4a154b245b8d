// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// PreviewLength is the number of characters of chunk text shown in a Source.
const PreviewLength = 200

// Document represents a source document (PDF, TXT, MD) after text extraction.
type Document struct {
	ID        string
	Name      string
	Path      string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one overlapping word window of a document.
// ID is the 0-based emission index. EndWord is exclusive.
type Chunk struct {
	ID        int
	Text      string
	StartWord int
	EndWord   int
	WordCount int
}

// Metadata returns the positional fields stored next to the chunk's vector.
func (c Chunk) Metadata() ChunkMetadata {
	return ChunkMetadata{
		ChunkID:   c.ID,
		StartWord: c.StartWord,
		EndWord:   c.EndWord,
		WordCount: c.WordCount,
	}
}

// ChunkMetadata is the metadata persisted alongside an index entry.
type ChunkMetadata struct {
	ChunkID   int `json:"chunk_id"`
	StartWord int `json:"start_word"`
	EndWord   int `json:"end_word"`
	WordCount int `json:"word_count"`
}

// IndexEntry is a chunk paired with its embedding, ready for the vector index.
type IndexEntry struct {
	Vector   []float32
	Text     string
	Metadata ChunkMetadata
}

// EntryID returns the index identifier for the entry at the given insertion position.
func EntryID(position int) string {
	return fmt.Sprintf("chunk_%d", position)
}

// RetrievalResult is one search hit. Lower distance means more similar.
// Distance is nil when the backend cannot report one.
type RetrievalResult struct {
	ID       string
	Text     string
	Metadata ChunkMetadata
	Distance *float64
}

// Source attributes part of an answer to a retrieved chunk.
type Source struct {
	ChunkID        int      `json:"chunk_id"`
	TextPreview    string   `json:"text_preview"`
	RelevanceScore *float64 `json:"relevance_score"`
}

// NewSource builds the citation for a retrieval result.
// The preview keeps the first PreviewLength characters and appends "..." when it cut anything.
func NewSource(r RetrievalResult) Source {
	src := Source{
		ChunkID:     r.Metadata.ChunkID,
		TextPreview: preview(r.Text),
	}
	if r.Distance != nil {
		score := 1 - *r.Distance
		src.RelevanceScore = &score
	}
	return src
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength]) + "..."
}

// Outcome classifies how an ingest or answer operation ended.
type Outcome string

const (
	OutcomeIngested             Outcome = "ingested"
	OutcomeAnswered             Outcome = "answered"
	OutcomePartialAnswer        Outcome = "partial_answer"
	OutcomeNotReady             Outcome = "not_ready"
	OutcomeGeneratorUnavailable Outcome = "generator_unavailable"
	OutcomeEmbedderUnavailable  Outcome = "embedder_unavailable"
	OutcomeNoResults            Outcome = "no_results"
	OutcomeExtractionFailed     Outcome = "extraction_failed"
	OutcomeTimedOut             Outcome = "timed_out"
	OutcomeFailed               Outcome = "failed"
)

// IngestResult reports the outcome of a document ingestion.
// On failure the counts are zero.
type IngestResult struct {
	Success        bool    `json:"success"`
	Message        string  `json:"message"`
	ChunkCount     int     `json:"chunk_count"`
	TotalWordCount int     `json:"total_word_count"`
	Outcome        Outcome `json:"outcome"`
	Err            error   `json:"-"`
}

// AnswerResult reports the outcome of a question.
// On failure Answer carries a user-facing message and Sources is empty.
type AnswerResult struct {
	Success       bool     `json:"success"`
	Answer        string   `json:"answer"`
	Sources       []Source `json:"sources"`
	Outcome       Outcome  `json:"outcome"`
	PartialAnswer string   `json:"partial_answer,omitempty"`
	Err           error    `json:"-"`
}

// Status is a snapshot of the pipeline and its backends.
type Status struct {
	Ready              bool   `json:"ready"`
	DocumentName       string `json:"document_name,omitempty"`
	IndexedChunks      int    `json:"indexed_chunks"`
	GeneratorAvailable bool   `json:"generator_available"`
	GeneratorModel     string `json:"generator_model"`
	EmbeddingModel     string `json:"embedding_model"`
}
