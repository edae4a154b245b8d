// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
// They contain NO framework code, NO external dependencies - just pure business logic.
package usecases

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
)

// Default chunking parameters, in words.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// Chunker splits text into overlapping word windows.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the window parameters. The stride size-overlap must be positive.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", entities.ErrConfiguration, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", entities.ErrConfiguration, overlap)
	}
	if size-overlap <= 0 {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", entities.ErrConfiguration, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the window length in words.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the number of words shared by consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk canonicalizes text and returns its word windows.
func (c *Chunker) Chunk(text string) []entities.Chunk {
	chunks, _ := c.Split(text)
	return chunks
}

// Split is Chunk that also reports the canonical word count.
func (c *Chunker) Split(text string) ([]entities.Chunk, int) {
	words := strings.Fields(Canonicalize(text))
	n := len(words)
	if n == 0 {
		return []entities.Chunk{}, 0
	}

	step := c.size - c.overlap
	chunks := make([]entities.Chunk, 0, (n+step-1)/step)
	for start := 0; start < n; start += step {
		end := min(start+c.size, n)
		chunks = append(chunks, entities.Chunk{
			ID:        len(chunks),
			Text:      strings.Join(words[start:end], " "),
			StartWord: start,
			EndWord:   end,
			WordCount: end - start,
		})
	}
	return chunks, n
}

// Canonicalize drops characters outside the safe set, collapses whitespace runs
// to a single space and trims the ends.
func Canonicalize(text string) string {
	filtered := strings.Map(func(r rune) rune {
		if isSafeRune(r) {
			return r
		}
		return -1
	}, text)
	return strings.Join(strings.Fields(filtered), " ")
}

// isSafeRune keeps word characters, whitespace and common punctuation.
func isSafeRune(r rune) bool {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsNumber(r), unicode.Is(unicode.Mn, r):
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(`_-.,!?;:()[]"`, r)
}
