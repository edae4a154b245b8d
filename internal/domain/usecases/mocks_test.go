package usecases

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

// mockEmbedder implements ports.EmbeddingService for testing
type mockEmbedder struct {
	embedFn    func(text string) ([]float32, error)
	batchErr   error
	embedCalls atomic.Int32
	batchCalls atomic.Int32
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if m.embedFn != nil {
		return m.embedFn(text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		emb := []float32{0.1, 0.2, 0.3}
		if m.embedFn != nil {
			var err error
			if emb, err = m.embedFn(texts[i]); err != nil {
				return nil, err
			}
		}
		result[i] = emb
	}
	return result, nil
}

func (m *mockEmbedder) Dimensions() int   { return 3 }
func (m *mockEmbedder) ModelName() string { return "mock-embed" }

// mockIndex implements ports.VectorIndex for testing.
// Search returns entries in insertion order with distances 0.1, 0.2, ...
type mockIndex struct {
	mu          sync.Mutex
	entries     []entities.IndexEntry
	resetErr    error
	addErr      error
	addPanic    bool
	searchEmpty bool
	resetCalls  atomic.Int32
	searchCalls atomic.Int32
}

func (m *mockIndex) Reset(ctx context.Context) error {
	m.resetCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.entries = nil
	return nil
}

func (m *mockIndex) Add(ctx context.Context, entries []entities.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addPanic {
		panic("index write failed")
	}
	if m.addErr != nil {
		return m.addErr
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *mockIndex) Search(ctx context.Context, query []float32, k int) ([]entities.RetrievalResult, error) {
	m.searchCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchEmpty {
		return []entities.RetrievalResult{}, nil
	}
	var results []entities.RetrievalResult
	for i, e := range m.entries {
		if i >= k {
			break
		}
		d := float64(i+1) / 10
		results = append(results, entities.RetrievalResult{
			ID:       entities.EntryID(i),
			Text:     e.Text,
			Metadata: e.Metadata,
			Distance: &d,
		})
	}
	return results, nil
}

func (m *mockIndex) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *mockIndex) Close() error { return nil }

// mockGenerator implements ports.Generator for testing
type mockGenerator struct {
	unavailable bool
	tokens      []ports.StreamToken
	genErr      error
	// hang keeps the stream open after tokens until ctx is done.
	hang bool

	mu            sync.Mutex
	lastPrompt    string
	probeCalls    atomic.Int32
	generateCalls atomic.Int32
}

func (m *mockGenerator) IsAvailable(ctx context.Context) bool {
	m.probeCalls.Add(1)
	return !m.unavailable
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	m.generateCalls.Add(1)
	m.mu.Lock()
	m.lastPrompt = prompt
	m.mu.Unlock()
	if m.genErr != nil {
		return nil, m.genErr
	}

	ch := make(chan ports.StreamToken)
	go func() {
		defer close(ch)
		for _, tok := range m.tokens {
			select {
			case ch <- tok:
			case <-ctx.Done():
				return
			}
		}
		if m.hang {
			<-ctx.Done()
			select {
			case ch <- ports.StreamToken{Done: true, Err: ctx.Err()}:
			default:
			}
		}
	}()
	return ch, nil
}

func (m *mockGenerator) ModelName() string { return "mock-llm" }

func (m *mockGenerator) prompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

// mockLoader implements ports.DocumentLoader for testing
type mockLoader struct {
	docs map[string]*entities.Document
}

func (m *mockLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	doc, ok := m.docs[path]
	if !ok {
		return nil, errors.Join(entities.ErrExtraction, errors.New("file not found"))
	}
	return doc, nil
}

func (m *mockLoader) SupportedExtensions() []string { return []string{".txt"} }

var (
	_ ports.EmbeddingService = (*mockEmbedder)(nil)
	_ ports.VectorIndex      = (*mockIndex)(nil)
	_ ports.Generator        = (*mockGenerator)(nil)
	_ ports.DocumentLoader   = (*mockLoader)(nil)
)
