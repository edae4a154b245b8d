package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docqa/internal/adapters/vectordb"
	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
	"github.com/0xcro3dile/docqa/internal/domain/usecases"
)

type fakeAssistant struct {
	mu        sync.Mutex
	ingested  []*entities.Document
	questions []string

	ingestResult entities.IngestResult
	answer       entities.AnswerResult
	status       entities.Status
}

func (f *fakeAssistant) Ingest(_ context.Context, doc *entities.Document) entities.IngestResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, doc)
	return f.ingestResult
}

func (f *fakeAssistant) Answer(_ context.Context, question string, _ ...usecases.AnswerOption) entities.AnswerResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions = append(f.questions, question)
	return f.answer
}

func (f *fakeAssistant) Status(context.Context) entities.Status {
	return f.status
}

type fakeExtractor struct {
	err error
}

func (f fakeExtractor) LoadBytes(_ context.Context, data []byte, filename string) (*entities.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entities.Document{Name: filename, Content: string(data)}, nil
}

func newTestServer(a *fakeAssistant, ex fakeExtractor) *fiber.App {
	return NewServer(a, ex, Config{}, nil).App()
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestUpload_Success(t *testing.T) {
	a := &fakeAssistant{ingestResult: entities.IngestResult{
		Success: true, Message: "Successfully processed document with 2 chunks.", ChunkCount: 2, TotalWordCount: 12,
		Outcome: entities.OutcomeIngested,
	}}
	app := newTestServer(a, fakeExtractor{})

	resp, err := app.Test(uploadRequest(t, "document", "notes.txt", "hello world"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
	res := decode[entities.IngestResult](t, resp)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.ChunkCount)

	require.Len(t, a.ingested, 1)
	assert.Equal(t, "notes.txt", a.ingested[0].Name)
	assert.Equal(t, "hello world", a.ingested[0].Content)
	assert.Len(t, a.ingested[0].ID, 36, "uploads get a uuid")
}

func TestUpload_MissingField(t *testing.T) {
	app := newTestServer(&fakeAssistant{}, fakeExtractor{})

	resp, err := app.Test(uploadRequest(t, "file", "notes.txt", "x"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpload_ExtractionFailure(t *testing.T) {
	a := &fakeAssistant{}
	app := newTestServer(a, fakeExtractor{err: errors.New("unsupported file type")})

	resp, err := app.Test(uploadRequest(t, "document", "slides.pptx", "x"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	res := decode[entities.IngestResult](t, resp)
	assert.False(t, res.Success)
	assert.Equal(t, entities.OutcomeExtractionFailed, res.Outcome)
	assert.Contains(t, res.Message, "unsupported file type")
	assert.Empty(t, a.ingested, "nothing reaches the pipeline")
}

func TestUpload_IngestFailure(t *testing.T) {
	a := &fakeAssistant{ingestResult: entities.IngestResult{
		Message: "Error processing document: embedding failed", Outcome: entities.OutcomeEmbedderUnavailable,
	}}
	app := newTestServer(a, fakeExtractor{})

	resp, err := app.Test(uploadRequest(t, "document", "notes.txt", "x"))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAsk(t *testing.T) {
	score := 0.9
	a := &fakeAssistant{answer: entities.AnswerResult{
		Success: true,
		Answer:  "Berlin.",
		Sources: []entities.Source{{ChunkID: 0, TextPreview: "The conference is in Berlin", RelevanceScore: &score}},
		Outcome: entities.OutcomeAnswered,
	}}
	app := newTestServer(a, fakeExtractor{})

	req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(`{"question":"Where?","top_k":3}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[entities.AnswerResult](t, resp)
	assert.Equal(t, "Berlin.", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.InDelta(t, 0.9, *res.Sources[0].RelevanceScore, 1e-9)
	assert.Equal(t, []string{"Where?"}, a.questions)
}

func TestAsk_Validation(t *testing.T) {
	app := newTestServer(&fakeAssistant{}, fakeExtractor{})

	for _, body := range []string{`{"question":"   "}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/api/ask", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestAsk_StatusByOutcome(t *testing.T) {
	tests := []struct {
		outcome entities.Outcome
		want    int
	}{
		{entities.OutcomeAnswered, http.StatusOK},
		{entities.OutcomePartialAnswer, http.StatusOK},
		{entities.OutcomeNoResults, http.StatusOK},
		{entities.OutcomeNotReady, http.StatusConflict},
		{entities.OutcomeGeneratorUnavailable, http.StatusServiceUnavailable},
		{entities.OutcomeEmbedderUnavailable, http.StatusServiceUnavailable},
		{entities.OutcomeTimedOut, http.StatusGatewayTimeout},
		{entities.OutcomeFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			assert.Equal(t, tt.want, answerStatus(tt.outcome))
		})
	}
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (e constEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, "")
	}
	return out, nil
}

func (constEmbedder) Dimensions() int   { return 3 }
func (constEmbedder) ModelName() string { return "const" }

type fragmentGenerator struct{ fragments []string }

func (fragmentGenerator) IsAvailable(context.Context) bool { return true }
func (fragmentGenerator) ModelName() string                { return "fragments" }

func (g fragmentGenerator) Generate(context.Context, string) (<-chan ports.StreamToken, error) {
	ch := make(chan ports.StreamToken, len(g.fragments)+1)
	for _, f := range g.fragments {
		ch <- ports.StreamToken{Content: f}
	}
	ch <- ports.StreamToken{Done: true}
	close(ch)
	return ch, nil
}

// newStreamingAssistant returns an orchestrator holding a small ingested document
// whose generator streams fragments.
func newStreamingAssistant(t *testing.T, fragments ...string) *usecases.Orchestrator {
	t.Helper()
	chunker, err := usecases.NewChunker(4, 1)
	require.NoError(t, err)
	orch := usecases.NewOrchestrator(chunker, constEmbedder{}, vectordb.NewInMemoryStore(3),
		fragmentGenerator{fragments: fragments}, nil)
	res := orch.Ingest(context.Background(), &entities.Document{ID: "d", Name: "trip.txt", Content: "the team meets in Berlin"})
	require.True(t, res.Success, res.Message)
	return orch
}

func TestStream(t *testing.T) {
	app := NewServer(newStreamingAssistant(t, "Ber", "lin."), fakeExtractor{}, Config{}, nil).App()

	req := httptest.NewRequest(http.MethodGet, "/api/ask/stream?q=Where%3F&k=1", nil)
	resp, err := app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	events := strings.Split(strings.TrimSpace(string(raw)), "\n\n")
	require.Len(t, events, 3)
	assert.Equal(t, `data: {"content":"Ber"}`, events[0])
	assert.Equal(t, `data: {"content":"lin."}`, events[1])

	var done streamDone
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(events[2], "data: ")), &done))
	assert.True(t, done.Done)
	assert.True(t, done.Success)
	assert.Equal(t, entities.OutcomeAnswered, done.Outcome)
	assert.Equal(t, "Berlin.", done.Answer)
	require.Len(t, done.Sources, 1, "k=1 limits the sources")
	assert.Equal(t, 0, done.Sources[0].ChunkID)
}

func TestStream_NotReady(t *testing.T) {
	a := &fakeAssistant{answer: entities.AnswerResult{
		Answer:  usecases.MsgNotReady,
		Sources: []entities.Source{},
		Outcome: entities.OutcomeNotReady,
	}}
	app := newTestServer(a, fakeExtractor{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ask/stream?q=hi", nil),
		fiber.TestConfig{Timeout: 5 * time.Second})
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"done":true`)
	assert.Contains(t, string(raw), `"success":false`)
	assert.Contains(t, string(raw), usecases.MsgNotReady)
}

func TestStream_RequiresQuery(t *testing.T) {
	app := newTestServer(&fakeAssistant{}, fakeExtractor{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/ask/stream", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	a := &fakeAssistant{status: entities.Status{
		Ready: true, DocumentName: "notes.txt", IndexedChunks: 4,
		GeneratorAvailable: false, GeneratorModel: "mistral", EmbeddingModel: "nomic-embed-text",
	}}
	app := newTestServer(a, fakeExtractor{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[entities.Status](t, resp)
	assert.Equal(t, a.status, status)
}

func TestRequestIDIsEchoed(t *testing.T) {
	app := newTestServer(&fakeAssistant{}, fakeExtractor{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, "abc-123", resp.Header.Get(requestIDHeader))
}
