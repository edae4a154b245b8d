package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/usecases"
)

// DocumentHandler handles document uploads.
type DocumentHandler struct {
	assistant Assistant
	extractor DocumentExtractor
	logger    *slog.Logger
}

// NewDocumentHandler creates a new upload handler.
func NewDocumentHandler(assistant Assistant, extractor DocumentExtractor, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{assistant: assistant, extractor: extractor, logger: logger}
}

// Register sets up document routes.
func (h *DocumentHandler) Register(router fiber.Router) {
	router.Post("/documents", h.Upload)
}

// Upload extracts the multipart "document" file and replaces the indexed document with it.
func (h *DocumentHandler) Upload(c fiber.Ctx) error {
	fh, err := c.FormFile("document")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": `multipart field "document" is required`})
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot read upload"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot read upload"})
	}

	log := h.logger.With("request_id", requestIDFrom(c), "file", fh.Filename, "bytes", len(data))

	doc, err := h.extractor.LoadBytes(c.Context(), data, fh.Filename)
	if err != nil {
		log.Warn("extraction failed", "error", err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(entities.IngestResult{
			Success: false,
			Message: "Error processing document: " + err.Error(),
			Outcome: entities.OutcomeExtractionFailed,
		})
	}
	doc.ID = uuid.NewString()

	res := h.assistant.Ingest(c.Context(), doc)
	if !res.Success {
		log.Warn("ingestion failed", "outcome", res.Outcome, "error", res.Err)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	}
	log.Info("document uploaded", "document_id", doc.ID, "chunks", res.ChunkCount)
	return c.JSON(res)
}

// AskHandler answers questions, in one response or as a server-sent event stream.
type AskHandler struct {
	assistant Assistant
	streamCtx func() (context.Context, context.CancelFunc)
	logger    *slog.Logger
}

// NewAskHandler creates a new ask handler. streamCtx supplies the context
// for streamed answers, which run after the handler has returned.
func NewAskHandler(assistant Assistant, streamCtx func() (context.Context, context.CancelFunc), logger *slog.Logger) *AskHandler {
	return &AskHandler{assistant: assistant, streamCtx: streamCtx, logger: logger}
}

// Register sets up ask routes.
func (h *AskHandler) Register(router fiber.Router) {
	router.Post("/ask", h.Ask)
	router.Get("/ask/stream", h.Stream)
}

type askRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// Ask answers a JSON question.
func (h *AskHandler) Ask(c fiber.Ctx) error {
	var body askRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Question) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "question is required"})
	}

	var opts []usecases.AnswerOption
	if body.TopK > 0 {
		opts = append(opts, usecases.WithK(body.TopK))
	}

	res := h.assistant.Answer(c.Context(), body.Question, opts...)
	h.logger.Debug("answered", "request_id", requestIDFrom(c), "outcome", res.Outcome, "sources", len(res.Sources))
	return c.Status(answerStatus(res.Outcome)).JSON(res)
}

// streamDone is the final event of an answer stream.
type streamDone struct {
	Done    bool              `json:"done"`
	Success bool              `json:"success"`
	Outcome entities.Outcome  `json:"outcome"`
	Answer  string            `json:"answer"`
	Sources []entities.Source `json:"sources"`
}

// Stream answers ?q= as server-sent events: one {"content": ...} event per
// fragment, then a final event carrying the full result and its sources.
func (h *AskHandler) Stream(c fiber.Ctx) error {
	// copied: the stream writer runs after fiber recycles the request buffers
	question := strings.Clone(strings.TrimSpace(c.Query("q")))
	if question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Query required"})
	}

	var opts []usecases.AnswerOption
	if k, err := strconv.Atoi(c.Query("k")); err == nil && k > 0 {
		opts = append(opts, usecases.WithK(k))
	}

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	log := h.logger.With("request_id", requestIDFrom(c))
	ctx, cancel := h.streamCtx()

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		opts = append(opts, usecases.WithFragmentHandler(func(fragment string) {
			if err := sendSSE(w, fiber.Map{"content": fragment}); err != nil {
				log.Debug("client went away", "error", err)
				cancel()
			}
		}))

		res := h.assistant.Answer(ctx, question, opts...)
		if err := sendSSE(w, streamDone{
			Done:    true,
			Success: res.Success,
			Outcome: res.Outcome,
			Answer:  res.Answer,
			Sources: res.Sources,
		}); err != nil {
			log.Debug("final event not delivered", "error", err)
		}
	})
}

func sendSSE(w *bufio.Writer, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	return w.Flush()
}

// answerStatus maps an answer outcome to an HTTP status. Answers that carry
// text for the user, including "nothing found", are 200.
func answerStatus(outcome entities.Outcome) int {
	switch outcome {
	case entities.OutcomeNotReady:
		return fiber.StatusConflict
	case entities.OutcomeGeneratorUnavailable, entities.OutcomeEmbedderUnavailable:
		return fiber.StatusServiceUnavailable
	case entities.OutcomeTimedOut:
		return fiber.StatusGatewayTimeout
	case entities.OutcomeFailed:
		return fiber.StatusInternalServerError
	default:
		return fiber.StatusOK
	}
}

// HealthHandler reports pipeline status.
type HealthHandler struct {
	assistant Assistant
}

func NewHealthHandler(assistant Assistant) *HealthHandler {
	return &HealthHandler{assistant: assistant}
}

func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
}

// Health returns readiness and backend availability.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	return c.JSON(h.assistant.Status(c.Context()))
}
