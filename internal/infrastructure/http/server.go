// Package http provides the HTTP server infrastructure.
// Clean Architecture: Framework/driver layer - outermost circle.
package http

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/usecases"
)

// Assistant is the question-answering pipeline the API exposes.
type Assistant interface {
	Ingest(ctx context.Context, doc *entities.Document) entities.IngestResult
	Answer(ctx context.Context, question string, opts ...usecases.AnswerOption) entities.AnswerResult
	Status(ctx context.Context) entities.Status
}

// DocumentExtractor turns uploaded bytes into a document.
type DocumentExtractor interface {
	LoadBytes(ctx context.Context, data []byte, filename string) (*entities.Document, error)
}

// Config holds the server settings.
type Config struct {
	Addr         string
	AppName      string
	AllowOrigins []string
	// BodyLimit caps uploads in bytes.
	BodyLimit int
}

const (
	defaultBodyLimit  = 50 * 1024 * 1024
	shutdownTimeout   = 5 * time.Second
	requestIDHeader   = "X-Request-ID"
	requestIDLocalKey = "request_id"
)

// Server is the HTTP server for the document QA API.
type Server struct {
	app     *fiber.App
	addr    string
	logger  *slog.Logger
	baseCtx context.Context
}

// NewServer creates the fiber app and registers every route.
func NewServer(assistant Assistant, extractor DocumentExtractor, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.AppName == "" {
		cfg.AppName = "docqa"
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = defaultBodyLimit
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}

	s := &Server{
		addr:    cfg.Addr,
		logger:  logger.With("component", "http"),
		baseCtx: context.Background(),
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		BodyLimit:    cfg.BodyLimit,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // Longer for streaming
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(requestID)
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	api := app.Group("/api")
	NewDocumentHandler(assistant, extractor, s.logger).Register(api)
	NewAskHandler(assistant, s.streamContext, s.logger).Register(api)
	NewHealthHandler(assistant).Register(api)

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the HTTP server until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.baseCtx = ctx

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	}()

	s.logger.Info("docqa server starting", "addr", s.addr)
	return s.app.Listen(s.addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// streamContext outlives the handler, which returns before a stream writer runs.
func (s *Server) streamContext() (context.Context, context.CancelFunc) {
	return context.WithCancel(s.baseCtx)
}

func requestID(c fiber.Ctx) error {
	id := strings.Clone(c.Get(requestIDHeader))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(requestIDHeader, id)
	c.Locals(requestIDLocalKey, id)
	return c.Next()
}

func requestIDFrom(c fiber.Ctx) string {
	id, _ := c.Locals(requestIDLocalKey).(string)
	return id
}
