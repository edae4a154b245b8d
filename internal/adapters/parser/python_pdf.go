// Package parser provides document parsing adapters.
// Clean Architecture: Adapters implementing ports.DocumentParser.
// PDFs are read in-process or by an external Python service.
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.DocumentParser = (*PythonPDFParser)(nil)

const DefaultPDFServiceURL = "http://localhost:8081"

// PythonPDFParser implements ports.DocumentParser by posting PDFs to an HTTP
// extraction service, optionally launched and owned by the parser.
// Dependency Inversion: Usecases depend on DocumentParser interface, not this.
type PythonPDFParser struct {
	serviceURL string
	client     *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan error
}

// NewPythonPDFParser creates a new PDF parser that calls Python service.
func NewPythonPDFParser(serviceURL string, logger *slog.Logger) *PythonPDFParser {
	if serviceURL == "" {
		serviceURL = DefaultPDFServiceURL
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PythonPDFParser{
		serviceURL: serviceURL,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With("component", "pdf-service"),
	}
}

// parseResponse is the Python service response format.
type parseResponse struct {
	Text    string `json:"text"`
	Pages   int    `json:"pages"`
	Library string `json:"library,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Parse extracts text from PDF bytes via Python service.
func (p *PythonPDFParser) Parse(ctx context.Context, data []byte, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serviceURL+"/parse", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: calling PDF service: %w", entities.ErrExtraction, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %w", entities.ErrExtraction, err)
	}

	var result parseResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("%w: decoding response (status %d): %w", entities.ErrExtraction, resp.StatusCode, err)
	}

	if result.Error != "" {
		return "", fmt.Errorf("%w: PDF parse error in %s: %s", entities.ErrExtraction, filename, result.Error)
	}

	p.logger.Debug("parsed PDF", "file", filename, "pages", result.Pages, "library", result.Library)
	return result.Text, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PythonPDFParser) SupportedFormats() []string {
	return []string{"pdf"}
}

// DefaultPython is the interpreter used to launch a PDF service script.
const DefaultPython = "python3"

const (
	serviceStartTimeout = 10 * time.Second
	healthPollInterval  = 200 * time.Millisecond
)

// StartService launches script with the python interpreter and blocks until the
// service answers /health. The process runs until Close, independent of ctx,
// which only bounds the wait.
func (p *PythonPDFParser) StartService(ctx context.Context, python, script string) error {
	if python == "" {
		python = DefaultPython
	}
	if _, err := os.Stat(script); err != nil {
		return fmt.Errorf("%w: PDF service script: %w", entities.ErrConfiguration, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("PDF service already started")
	}

	cmd := exec.Command(python, script)
	out := &lineLogger{logger: p.logger, script: filepath.Base(script)}
	cmd.Stdout = out
	cmd.Stderr = out
	// children of the script may keep the output pipe open after a kill
	cmd.WaitDelay = 2 * time.Second
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: starting %s %s: %w", entities.ErrBackendUnavailable, python, script, err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()
	p.cmd, p.exited = cmd, exited

	waitCtx, cancel := context.WithTimeout(ctx, serviceStartTimeout)
	defer cancel()
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for !p.IsServiceHealthy(waitCtx) {
		select {
		case err := <-exited:
			p.cmd, p.exited = nil, nil
			return fmt.Errorf("%w: PDF service exited before becoming healthy: %v", entities.ErrBackendUnavailable, err)
		case <-waitCtx.Done():
			p.stopLocked()
			return fmt.Errorf("%w: PDF service not healthy after %s", entities.ErrBackendUnavailable, serviceStartTimeout)
		case <-ticker.C:
		}
	}

	p.logger.Info("PDF service started", "script", script, "pid", cmd.Process.Pid, "url", p.serviceURL)
	return nil
}

// Close stops a service started by StartService. It is safe to call more than once.
func (p *PythonPDFParser) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *PythonPDFParser) stopLocked() {
	if p.cmd == nil {
		return
	}
	select {
	case <-p.exited:
	default:
		_ = p.cmd.Process.Kill()
		<-p.exited
	}
	p.logger.Debug("PDF service stopped")
	p.cmd, p.exited = nil, nil
}

// lineLogger forwards the service's output to the logger, one record per line.
type lineLogger struct {
	logger *slog.Logger
	script string
	buf    []byte
}

func (w *lineLogger) Write(b []byte) (int, error) {
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimSpace(w.buf[:i]); len(line) > 0 {
			w.logger.Debug("pdf service output", "script", w.script, "line", string(line))
		}
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}

// IsServiceHealthy checks if the Python service is running.
func (p *PythonPDFParser) IsServiceHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serviceURL+"/health", nil)
	if err != nil {
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
