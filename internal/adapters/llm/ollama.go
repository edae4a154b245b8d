// Package llm provides the Ollama LLM adapter.
// Clean Architecture: Adapter implementing ports.Generator.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.Generator = (*OllamaLLMAdapter)(nil)

const (
	DefaultBaseURL     = "http://127.0.0.1:11434"
	DefaultModel       = "mistral"
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultMaxTokens   = 500
	DefaultTimeout     = 300 * time.Second

	// ProbeTimeout bounds the liveness check.
	ProbeTimeout = 5 * time.Second

	maxLineSize = 1024 * 1024
)

// Config holds the generation settings sent with every request.
type Config struct {
	BaseURL     string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
		Timeout:     DefaultTimeout,
	}
}

// OllamaLLMAdapter implements ports.Generator using Ollama API.
type OllamaLLMAdapter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// NewOllamaLLMAdapter creates a new Ollama LLM adapter. Zero fields take defaults.
func NewOllamaLLMAdapter(cfg Config, logger *slog.Logger) *OllamaLLMAdapter {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OllamaLLMAdapter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout, // Longer timeout for streaming
		},
		logger: logger.With("component", "llm", "model", cfg.Model),
	}
}

// ollamaGenerateRequest is the Ollama generate API request.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options generateOption `json:"options"`
}

type generateOption struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
	NumPredict  int     `json:"num_predict"`
}

// ollamaGenerateResponse is one line of the generate stream.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// ModelName returns the generation model.
func (a *OllamaLLMAdapter) ModelName() string {
	return a.cfg.Model
}

// IsAvailable probes /api/tags. Any failure, including a slow answer, reports false.
func (a *OllamaLLMAdapter) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Debug("liveness probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// Generate produces a real streaming response via Ollama's streaming API.
// Returns a channel of StreamTokens for real-time UI updates.
func (a *OllamaLLMAdapter) Generate(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	reqBody := ollamaGenerateRequest{
		Model:  a.cfg.Model,
		Prompt: prompt,
		Stream: true,
		Options: generateOption{
			Temperature: a.cfg.Temperature,
			TopP:        a.cfg.TopP,
			MaxTokens:   a.cfg.MaxTokens,
			NumPredict:  a.cfg.MaxTokens,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling Ollama: %w: %w", entities.ErrBackendUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: Ollama returned status %d", entities.ErrBackendUnavailable, resp.StatusCode)
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(tok ports.StreamToken) bool {
			select {
			case ch <- tok:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}

			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				a.logger.Warn("malformed stream line", "error", err)
				send(ports.StreamToken{Done: true, Err: fmt.Errorf("%w: %w", entities.ErrStreamDecode, err)})
				return
			}
			if chunk.Error != "" {
				send(ports.StreamToken{Done: true, Err: fmt.Errorf("%w: %s", entities.ErrBackendUnavailable, chunk.Error)})
				return
			}

			if !send(ports.StreamToken{Content: chunk.Response, Done: chunk.Done}) {
				return
			}
			if chunk.Done {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			send(ports.StreamToken{Done: true, Err: err})
		}
	}()

	return ch, nil
}
