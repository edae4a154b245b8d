package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
)

func TestPythonPDFParser_Parse(t *testing.T) {
	// Mock Python service
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/parse", r.URL.Path)
		assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(map[string]any{
			"text":  "Hello from PDF",
			"pages": 1,
		})
	}))
	defer server.Close()

	parser := NewPythonPDFParser(server.URL, nil)
	text, err := parser.Parse(context.Background(), []byte("fake pdf"), "test.pdf")

	require.NoError(t, err)
	assert.Equal(t, "Hello from PDF", text)
}

func TestPythonPDFParser_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": "parsing failed",
			"text":  "",
		})
	}))
	defer server.Close()

	parser := NewPythonPDFParser(server.URL, nil)
	_, err := parser.Parse(context.Background(), []byte("bad"), "test.pdf")

	require.Error(t, err, "should error on parse failure")
	assert.True(t, errors.Is(err, entities.ErrExtraction))
	assert.ErrorContains(t, err, "parsing failed")
}

func TestPythonPDFParser_NotJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer server.Close()

	parser := NewPythonPDFParser(server.URL, nil)
	_, err := parser.Parse(context.Background(), []byte("pdf"), "test.pdf")

	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrExtraction))
}

func TestPythonPDFParser_SupportedFormats(t *testing.T) {
	parser := NewPythonPDFParser("", nil)

	assert.Equal(t, []string{"pdf"}, parser.SupportedFormats(), "should support only pdf")
}

func TestPythonPDFParser_DefaultURL(t *testing.T) {
	parser := NewPythonPDFParser("", nil)

	assert.Equal(t, DefaultPDFServiceURL, parser.serviceURL)
}

func TestPythonPDFParser_IsServiceHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}
	}))
	defer server.Close()

	parser := NewPythonPDFParser(server.URL, nil)

	assert.True(t, parser.IsServiceHealthy(context.Background()))
}

func TestPythonPDFParser_UnhealthyService(t *testing.T) {
	parser := NewPythonPDFParser("http://localhost:99999", nil)

	assert.False(t, parser.IsServiceHealthy(context.Background()))
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "pdf_service.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestPythonPDFParser_StartServiceMissingScript(t *testing.T) {
	parser := NewPythonPDFParser("", nil)

	err := parser.StartService(context.Background(), "", filepath.Join(t.TempDir(), "pdf_service.py"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrConfiguration))
}

func TestPythonPDFParser_StartServiceExitsEarly(t *testing.T) {
	script := writeScript(t, "exit 3\n")
	parser := NewPythonPDFParser("http://127.0.0.1:1", nil)

	start := time.Now()
	err := parser.StartService(context.Background(), "sh", script)

	require.Error(t, err)
	assert.True(t, errors.Is(err, entities.ErrBackendUnavailable))
	assert.Contains(t, err.Error(), "exited")
	assert.Less(t, time.Since(start), serviceStartTimeout)
	assert.NoError(t, parser.Close())
}

func TestPythonPDFParser_StartServiceAndClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	script := writeScript(t, "echo listening\nexec sleep 30\n")
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	parser := NewPythonPDFParser(server.URL, logger)

	require.NoError(t, parser.StartService(context.Background(), "sh", script))
	assert.Error(t, parser.StartService(context.Background(), "sh", script), "one service per parser")

	require.NoError(t, parser.Close())
	require.NoError(t, parser.Close())
	assert.Contains(t, logs.String(), "PDF service started")

	// a stopped parser can launch again
	require.NoError(t, parser.StartService(context.Background(), "sh", script))
	require.NoError(t, parser.Close())
}

func TestLineLogger(t *testing.T) {
	var logs bytes.Buffer
	w := &lineLogger{
		logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		script: "svc.py",
	}

	fmt.Fprint(w, "first li")
	fmt.Fprint(w, "ne\n\nsecond line\npartial")

	out := logs.String()
	assert.Contains(t, out, `line="first line"`)
	assert.Contains(t, out, `line="second line"`)
	assert.NotContains(t, out, "partial")
	assert.Equal(t, 2, strings.Count(out, "pdf service output"))
}
