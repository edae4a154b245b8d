// Package loader provides document loading adapters.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.DocumentLoader = (*MultiLoader)(nil)

// MultiLoader reads files and hands them to the parser registered for their extension.
type MultiLoader struct {
	parsers map[string]ports.DocumentParser
}

// NewMultiLoader creates a loader that handles every format the given parsers support.
// Later parsers win when two claim the same format.
func NewMultiLoader(parsers ...ports.DocumentParser) *MultiLoader {
	m := &MultiLoader{parsers: make(map[string]ports.DocumentParser)}
	for _, p := range parsers {
		for _, format := range p.SupportedFormats() {
			m.parsers["."+strings.ToLower(format)] = p
		}
	}
	return m
}

// Load reads the document at path and extracts its text.
func (m *MultiLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrExtraction, err)
	}

	doc, err := m.LoadBytes(ctx, data, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	doc.ID = generateDocID(path)
	doc.Path = path
	if info, err := os.Stat(path); err == nil {
		doc.CreatedAt = info.ModTime()
	}
	return doc, nil
}

// LoadBytes extracts text from an in-memory document such as an upload.
func (m *MultiLoader) LoadBytes(ctx context.Context, data []byte, filename string) (*entities.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	parser, ok := m.parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported file type %q", entities.ErrExtraction, ext)
	}

	text, err := parser.Parse(ctx, data, filename)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", filename, err)
	}

	now := time.Now()
	return &entities.Document{
		ID:        generateDocID(filename),
		Name:      filename,
		Content:   text,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Supports reports whether path has a registered extension.
func (m *MultiLoader) Supports(path string) bool {
	_, ok := m.parsers[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.parsers))
	for ext := range m.parsers {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// generateDocID creates a deterministic ID for a document.
func generateDocID(path string) string {
	hash := sha256.Sum256([]byte(path))
	return hex.EncodeToString(hash[:8])
}
