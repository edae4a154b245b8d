package parser

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/0xcro3dile/docqa/internal/domain/entities"
	"github.com/0xcro3dile/docqa/internal/domain/ports"
)

var _ ports.DocumentParser = (*TextParser)(nil)

// TextParser accepts UTF-8 text and markdown as-is.
type TextParser struct{}

func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse rejects content that is not valid UTF-8.
func (p *TextParser) Parse(_ context.Context, data []byte, filename string) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: %s is not valid UTF-8 text", entities.ErrExtraction, filename)
	}
	return string(data), nil
}

func (p *TextParser) SupportedFormats() []string {
	return []string{"txt", "md", "markdown"}
}
