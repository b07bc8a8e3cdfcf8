package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TextLoader reads a plain text or markdown file.
type TextLoader struct{}

func (t *TextLoader) Load(_ context.Context, source string) (*Reference, error) {
	if err := validateFile(source); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("could not read file %s: %w", source, err)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("file %s is empty", source)
	}
	return &Reference{Text: text, Title: titleFromText(text, 80), Source: filepath.Base(source)}, nil
}
