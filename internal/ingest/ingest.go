// Package ingest loads optional reference material (a web page, a PDF or
// a text file) that the plan synthesizer grounds a lesson on.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("eduanim-ingest")

// Kind is where reference material came from.
type Kind string

const (
	KindURL  Kind = "url"
	KindPDF  Kind = "pdf"
	KindText Kind = "text"

	// maxInputSize is the maximum allowed size for input content (25 MB).
	maxInputSize = 25 * 1024 * 1024
)

// Reference is extracted reference text.
type Reference struct {
	Text      string
	Title     string
	Source    string
	Kind      Kind
	WordCount int
}

// Loader extracts text from one kind of source.
type Loader interface {
	Load(ctx context.Context, source string) (*Reference, error)
}

// Detect classifies a source string.
func Detect(source string) Kind {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return KindURL
	}
	if strings.HasSuffix(strings.ToLower(source), ".pdf") {
		return KindPDF
	}
	return KindText
}

// LoaderFor returns the loader for source.
func LoaderFor(source string) Loader {
	switch Detect(source) {
	case KindURL:
		return &URLLoader{}
	case KindPDF:
		return &PDFLoader{}
	default:
		return &TextLoader{}
	}
}

// Load detects the kind of source and extracts its text with whitespace
// normalized.
func Load(ctx context.Context, source string, logger *slog.Logger) (*Reference, error) {
	ctx, span := tracer.Start(ctx, "ingest.load")
	defer span.End()

	if logger == nil {
		logger = slog.Default()
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("empty reference source")
	}

	kind := Detect(source)
	span.SetAttributes(attribute.String("ingest.kind", string(kind)))
	start := time.Now()

	ref, err := LoaderFor(source).Load(ctx, source)
	if err != nil {
		return nil, err
	}
	ref.Kind = kind
	ref.Text = normalize(ref.Text)
	ref.WordCount = wordCount(ref.Text)

	logger.Info("reference loaded",
		"stage", "content",
		"kind", kind,
		"source", ref.Source,
		"words", ref.WordCount,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ref, nil
}

// normalize trims each line and collapses runs of blank lines.
func normalize(text string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func titleFromText(text string, maxLen int) string {
	line := strings.TrimSpace(text)
	if idx := strings.IndexByte(line, '\n'); idx > 0 {
		line = line[:idx]
	}
	line = strings.Join(strings.Fields(line), " ")
	if r := []rune(line); len(r) > maxLen {
		line = string(r[:maxLen]) + "..."
	}
	if line == "" {
		return "Untitled"
	}
	return line
}

func validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	if info.Size() > maxInputSize {
		return fmt.Errorf("%s is too large (%d MB, max %d MB)", path, info.Size()/(1024*1024), maxInputSize/(1024*1024))
	}
	return nil
}
