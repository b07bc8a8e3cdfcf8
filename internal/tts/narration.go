package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var annotationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?s)\*.*?\*`),
	regexp.MustCompile(`(?s)\[.*?\]`),
	regexp.MustCompile(`(?s)\(.*?\)`),
}

// CleanNarration strips stage directions (*...*, [...] and (...)) from a
// narration script and collapses whitespace.
func CleanNarration(text string) string {
	for _, re := range annotationRes {
		text = re.ReplaceAllString(text, "")
	}
	return strings.Join(strings.Fields(text), " ")
}

// Segment is one synthesized narration clip on disk.
type Segment struct {
	Index  int
	Path   string
	Format AudioFormat
}

// Narrate synthesizes each script with provider and writes the clips to
// dir as narration_NNN.<format>. Scripts that are empty after cleaning
// are skipped, so the result may be shorter than scripts.
func Narrate(ctx context.Context, provider Provider, scripts []string, dir string, logger *slog.Logger) ([]Segment, error) {
	if logger == nil {
		logger = slog.Default()
	}
	voice := provider.DefaultVoice()
	start := time.Now()

	var segments []Segment
	for i, script := range scripts {
		text := CleanNarration(script)
		if text == "" {
			continue
		}
		res, err := provider.Synthesize(ctx, text, voice)
		if err != nil {
			return nil, fmt.Errorf("narrate step %d: %w", i+1, err)
		}
		if len(res.Data) == 0 {
			return nil, fmt.Errorf("narrate step %d: provider %s returned no audio", i+1, provider.Name())
		}
		path := filepath.Join(dir, fmt.Sprintf("narration_%03d.%s", i+1, res.Format))
		if err := os.WriteFile(path, res.Data, 0644); err != nil {
			return nil, fmt.Errorf("write narration: %w", err)
		}
		segments = append(segments, Segment{Index: i, Path: path, Format: res.Format})
	}

	logger.Info("narration synthesized",
		"stage", "narration",
		"provider", provider.Name(),
		"segments", len(segments),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return segments, nil
}
