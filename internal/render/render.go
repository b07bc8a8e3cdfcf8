// Package render turns a validated program into a video file.
package render

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("eduanim-render")

var (
	// ErrTimeout is returned when a render exceeds its wall-clock limit.
	ErrTimeout = errors.New("render timed out")
	// ErrNoOutput means the renderer exited cleanly but produced no
	// video, or an empty one.
	ErrNoOutput = errors.New("render produced no video")
)

// Quality is a manim quality preset.
type Quality string

const (
	QualityLow    Quality = "l" // 480p15
	QualityMedium Quality = "m" // 720p30
	QualityHigh   Quality = "h" // 1080p60
	Quality2K     Quality = "p" // 1440p60
	Quality4K     Quality = "k" // 2160p60
)

// DefaultQuality is used when a Job leaves Quality empty.
const DefaultQuality = QualityMedium

// ParseQuality accepts a preset letter or its name.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultQuality, nil
	case "l", "low", "480p":
		return QualityLow, nil
	case "m", "medium", "720p":
		return QualityMedium, nil
	case "h", "high", "1080p":
		return QualityHigh, nil
	case "p", "2k", "1440p":
		return Quality2K, nil
	case "k", "4k", "2160p":
		return Quality4K, nil
	}
	return "", fmt.Errorf("unknown render quality %q (valid: low, medium, high, 2k, 4k)", s)
}

// DefaultTimeout bounds a single render.
const DefaultTimeout = 10 * time.Minute

// Job is one render request.
type Job struct {
	Source    string
	ClassName string
	// Dir is the per-request work directory. The program and manim's
	// media tree are written beneath it.
	Dir     string
	Quality Quality
}

// Executor renders a program and returns the path of the video it wrote.
type Executor interface {
	Render(ctx context.Context, job Job) (string, error)
}

// Error is a failed render with the tail of the renderer's output.
type Error struct {
	ClassName string
	Output    string
	Err       error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("render %s: %v", e.ClassName, e.Err)
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// maxOutputTail is how much renderer output an Error keeps.
const maxOutputTail = 2000

// ManimExecutor runs the manim CLI.
type ManimExecutor struct {
	// Binary defaults to "manim".
	Binary string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewManimExecutor creates an executor with default settings.
func NewManimExecutor(logger *slog.Logger) *ManimExecutor {
	return &ManimExecutor{Logger: logger}
}

// Render writes job.Source to scene.py in job.Dir and runs
// "manim render -q<q> --media_dir <dir>/media scene.py <Class>".
func (m *ManimExecutor) Render(ctx context.Context, job Job) (string, error) {
	ctx, span := tracer.Start(ctx, "render.manim")
	defer span.End()

	if job.ClassName == "" {
		return "", fmt.Errorf("render: job has no scene class")
	}
	if job.Quality == "" {
		job.Quality = DefaultQuality
	}
	span.SetAttributes(
		attribute.String("render.class", job.ClassName),
		attribute.String("render.quality", string(job.Quality)),
		attribute.Int("render.source_bytes", len(job.Source)),
	)

	log := m.logger()
	binary := m.Binary
	if binary == "" {
		binary = "manim"
	}
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if err := os.MkdirAll(job.Dir, 0755); err != nil {
		return "", fmt.Errorf("create render dir: %w", err)
	}
	script := filepath.Join(job.Dir, "scene.py")
	if err := os.WriteFile(script, []byte(job.Source), 0644); err != nil {
		return "", fmt.Errorf("write program: %w", err)
	}
	mediaDir := filepath.Join(job.Dir, "media")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary,
		"render",
		"-q"+string(job.Quality),
		"--media_dir", mediaDir,
		script,
		job.ClassName,
	)
	cmd.Dir = job.Dir
	// manim forks ffmpeg; don't let an orphan holding the pipes block Wait.
	cmd.WaitDelay = 10 * time.Second
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	log.Info("render started", "stage", "rendering", "class", job.ClassName, "quality", job.Quality)
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			err = fmt.Errorf("%w after %s", ErrTimeout, timeout)
		case ctx.Err() != nil:
			return "", ctx.Err()
		}
		rerr := &Error{ClassName: job.ClassName, Output: tail(output.String(), maxOutputTail), Err: err}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, "render failed")
		log.Error("render failed", "stage", "rendering", "class", job.ClassName, "error", err, "duration_ms", elapsed.Milliseconds())
		return "", rerr
	}

	video, err := findVideo(mediaDir, job.ClassName)
	if err != nil {
		rerr := &Error{ClassName: job.ClassName, Output: tail(output.String(), maxOutputTail), Err: err}
		span.RecordError(rerr)
		span.SetStatus(codes.Error, "no output")
		return "", rerr
	}

	log.Info("render complete", "stage", "rendering", "class", job.ClassName, "path", video, "duration_ms", elapsed.Milliseconds())
	return video, nil
}

func (m *ManimExecutor) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// findVideo locates <Class>.mp4 under media/videos, skipping manim's
// partial movie files, and checks it is non-empty.
func findVideo(mediaDir, className string) (string, error) {
	var found string
	root := filepath.Join(mediaDir, "videos")
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == "partial_movie_files" {
			return filepath.SkipDir
		}
		if !d.IsDir() && d.Name() == className+".mp4" {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("search render output: %w", err)
	}
	if found == "" {
		return "", ErrNoOutput
	}
	info, err := os.Stat(found)
	if err != nil {
		return "", fmt.Errorf("stat render output: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrNoOutput, filepath.Base(found))
	}
	return found, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
