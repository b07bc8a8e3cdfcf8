package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/tts"
)

// narrate voices the plan's narration scripts and muxes them onto video.
// It returns the narrated video, or video itself with false when
// narration is disabled or fails.
func (p *Pipeline) narrate(ctx context.Context, pl *plan.Plan, video, workDir string) (string, bool) {
	if p.opts.Narrator == nil || p.opts.Muxer == nil {
		return video, false
	}
	ctx, span := tracer.Start(ctx, "pipeline.narrate")
	defer span.End()

	start := time.Now()
	out, err := p.voiceOver(ctx, pl, video, workDir)
	if err != nil {
		span.RecordError(err)
		p.log.Warn("narration failed, keeping silent video", "stage", "narration", "error", err)
		return video, false
	}
	if out == "" {
		return video, false
	}
	p.log.Info("narration muxed", "stage", "narration", "duration_ms", time.Since(start).Milliseconds())
	return out, true
}

func (p *Pipeline) voiceOver(ctx context.Context, pl *plan.Plan, video, workDir string) (string, error) {
	dir := filepath.Join(workDir, "narration")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	scripts := make([]string, len(pl.Steps))
	for i, s := range pl.Steps {
		scripts[i] = s.NarrationScript
	}
	segments, err := tts.Narrate(ctx, p.opts.Narrator, scripts, dir, p.log)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return "", nil
	}

	clips := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg.Format == tts.FormatMP3 {
			clips = append(clips, seg.Path)
			continue
		}
		mp3 := strings.TrimSuffix(seg.Path, filepath.Ext(seg.Path)) + ".mp3"
		if err := p.opts.Muxer.ConvertToMP3(ctx, seg.Path, string(seg.Format), mp3); err != nil {
			return "", fmt.Errorf("convert step %d audio: %w", seg.Index+1, err)
		}
		clips = append(clips, mp3)
	}

	track := filepath.Join(dir, "narration.mp3")
	if err := p.opts.Muxer.Concat(ctx, clips, dir, track); err != nil {
		return "", fmt.Errorf("join narration: %w", err)
	}
	out := filepath.Join(workDir, "narrated.mp4")
	if err := p.opts.Muxer.Mux(ctx, video, track, out); err != nil {
		return "", fmt.Errorf("mux narration: %w", err)
	}
	return out, nil
}
