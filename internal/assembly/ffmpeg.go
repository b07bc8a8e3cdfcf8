// Package assembly joins narration clips and muxes them onto a rendered
// video with FFmpeg.
package assembly

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Audio quality constants for consistent output across all FFmpeg operations.
const (
	AudioBitrate    = "192k"
	AudioSampleRate = "44100"
	AudioChannels   = "2"
	AudioCodec      = "libmp3lame"
	AudioQuality    = "0" // LAME quality (0 = best)
	AudioResampler  = "aresample=resampler=soxr"
)

// gapSeconds is the pause inserted between narration clips.
const gapSeconds = "0.4"

// Muxer combines a silent video and a narration track.
type Muxer interface {
	// Concat joins clips, in order, into one MP3 at output.
	Concat(ctx context.Context, clips []string, tmpDir, output string) error
	// Mux writes video with audio to output. The shorter stream is
	// extended: the last frame is held, or silence is padded.
	Mux(ctx context.Context, video, audio, output string) error
	// ConvertToMP3 re-encodes raw provider audio ("pcm" or "wav").
	ConvertToMP3(ctx context.Context, input, format, output string) error
}

// FFmpegMuxer shells out to ffmpeg and ffprobe.
type FFmpegMuxer struct {
	// FFmpeg and FFprobe default to the binaries on PATH.
	FFmpeg  string
	FFprobe string
}

func NewFFmpegMuxer() *FFmpegMuxer {
	return &FFmpegMuxer{}
}

func (m *FFmpegMuxer) ffmpeg() string {
	if m.FFmpeg != "" {
		return m.FFmpeg
	}
	return "ffmpeg"
}

func (m *FFmpegMuxer) ffprobe() string {
	if m.FFprobe != "" {
		return m.FFprobe
	}
	return "ffprobe"
}

func (m *FFmpegMuxer) Concat(ctx context.Context, clips []string, tmpDir, output string) error {
	if len(clips) == 0 {
		return fmt.Errorf("no narration clips to join")
	}

	silencePath := filepath.Join(tmpDir, "gap.mp3")
	if err := m.generateSilence(ctx, silencePath); err != nil {
		return fmt.Errorf("generate silence: %w", err)
	}

	listPath := filepath.Join(tmpDir, "concat.txt")
	if err := buildConcatList(clips, silencePath, listPath); err != nil {
		return fmt.Errorf("build concat list: %w", err)
	}

	if err := m.run(ctx, "concat",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-af", AudioResampler,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-q:a", AudioQuality,
		"-ar", AudioSampleRate,
		"-ac", AudioChannels,
		"-y",
		output,
	); err != nil {
		return err
	}
	return checkOutput(output)
}

func (m *FFmpegMuxer) Mux(ctx context.Context, video, audio, output string) error {
	videoDur, err := m.Duration(ctx, video)
	if err != nil {
		return fmt.Errorf("probe video: %w", err)
	}
	audioDur, err := m.Duration(ctx, audio)
	if err != nil {
		return fmt.Errorf("probe narration: %w", err)
	}

	if err := m.run(ctx, "mux", muxArgs(video, audio, output, videoDur, audioDur)...); err != nil {
		return err
	}
	return checkOutput(output)
}

// muxArgs builds the ffmpeg arguments for Mux. A longer narration holds
// the last video frame; a longer video pads the narration with silence.
func muxArgs(video, audio, output string, videoDur, audioDur float64) []string {
	args := []string{"-i", video, "-i", audio}
	switch {
	case audioDur > videoDur:
		hold := strconv.FormatFloat(audioDur-videoDur, 'f', 3, 64)
		args = append(args,
			"-filter_complex", "[0:v]tpad=stop_mode=clone:stop_duration="+hold+"[v]",
			"-map", "[v]", "-map", "1:a",
			"-c:v", "libx264", "-pix_fmt", "yuv420p",
		)
	default:
		args = append(args,
			"-filter_complex", "[1:a]apad[a]",
			"-map", "0:v", "-map", "[a]",
			"-c:v", "copy",
			"-shortest",
		)
	}
	return append(args, "-c:a", "aac", "-b:a", AudioBitrate, "-movflags", "+faststart", "-y", output)
}

// Duration returns the container duration of path in seconds.
func (m *FFmpegMuxer) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, m.ffprobe(),
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w\n%s", err, stderr.String())
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return d, nil
}

func (m *FFmpegMuxer) generateSilence(ctx context.Context, output string) error {
	return m.run(ctx, "silence",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%s:cl=stereo", AudioSampleRate),
		"-t", gapSeconds,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-y",
		output,
	)
}

func buildConcatList(clips []string, silencePath string, listPath string) error {
	var lines []string
	for i, clip := range clips {
		lines = append(lines, fmt.Sprintf("file '%s'", escapeConcatPath(clip)))
		if i < len(clips)-1 {
			lines = append(lines, fmt.Sprintf("file '%s'", escapeConcatPath(silencePath)))
		}
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(listPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	return nil
}

// escapeConcatPath quotes a path for the concat demuxer's single-quoted
// file directive.
func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

// ConvertToMP3 converts raw audio (PCM/WAV) to MP3 via FFmpeg.
// The format parameter determines the input interpretation:
//   - "pcm": raw 24kHz 16-bit signed little-endian mono
//   - "wav": standard WAV header (auto-detected by FFmpeg)
func (m *FFmpegMuxer) ConvertToMP3(ctx context.Context, input, format, output string) error {
	var args []string
	switch format {
	case "pcm", "lpcm":
		args = []string{"-f", "s16le", "-ar", "24000", "-ac", "1", "-i", input}
	case "wav":
		args = []string{"-i", input}
	default:
		return fmt.Errorf("unsupported audio format for conversion: %s", format)
	}
	args = append(args,
		"-af", AudioResampler,
		"-c:a", AudioCodec,
		"-b:a", AudioBitrate,
		"-q:a", AudioQuality,
		"-ar", AudioSampleRate,
		"-ac", AudioChannels,
		"-y",
		output,
	)
	return m.run(ctx, "convert "+format, args...)
}

func (m *FFmpegMuxer) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, m.ffmpeg(), args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg %s failed: %w\n%s", op, err, stderr.String())
	}
	return nil
}

func checkOutput(output string) error {
	info, err := os.Stat(output)
	if err != nil {
		return fmt.Errorf("output file not created: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty")
	}
	return nil
}
