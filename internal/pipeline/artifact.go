package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/apresai/eduanim/internal/progress"
)

const (
	timestampLayout = "20060102_150405"
	workDirSlugLen  = 25
	artifactSlugLen = 50
)

// Slug lowercases topic and joins its alphanumeric runs with underscores.
func Slug(topic string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(topic) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		if r == '\'' || r == '’' {
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "video"
	}
	return b.String()
}

func truncateSlug(slug string, n int) string {
	r := []rune(slug)
	if len(r) <= n {
		return slug
	}
	return strings.TrimRight(string(r[:n]), "_")
}

// newWorkDir creates <root>/<timestamp>_<slug[:25]>_<random>.
func newWorkDir(root string, ts time.Time, slug string) (string, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", err
	}
	return os.MkdirTemp(root, fmt.Sprintf("%s_%s_", ts.Format(timestampLayout), truncateSlug(slug, workDirSlugLen)))
}

// ArtifactName is the stable file name of a finished video:
// [id_]slug_timestamp.mp4.
func ArtifactName(id, slug string, ts time.Time) string {
	name := truncateSlug(slug, artifactSlugLen) + "_" + ts.Format(timestampLayout) + ".mp4"
	if id != "" {
		name = id + "_" + name
	}
	return name
}

// saveStage renames the video and hands it to storage. A failed or
// missing upload keeps the video in OutputDir and reports its path.
func (p *Pipeline) saveStage(ctx context.Context, id, slug string, ts time.Time, video, workDir string, res *Result) error {
	name := ArtifactName(id, slug, ts)
	named := filepath.Join(workDir, name)
	if err := os.Rename(video, named); err != nil {
		return &Error{Stage: progress.StageSaving, Kind: KindStorageFailure, Message: "could not rename video", Err: err}
	}

	if p.opts.Uploader != nil {
		start := time.Now()
		url, err := p.opts.Uploader.Upload(ctx, named, name)
		if err == nil {
			res.Reference = url
			res.VideoURL = url
			res.Metadata.Uploaded = true
			p.log.Info("video uploaded", "stage", "saving", "url", url, "duration_ms", time.Since(start).Milliseconds())
			return nil
		}
		p.log.Warn("upload failed, keeping local copy", "stage", "saving", "error", err)
	}

	if err := os.MkdirAll(p.opts.OutputDir, 0755); err != nil {
		return &Error{Stage: progress.StageSaving, Kind: KindStorageFailure, Message: "could not create output directory", Err: err}
	}
	local, err := filepath.Abs(filepath.Join(p.opts.OutputDir, name))
	if err != nil {
		return &Error{Stage: progress.StageSaving, Kind: KindStorageFailure, Message: "could not resolve output path", Err: err}
	}
	if err := moveFile(named, local); err != nil {
		return &Error{Stage: progress.StageSaving, Kind: KindStorageFailure, Message: "could not keep local video", Err: err}
	}
	res.Reference = local
	res.VideoURL = local
	res.LocalPath = local
	return nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
