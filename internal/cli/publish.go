package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/apresai/eduanim/internal/assembly"
	"github.com/apresai/eduanim/internal/jobstore"
	"github.com/apresai/eduanim/internal/storage"
)

var (
	flagPublishTitle    string
	flagPublishTopic    string
	flagPublishOwner    string
	flagPublishNoRecord bool
)

var publishCmd = &cobra.Command{
	Use:   "publish <video-file>",
	Short: "Upload a rendered video and record it in the video table",
	Long:  "Upload an MP4 to the configured S3 bucket and add it to the DynamoDB video table, so it is listed next to videos generated by the server.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().StringVar(&flagPublishTitle, "title", "", "Video title (default: file name)")
	publishCmd.Flags().StringVar(&flagPublishTopic, "topic", "", "Topic the video explains (default: title)")
	defaultOwner := "eduanim"
	if u, err := user.Current(); err == nil && u.Name != "" {
		defaultOwner = u.Name
	}
	publishCmd.Flags().StringVar(&flagPublishOwner, "owner", defaultOwner, "Video owner")
	publishCmd.Flags().BoolVar(&flagPublishNoRecord, "no-record", false, "Upload only, without writing to the video table")
}

type publishInput struct {
	Path  string
	Title string
	Topic string
	Owner string
}

// durationProber is satisfied by assembly.FFmpegMuxer.
type durationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

func runPublish(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.S3Bucket == "" {
		return fmt.Errorf("no bucket configured: set s3_bucket or S3_BUCKET")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	up := storage.NewS3(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix, cfg.CDNBaseURL, cfg.AWSRegion)

	var store jobstore.Store
	if !flagPublishNoRecord && cfg.TableName != "" {
		store = jobstore.NewDynamo(dynamodb.NewFromConfig(awsCfg), cfg.TableName)
	}

	in := publishInput{
		Path:  args[0],
		Title: flagPublishTitle,
		Topic: flagPublishTopic,
		Owner: flagPublishOwner,
	}
	_, err = publish(ctx, cmd.OutOrStdout(), in, up, store, assembly.NewFFmpegMuxer())
	return err
}

// publish uploads in.Path and, when store is non-nil, records it as a
// completed video. It returns the public URL.
func publish(ctx context.Context, out io.Writer, in publishInput, up storage.Uploader, store jobstore.Store, probe durationProber) (string, error) {
	if !strings.EqualFold(filepath.Ext(in.Path), ".mp4") {
		return "", fmt.Errorf("file must have .mp4 extension: %s", in.Path)
	}
	info, err := os.Stat(in.Path)
	if err != nil {
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("file is empty: %s", in.Path)
	}
	fmt.Fprintf(out, "File: %s (%.1f MB)\n", in.Path, float64(info.Size())/(1024*1024))

	if probe != nil {
		if secs, err := probe.Duration(ctx, in.Path); err == nil {
			fmt.Fprintf(out, "Duration: %s\n", time.Duration(secs*float64(time.Second)).Round(time.Second))
		} else {
			fmt.Fprintln(out, "Warning: could not read duration (is FFmpeg installed?)")
		}
	}

	title := in.Title
	if title == "" {
		base := filepath.Base(in.Path)
		title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	topic := in.Topic
	if topic == "" {
		topic = title
	}
	fmt.Fprintf(out, "Title: %s\n", title)

	id, err := jobstore.NewID()
	if err != nil {
		return "", err
	}

	if store != nil {
		if err := store.Create(ctx, &jobstore.Video{ID: id, Topic: topic, Owner: in.Owner}); err != nil {
			return "", fmt.Errorf("record video: %w", err)
		}
	}

	fmt.Fprint(out, "Uploading video...")
	var url string
	err = publishRetry(ctx, func() error {
		var err error
		url, err = up.Upload(ctx, in.Path, "videos/"+id+".mp4")
		return err
	})
	if err != nil {
		fmt.Fprintln(out, " failed")
		if store != nil {
			_ = store.Fail(context.WithoutCancel(ctx), id, "Upload failed.")
		}
		return "", fmt.Errorf("upload video: %w", err)
	}
	fmt.Fprintln(out, " done")

	if store != nil {
		err := publishRetry(ctx, func() error {
			return store.Complete(ctx, id, jobstore.Completion{Title: title, VideoURL: url})
		})
		if err != nil {
			return url, fmt.Errorf("record completion (video was uploaded to %s): %w", url, err)
		}
	}

	fmt.Fprintf(out, "\nPublished: %s\n", title)
	fmt.Fprintf(out, "  ID:  %s\n", id)
	fmt.Fprintf(out, "  URL: %s\n", url)
	return url, nil
}

var publishBackoffs = []time.Duration{1 * time.Second, 2 * time.Second}

func publishRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt >= len(publishBackoffs) {
			return lastErr
		}
		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(publishBackoffs[attempt]):
		}
	}
}
