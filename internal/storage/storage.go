// Package storage uploads finished videos.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("eduanim-storage")

// Uploader stores a local file under key and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) (string, error)
}

// PutObjectAPI is the subset of the S3 client S3 uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 uploads videos to a bucket. URLs are built from BaseURL when set
// (a CDN in front of the bucket), otherwise from the bucket's virtual
// host name.
type S3 struct {
	client  PutObjectAPI
	bucket  string
	prefix  string
	baseURL string
	region  string
}

// NewS3 creates an S3 uploader. prefix is prepended to every key.
func NewS3(client PutObjectAPI, bucket, prefix, baseURL, region string) *S3 {
	return &S3{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
		region:  region,
	}
}

func (s *S3) Upload(ctx context.Context, localPath, key string) (string, error) {
	ctx, span := tracer.Start(ctx, "storage.upload")
	defer span.End()

	key = path.Join(s.prefix, key)
	span.SetAttributes(attribute.String("s3.bucket", s.bucket), attribute.String("s3.key", key))

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat video: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          f,
		ContentType:   aws.String(contentType(localPath)),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}

	return s.URL(key), nil
}

// URL returns the public URL of key.
func (s *S3) URL(key string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	if s.region == "" || s.region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func contentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".mp4":
		return "video/mp4"
	case ".py":
		return "text/x-python"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
