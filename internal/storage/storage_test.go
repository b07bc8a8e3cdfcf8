package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lesson.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0644))

	fake := &fakeS3{}
	url, err := NewS3(fake, "videos", "/generated/", "https://cdn.example.com/", "eu-west-1").Upload(context.Background(), path, "a/lesson.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/generated/a/lesson.mp4", url)
	assert.Equal(t, "generated/a/lesson.mp4", *fake.in.Key)
	assert.Equal(t, "video/mp4", *fake.in.ContentType)
	assert.Equal(t, int64(5), *fake.in.ContentLength)
	assert.Equal(t, "video", string(fake.body))
}

func TestUploadErrors(t *testing.T) {
	s := NewS3(&fakeS3{}, "b", "", "", "")
	_, err := s.Upload(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"), "k")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "v.mp4")
	require.NoError(t, os.WriteFile(path, []byte("v"), 0644))
	denied := errors.New("access denied")
	_, err = NewS3(&fakeS3{err: denied}, "b", "", "", "").Upload(context.Background(), path, "k")
	assert.ErrorIs(t, err, denied)
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://b.s3.amazonaws.com/k.mp4", NewS3(nil, "b", "", "", "").URL("k.mp4"))
	assert.Equal(t, "https://b.s3.us-west-2.amazonaws.com/k.mp4", NewS3(nil, "b", "", "", "us-west-2").URL("k.mp4"))
}
