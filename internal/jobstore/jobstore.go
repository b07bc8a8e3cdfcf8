// Package jobstore persists video generation jobs and their progress.
package jobstore

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when no job has the requested ID.
var ErrNotFound = errors.New("job not found")

// Status values. Running jobs carry the progress wire status of their
// current stage.
const (
	StatusSubmitted = "submitted"
	StatusCompleted = "completed"
	StatusError     = "error"
)

// Video is the persisted record of one generation job.
type Video struct {
	PK     string `dynamodbav:"PK" json:"-"`
	SK     string `dynamodbav:"SK" json:"-"`
	GSI1PK string `dynamodbav:"GSI1PK" json:"-"`
	GSI1SK string `dynamodbav:"GSI1SK" json:"-"`

	ID              string  `dynamodbav:"videoId" json:"id"`
	Topic           string  `dynamodbav:"topic" json:"topic"`
	Complexity      string  `dynamodbav:"complexity,omitempty" json:"complexity,omitempty"`
	Domain          string  `dynamodbav:"domain,omitempty" json:"domain,omitempty"`
	Style           string  `dynamodbav:"style,omitempty" json:"style,omitempty"`
	Model           string  `dynamodbav:"model,omitempty" json:"model,omitempty"`
	Owner           string  `dynamodbav:"owner,omitempty" json:"owner,omitempty"`
	Status          string  `dynamodbav:"status" json:"status"`
	ProgressPercent float64 `dynamodbav:"progressPercent,omitempty" json:"progress_percent,omitempty"`
	StageMessage    string  `dynamodbav:"stageMessage,omitempty" json:"stage_message,omitempty"`
	ErrorMessage    string  `dynamodbav:"errorMessage,omitempty" json:"error_message,omitempty"`
	Title           string  `dynamodbav:"title,omitempty" json:"title,omitempty"`
	VideoURL        string  `dynamodbav:"videoUrl,omitempty" json:"video_url,omitempty"`
	PlanJSON        string  `dynamodbav:"planJson,omitempty" json:"plan,omitempty"`
	UsedFallback    bool    `dynamodbav:"usedFallback,omitempty" json:"used_fallback,omitempty"`
	CreatedAt       string  `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt       string  `dynamodbav:"updatedAt,omitempty" json:"updated_at,omitempty"`
}

// Completion is the final metadata of a successful job.
type Completion struct {
	Title        string
	VideoURL     string
	PlanJSON     string
	UsedFallback bool
}

// Store persists jobs.
type Store interface {
	Create(ctx context.Context, v *Video) error
	UpdateProgress(ctx context.Context, id, status string, percent float64, message string) error
	Complete(ctx context.Context, id string, c Completion) error
	Fail(ctx context.Context, id, errMsg string) error
	Get(ctx context.Context, id string) (*Video, error)
	// List returns jobs newest first. cursor is opaque; pass the returned
	// cursor to fetch the next page.
	List(ctx context.Context, limit int, cursor string) ([]Video, string, error)
}

// NewID generates a ULID for a new job.
func NewID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func pk(id string) string { return "VIDEO#" + id }

const (
	metadataSK  = "METADATA"
	listPK      = "VIDEOS"
	defaultPage = 20
)
