// Package progress defines the events a generation run reports while it
// moves through its stages.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags an Event.
type Kind string

const (
	KindStarted   Kind = "started"
	KindStage     Kind = "stage"
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Stage identifies which pipeline stage is active.
type Stage string

const (
	StageContent   Stage = "content"
	StageCode      Stage = "code"
	StageRendering Stage = "rendering"
	StageSaving    Stage = "saving"
)

// Stages lists the stages in the order a run reports them.
func Stages() []Stage {
	return []Stage{StageContent, StageCode, StageRendering, StageSaving}
}

// percent is the share of the run finished when a stage begins.
var percent = map[Stage]float64{
	StageContent:   0.05,
	StageCode:      0.25,
	StageRendering: 0.45,
	StageSaving:    0.85,
}

// Event carries progress information from the pipeline to its consumer.
type Event struct {
	Kind    Kind
	Stage   Stage // KindStage only
	Message string
	// ArtifactURL is set on KindCompleted. It is the storage URL, or the
	// local path when the upload degraded.
	ArtifactURL string
	// Reason is set on KindFailed and is safe to show to end users.
	Reason  string
	Percent float64 // 0.0–1.0
	Elapsed time.Duration
}

func Started(msg string) Event {
	return Event{Kind: KindStarted, Message: msg}
}

func StageEvent(stage Stage, msg string) Event {
	return Event{Kind: KindStage, Stage: stage, Message: msg, Percent: percent[stage]}
}

func Completed(artifactURL, msg string) Event {
	return Event{Kind: KindCompleted, ArtifactURL: artifactURL, Message: msg, Percent: 1}
}

func Failed(reason string) Event {
	return Event{Kind: KindFailed, Reason: reason, Message: reason}
}

// Terminal reports whether e ends a run.
func (e Event) Terminal() bool {
	return e.Kind == KindCompleted || e.Kind == KindFailed
}

// Wire statuses, as streamed to web clients.
const (
	StatusStarted           = "started"
	StatusGeneratingContent = "generating_content"
	StatusGeneratingCode    = "generating_code"
	StatusRendering         = "rendering"
	StatusSaving            = "saving"
	StatusCompleted         = "completed"
	StatusError             = "error"
)

// Status maps e to its wire status.
func (e Event) Status() string {
	switch e.Kind {
	case KindStarted:
		return StatusStarted
	case KindCompleted:
		return StatusCompleted
	case KindFailed:
		return StatusError
	}
	switch e.Stage {
	case StageContent:
		return StatusGeneratingContent
	case StageCode:
		return StatusGeneratingCode
	case StageRendering:
		return StatusRendering
	default:
		return StatusSaving
	}
}

// Wire is the JSON form of an event.
type Wire struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	VideoURL string `json:"video_url,omitempty"`
}

func (e Event) Wire() Wire {
	return Wire{Status: e.Status(), Message: e.Message, VideoURL: e.ArtifactURL}
}

// Callback is the function signature for progress event handlers.
type Callback func(Event)

// NopCallback is a no-op progress callback for tests and silent mode.
func NopCallback(Event) {}

var errOrder = errors.New("progress events out of order")

// Validate checks that events form one well-ordered run: a single
// Started first, stages in order with none repeated, and exactly one
// terminal event last.
func Validate(events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: no events", errOrder)
	}
	if events[0].Kind != KindStarted {
		return fmt.Errorf("%w: first event is %s, not started", errOrder, events[0].Kind)
	}
	last := -1
	for i, e := range events[1:] {
		pos := i + 1
		switch e.Kind {
		case KindStarted:
			return fmt.Errorf("%w: second started event at %d", errOrder, pos)
		case KindStage:
			idx := stageIndex(e.Stage)
			if idx < 0 {
				return fmt.Errorf("%w: unknown stage %q at %d", errOrder, e.Stage, pos)
			}
			if idx <= last {
				return fmt.Errorf("%w: stage %s at %d after a later stage", errOrder, e.Stage, pos)
			}
			last = idx
		case KindCompleted, KindFailed:
			if pos != len(events)-1 {
				return fmt.Errorf("%w: %d events after terminal %s", errOrder, len(events)-1-pos, e.Kind)
			}
		default:
			return fmt.Errorf("%w: unknown kind %q at %d", errOrder, e.Kind, pos)
		}
	}
	if !events[len(events)-1].Terminal() {
		return fmt.Errorf("%w: no terminal event", errOrder)
	}
	return nil
}

func stageIndex(s Stage) int {
	for i, st := range Stages() {
		if st == s {
			return i
		}
	}
	return -1
}
