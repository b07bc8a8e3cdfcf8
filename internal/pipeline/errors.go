package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/progress"
	"github.com/apresai/eduanim/internal/render"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindInvalidRequest      Kind = "InvalidRequest"
	KindPlanGeneration      Kind = "PlanGeneration"
	KindCodeGeneration      Kind = "CodeGeneration"
	KindCodeExtraction      Kind = "CodeExtraction"
	KindValidationExhausted Kind = "ValidationExhausted"
	KindRenderFailure       Kind = "RenderFailure"
	KindStorageFailure      Kind = "StorageFailure"
	KindConfiguration       Kind = "Configuration"
)

// Error is a failed run, tagged with the stage that failed.
type Error struct {
	Stage   progress.Stage
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Public returns a message safe to show end users. It never includes
// model output, file paths or subprocess logs.
func (e *Error) Public() string {
	if errors.Is(e.Err, context.Canceled) {
		return "Generation was canceled."
	}
	switch e.Kind {
	case KindInvalidRequest:
		return "Invalid request: " + e.Message + "."
	case KindPlanGeneration:
		if errors.Is(e.Err, plan.ErrTopicNotAllowed) {
			return "This topic is outside the subjects this service covers."
		}
		return "Could not create a lesson plan for this topic. Try rephrasing it."
	case KindCodeGeneration:
		return "The animation code could not be generated. Please try again."
	case KindCodeExtraction:
		return "The model's reply did not contain an animation program. Please try again."
	case KindValidationExhausted:
		return "The animation code could not be repaired."
	case KindRenderFailure:
		if errors.Is(e.Err, render.ErrTimeout) || errors.Is(e.Err, context.DeadlineExceeded) {
			return "Rendering the animation timed out."
		}
		return "Rendering the animation failed."
	case KindStorageFailure:
		return "Saving the video failed."
	case KindConfiguration:
		return "The service is not configured correctly."
	}
	return "Video generation failed."
}

// PublicMessage returns the user-safe message for any error a run returns.
func PublicMessage(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Public()
	}
	return "Video generation failed."
}

// KindOf returns the Kind of err, or "" when err did not come from a run.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
