package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/apresai/eduanim/internal/jobstore"
	"github.com/apresai/eduanim/internal/pipeline"
	"github.com/apresai/eduanim/internal/plan"
)

// APIError is the body of every error response.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	ID      string `json:"id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// videoRequest is the body of POST /api/videos.
type videoRequest struct {
	Topic      string `json:"topic" binding:"required"`
	Complexity string `json:"complexity"`
	Domain     string `json:"domain"`
	Style      string `json:"style"`
	Source     string `json:"source"`
	// Async returns 202 with the job ID instead of waiting for the video.
	Async bool `json:"async"`
}

type api struct {
	tasks *TaskManager
	store jobstore.Store
	log   *slog.Logger
}

func (a *api) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "running": a.tasks.Running()})
}

// createVideo generates a video. Without async it blocks until the
// video is stored and returns the full result.
func (a *api) createVideo(c *gin.Context) {
	var body videoRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "topic is required")
		return
	}
	req := GenerateRequest{
		Topic:      strings.TrimSpace(body.Topic),
		Complexity: body.Complexity,
		Domain:     body.Domain,
		Style:      body.Style,
		Source:     body.Source,
		Owner:      "api",
	}
	if req.Topic == "" {
		respondError(c, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "topic is required")
		return
	}
	if req.Source != "" && !isRemoteSource(req.Source) {
		respondError(c, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "source must be an http or https URL")
		return
	}

	if body.Async {
		id, err := a.tasks.StartTask(c.Request.Context(), req)
		if err != nil {
			a.respondRunError(c, "", err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"id": id, "status": jobstore.StatusSubmitted})
		return
	}

	id, res, err := a.tasks.Run(c.Request.Context(), req)
	if err != nil {
		a.respondRunError(c, id, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *api) respondRunError(c *gin.Context, id string, err error) {
	status, code := statusFor(err)
	msg := pipeline.PublicMessage(err)
	if errors.Is(err, ErrBusy) {
		msg = "The server is busy. Please try again shortly."
	}
	if status >= http.StatusInternalServerError {
		a.log.ErrorContext(c.Request.Context(), "Video request failed", "video_id", id, "error", err)
	}
	c.JSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code, ID: id}})
}

// statusFor maps a run error to an HTTP status and error code.
func statusFor(err error) (int, string) {
	if errors.Is(err, ErrBusy) {
		return http.StatusTooManyRequests, "Busy"
	}
	kind := pipeline.KindOf(err)
	switch {
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Canceled"
	case kind == pipeline.KindInvalidRequest:
		return http.StatusBadRequest, string(kind)
	case errors.Is(err, plan.ErrTopicNotAllowed):
		return http.StatusUnprocessableEntity, string(kind)
	case kind == pipeline.KindPlanGeneration, kind == pipeline.KindCodeGeneration, kind == pipeline.KindCodeExtraction:
		return http.StatusBadGateway, string(kind)
	case kind == "":
		return http.StatusInternalServerError, "Internal"
	default:
		return http.StatusInternalServerError, string(kind)
	}
}

// streamVideo generates a video and streams its progress as server-sent
// events, one JSON object per event.
func (a *api) streamVideo(c *gin.Context) {
	req := GenerateRequest{
		Topic:      strings.TrimSpace(c.Query("topic")),
		Complexity: c.Query("complexity"),
		Domain:     c.Query("domain"),
		Style:      c.Query("style"),
		Source:     c.Query("source"),
		Owner:      "api",
	}
	if req.Topic == "" {
		respondError(c, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "topic is required")
		return
	}
	if req.Source != "" && !isRemoteSource(req.Source) {
		respondError(c, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "source must be an http or https URL")
		return
	}

	id, events, err := a.tasks.Stream(c.Request.Context(), req)
	if err != nil {
		a.respondRunError(c, "", err)
		return
	}

	w := c.Writer
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set("X-Video-Id", id)
	w.WriteHeader(http.StatusOK)
	w.Flush()

	start := time.Now()
	for evt := range events {
		data, err := json.Marshal(evt.Wire())
		if err != nil {
			break
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			break
		}
		w.Flush()
	}
	a.log.InfoContext(c.Request.Context(), "Progress stream closed",
		"video_id", id, "stage", "stream", "duration_ms", time.Since(start).Milliseconds())
}

func (a *api) getVideo(c *gin.Context) {
	id := c.Param("id")
	v, err := a.store.Get(c.Request.Context(), id)
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		respondError(c, http.StatusNotFound, "NotFound", fmt.Sprintf("video %s not found", id))
	case err != nil:
		a.log.ErrorContext(c.Request.Context(), "Get video failed", "video_id", id, "error", err)
		respondError(c, http.StatusInternalServerError, "Internal", "failed to get video")
	default:
		c.JSON(http.StatusOK, v)
	}
}

func (a *api) listVideos(c *gin.Context) {
	limit := defaultPageSize
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, string(pipeline.KindInvalidRequest), "limit must be a positive integer")
			return
		}
		limit = n
	}
	items, next, err := a.store.List(c.Request.Context(), limit, c.Query("cursor"))
	if err != nil {
		a.log.ErrorContext(c.Request.Context(), "List videos failed", "error", err)
		respondError(c, http.StatusInternalServerError, "Internal", "failed to list videos")
		return
	}
	c.JSON(http.StatusOK, listResponse{Videos: items, Count: len(items), NextCursor: next})
}

func (a *api) cancelVideo(c *gin.Context) {
	id := c.Param("id")
	if !a.tasks.Cancel(id) {
		respondError(c, http.StatusNotFound, "NotFound", fmt.Sprintf("video %s is not running", id))
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "message": "Cancellation requested."})
}

// requestLogger logs one line per request, at a level that follows the
// response status.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			log.ErrorContext(ctx, "HTTP request", attrs...)
		case status >= 400:
			log.WarnContext(ctx, "HTTP request", attrs...)
		default:
			log.InfoContext(ctx, "HTTP request", attrs...)
		}
	}
}
