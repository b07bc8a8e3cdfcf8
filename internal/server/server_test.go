package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/apresai/eduanim/internal/extract"
	"github.com/apresai/eduanim/internal/jobstore"
	"github.com/apresai/eduanim/internal/pipeline"
	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/progress"
)

const videoURL = "https://cdn.example.com/videos/newton.mp4"

// fakeGen walks through the stages without generating anything. When
// block is set, it waits at the rendering stage until block is closed or
// the run is canceled.
type fakeGen struct {
	mu    sync.Mutex
	reqs  []pipeline.Request
	err   error
	block chan struct{}
}

func (f *fakeGen) requests() []pipeline.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Request(nil), f.reqs...)
}

func (f *fakeGen) Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	cb := req.OnProgress
	if cb == nil {
		cb = progress.NopCallback
	}
	fail := func(err error) (*pipeline.Result, error) {
		cb(progress.Failed(pipeline.PublicMessage(err)))
		return nil, err
	}

	cb(progress.Started("Starting"))
	for _, st := range progress.Stages() {
		if st == progress.StageRendering && f.block != nil {
			select {
			case <-f.block:
			case <-ctx.Done():
				return fail(&pipeline.Error{Stage: st, Kind: pipeline.KindRenderFailure, Message: "render stopped", Err: ctx.Err()})
			}
		}
		cb(progress.StageEvent(st, string(st)))
	}
	if f.err != nil {
		return fail(f.err)
	}
	res := &pipeline.Result{
		ID:        req.ID,
		Reference: videoURL,
		VideoURL:  videoURL,
		Topic:     req.Topic,
		Plan:      &plan.Plan{Title: "Newton's First Law"},
		Metadata:  pipeline.Metadata{UsedFallback: true},
	}
	cb(progress.Completed(videoURL, "Video ready"))
	return res, nil
}

func (f *fakeGen) GenerateWithProgress(ctx context.Context, req pipeline.Request) iter.Seq[progress.Event] {
	return func(yield func(progress.Event) bool) {
		var events []progress.Event
		req.OnProgress = func(e progress.Event) { events = append(events, e) }
		_, _ = f.Generate(ctx, req)
		for _, e := range events {
			if !yield(e) {
				return
			}
		}
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTasks(t *testing.T, gen Generator, maxTasks int) (*TaskManager, *jobstore.Memory) {
	t.Helper()
	store := jobstore.NewMemory()
	return NewTaskManager(context.Background(), gen, store, maxTasks, "sonnet", quietLogger()), store
}

func TestRunRecordsCompletion(t *testing.T) {
	defer goleak.VerifyNone(t)
	gen := &fakeGen{}
	tm, store := newTasks(t, gen, 2)

	id, res, err := tm.Run(context.Background(), GenerateRequest{Topic: "Newton's first law", Complexity: "beginner"})
	require.NoError(t, err)
	assert.Equal(t, videoURL, res.VideoURL)
	assert.Equal(t, id, gen.requests()[0].ID)
	assert.Equal(t, "beginner", gen.requests()[0].Complexity)

	v, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, v.Status)
	assert.Equal(t, "Newton's First Law", v.Title)
	assert.Equal(t, videoURL, v.VideoURL)
	assert.Equal(t, "sonnet", v.Model)
	assert.True(t, v.UsedFallback)
	assert.Contains(t, v.PlanJSON, `"title":"Newton's First Law"`)
	assert.Equal(t, 0, tm.Running())
}

func TestRunRecordsFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	runErr := &pipeline.Error{Stage: progress.StageCode, Kind: pipeline.KindCodeExtraction, Message: "no program in reply", Err: extract.ErrNoProgram}
	tm, store := newTasks(t, &fakeGen{err: runErr}, 2)

	id, _, err := tm.Run(context.Background(), GenerateRequest{Topic: "Entropy"})
	require.ErrorIs(t, err, extract.ErrNoProgram)

	v, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusError, v.Status)
	assert.Equal(t, pipeline.PublicMessage(runErr), v.ErrorMessage)
	assert.NotContains(t, v.ErrorMessage, "no program in reply")
}

func TestStartTaskCancel(t *testing.T) {
	defer goleak.VerifyNone(t)
	gen := &fakeGen{block: make(chan struct{})}
	tm, store := newTasks(t, gen, 2)

	id, err := tm.StartTask(context.Background(), GenerateRequest{Topic: "Orbits"})
	require.NoError(t, err)
	assert.Equal(t, 1, tm.Running())

	assert.True(t, tm.Cancel(id))
	tm.Wait()
	assert.False(t, tm.Cancel(id))

	v, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusError, v.Status)
	assert.Equal(t, "Generation was canceled.", v.ErrorMessage)
	assert.Equal(t, 0, tm.Running())
}

func TestStartTaskConcurrencyLimit(t *testing.T) {
	defer goleak.VerifyNone(t)
	gen := &fakeGen{block: make(chan struct{})}
	tm, store := newTasks(t, gen, 1)

	id, err := tm.StartTask(context.Background(), GenerateRequest{Topic: "Waves"})
	require.NoError(t, err)

	_, err = tm.StartTask(context.Background(), GenerateRequest{Topic: "Tides"})
	assert.ErrorIs(t, err, ErrBusy)
	_, _, err = tm.Run(context.Background(), GenerateRequest{Topic: "Tides"})
	assert.ErrorIs(t, err, ErrBusy)

	close(gen.block)
	tm.Wait()

	v, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, v.Status)

	videos, _, err := store.List(context.Background(), 10, "")
	require.NoError(t, err)
	assert.Len(t, videos, 1)
}

func TestStreamRecordsEvents(t *testing.T) {
	defer goleak.VerifyNone(t)
	tm, store := newTasks(t, &fakeGen{}, 1)

	id, seq, err := tm.Stream(context.Background(), GenerateRequest{Topic: "Photosynthesis"})
	require.NoError(t, err)

	var events []progress.Event
	for e := range seq {
		events = append(events, e)
	}
	require.NoError(t, progress.Validate(events))
	assert.Equal(t, progress.KindCompleted, events[len(events)-1].Kind)

	v, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, v.Status)
	assert.Equal(t, videoURL, v.VideoURL)
	assert.Equal(t, 0, tm.Running())
}

func TestStreamStoppedEarly(t *testing.T) {
	defer goleak.VerifyNone(t)
	tm, store := newTasks(t, &fakeGen{}, 1)

	id, seq, err := tm.Stream(context.Background(), GenerateRequest{Topic: "Photosynthesis"})
	require.NoError(t, err)
	for range seq {
		break
	}

	v, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusError, v.Status)
	assert.Equal(t, 0, tm.Running())
}

func TestStreamBusy(t *testing.T) {
	defer goleak.VerifyNone(t)
	gen := &fakeGen{block: make(chan struct{})}
	tm, _ := newTasks(t, gen, 1)
	_, err := tm.StartTask(context.Background(), GenerateRequest{Topic: "Waves"})
	require.NoError(t, err)

	_, seq, err := tm.Stream(context.Background(), GenerateRequest{Topic: "Tides"})
	require.NoError(t, err)
	var events []progress.Event
	for e := range seq {
		events = append(events, e)
	}
	require.Len(t, events, 2)
	assert.Equal(t, progress.KindStarted, events[0].Kind)
	assert.Contains(t, events[0].Message, "Tides")
	assert.Equal(t, progress.KindFailed, events[1].Kind)
	assert.Contains(t, events[1].Reason, "busy")

	close(gen.block)
	tm.Wait()
}

func newTestServer(t *testing.T, gen Generator) (*Server, *TaskManager, *jobstore.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tm, store := newTasks(t, gen, 2)
	return New(tm, store, Options{Logger: quietLogger()}), tm, store
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateVideoBlocking(t *testing.T) {
	srv, _, store := newTestServer(t, &fakeGen{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/videos", `{"topic":"Newton's first law","style":"whiteboard"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res pipeline.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, videoURL, res.Reference)
	assert.Equal(t, "Newton's First Law", res.Plan.Title)

	v, err := store.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "whiteboard", v.Style)
	assert.Equal(t, jobstore.StatusCompleted, v.Status)
}

func TestCreateVideoRejectsBadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeGen{})
	for name, body := range map[string]string{
		"no topic":     `{"complexity":"beginner"}`,
		"blank topic":  `{"topic":"   "}`,
		"not json":     `topic=x`,
		"local source": `{"topic":"x","source":"/etc/passwd"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, srv.Handler(), http.MethodPost, "/api/videos", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var env ErrorEnvelope
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, string(pipeline.KindInvalidRequest), env.Error.Code)
		})
	}
}

func TestCreateVideoFailureIsSanitized(t *testing.T) {
	runErr := &pipeline.Error{Stage: progress.StageContent, Kind: pipeline.KindPlanGeneration, Message: "policy rejected topic", Err: plan.ErrTopicNotAllowed}
	srv, _, store := newTestServer(t, &fakeGen{err: runErr})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/videos", `{"topic":"Stock tips"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "This topic is outside the subjects this service covers.", env.Error.Message)
	assert.NotEmpty(t, env.Error.ID)

	v, err := store.Get(context.Background(), env.Error.ID)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusError, v.Status)
}

func TestCreateVideoAsyncThenGet(t *testing.T) {
	srv, tm, _ := newTestServer(t, &fakeGen{})

	rec := do(t, srv.Handler(), http.MethodPost, "/api/videos", `{"topic":"Orbits","async":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted struct{ ID, Status string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	assert.Equal(t, jobstore.StatusSubmitted, accepted.Status)
	tm.Wait()

	rec = do(t, srv.Handler(), http.MethodGet, "/api/videos/"+accepted.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v jobstore.Video
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, jobstore.StatusCompleted, v.Status)
	assert.Equal(t, videoURL, v.VideoURL)

	rec = do(t, srv.Handler(), http.MethodGet, "/api/videos?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var page listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, accepted.ID, page.Videos[0].ID)
}

func TestGetAndListErrors(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeGen{})
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodGet, "/api/videos/01MISSING", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv.Handler(), http.MethodGet, "/api/videos?limit=zero", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv.Handler(), http.MethodPost, "/api/videos/01MISSING/cancel", "").Code)
}

func TestHealthcheck(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeGen{})
	rec := do(t, srv.Handler(), http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","running":0}`, rec.Body.String())
}

func TestStreamVideoSSE(t *testing.T) {
	srv, _, store := newTestServer(t, &fakeGen{})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/videos/stream?topic=Newton%27s+first+law", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	id := rec.Header().Get("X-Video-Id")
	require.NotEmpty(t, id)

	var statuses []string
	var last progress.Wire
	sc := bufio.NewScanner(rec.Body)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		require.True(t, ok, line)
		require.NoError(t, json.Unmarshal([]byte(data), &last))
		statuses = append(statuses, last.Status)
	}
	assert.Equal(t, []string{
		progress.StatusStarted,
		progress.StatusGeneratingContent,
		progress.StatusGeneratingCode,
		progress.StatusRendering,
		progress.StatusSaving,
		progress.StatusCompleted,
	}, statuses)
	assert.Equal(t, videoURL, last.VideoURL)

	v, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobstore.StatusCompleted, v.Status)
}

func TestStreamVideoRequiresTopic(t *testing.T) {
	srv, _, _ := newTestServer(t, &fakeGen{})
	assert.Equal(t, http.StatusBadRequest, do(t, srv.Handler(), http.MethodGet, "/api/videos/stream", "").Code)
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tm, store := newTasks(t, &fakeGen{}, 1)
	srv := New(tm, store, Options{Logger: quietLogger(), CORSOrigins: []string{"http://localhost:5173"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/videos", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", ErrBusy), http.StatusTooManyRequests},
		{&pipeline.Error{Kind: pipeline.KindInvalidRequest}, http.StatusBadRequest},
		{&pipeline.Error{Kind: pipeline.KindPlanGeneration, Err: plan.ErrTopicNotAllowed}, http.StatusUnprocessableEntity},
		{&pipeline.Error{Kind: pipeline.KindPlanGeneration, Err: plan.ErrPlanGeneration}, http.StatusBadGateway},
		{&pipeline.Error{Kind: pipeline.KindCodeExtraction}, http.StatusBadGateway},
		{&pipeline.Error{Kind: pipeline.KindRenderFailure}, http.StatusInternalServerError},
		{&pipeline.Error{Kind: pipeline.KindRenderFailure, Err: context.Canceled}, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func callTool(t *testing.T, fn func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := fn(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestTools(t *testing.T) {
	tm, store := newTasks(t, &fakeGen{}, 2)
	h := NewHandlers(tm, store, quietLogger())

	out, isErr := callTool(t, h.HandleGenerateVideo, map[string]any{"topic": "Pythagorean theorem", "complexity": "middle_school"})
	require.False(t, isErr, out)
	var started struct {
		VideoID string `json:"video_id"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &started))
	assert.Equal(t, jobstore.StatusSubmitted, started.Status)
	tm.Wait()

	out, isErr = callTool(t, h.HandleGetVideo, map[string]any{"video_id": started.VideoID})
	require.False(t, isErr, out)
	var v jobstore.Video
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, jobstore.StatusCompleted, v.Status)
	assert.Equal(t, "Pythagorean theorem", v.Topic)

	out, isErr = callTool(t, h.HandleListVideos, map[string]any{"limit": float64(10)})
	require.False(t, isErr, out)
	var page listResponse
	require.NoError(t, json.Unmarshal([]byte(out), &page))
	assert.Equal(t, 1, page.Count)

	_, isErr = callTool(t, h.HandleGenerateVideo, map[string]any{})
	assert.True(t, isErr)
	_, isErr = callTool(t, h.HandleGenerateVideo, map[string]any{"topic": "x", "source": "file:///etc/passwd"})
	assert.True(t, isErr)
	_, isErr = callTool(t, h.HandleGetVideo, map[string]any{"video_id": "01MISSING"})
	assert.True(t, isErr)
	_, isErr = callTool(t, h.HandleCancelVideo, map[string]any{"video_id": "01MISSING"})
	assert.True(t, isErr)
}

func TestToolDefs(t *testing.T) {
	names := make([]string, 0, 4)
	for _, tool := range ToolDefs() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"generate_video", "get_video", "list_videos", "cancel_video"}, names)
	assert.Equal(t, []string{"topic"}, ToolDefs()[0].InputSchema.Required)
}
