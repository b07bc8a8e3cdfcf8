package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/apresai/eduanim/internal/jobstore"
	"github.com/apresai/eduanim/internal/observability"
	"github.com/apresai/eduanim/internal/pipeline"
	"github.com/apresai/eduanim/internal/progress"
)

// ErrBusy is returned when every task slot is taken.
var ErrBusy = errors.New("max concurrent tasks reached")

// finalWriteTimeout bounds the last store write of a job whose context
// is already canceled.
const finalWriteTimeout = 5 * time.Second

// Generator runs generation requests. *pipeline.Pipeline implements it.
type Generator interface {
	Generate(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	GenerateWithProgress(ctx context.Context, req pipeline.Request) iter.Seq[progress.Event]
}

// GenerateRequest holds the parameters of one video job.
type GenerateRequest struct {
	Topic      string
	Complexity string
	Domain     string
	Style      string
	Source     string
	Owner      string
}

func (r GenerateRequest) pipelineRequest(id string) pipeline.Request {
	return pipeline.Request{
		Topic:      r.Topic,
		Complexity: r.Complexity,
		Domain:     r.Domain,
		Style:      r.Style,
		Source:     r.Source,
		ID:         id,
	}
}

// TaskManager runs generation jobs with bounded concurrency and records
// their state in a jobstore.Store.
type TaskManager struct {
	gen     Generator
	store   jobstore.Store
	model   string
	log     *slog.Logger
	baseCtx context.Context // canceled on shutdown

	wg       sync.WaitGroup
	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	maxTasks int
	running  int
}

// NewTaskManager creates a task manager. baseCtx should be canceled on
// SIGTERM so background jobs stop and record their failure.
func NewTaskManager(baseCtx context.Context, gen Generator, store jobstore.Store, maxTasks int, model string, logger *slog.Logger) *TaskManager {
	if maxTasks <= 0 {
		maxTasks = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskManager{
		gen:      gen,
		store:    store,
		model:    model,
		log:      logger,
		baseCtx:  baseCtx,
		cancels:  make(map[string]context.CancelFunc),
		maxTasks: maxTasks,
	}
}

func (tm *TaskManager) acquire(id string, cancel context.CancelFunc) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.running >= tm.maxTasks {
		return fmt.Errorf("%w (%d)", ErrBusy, tm.maxTasks)
	}
	tm.running++
	tm.cancels[id] = cancel
	return nil
}

func (tm *TaskManager) release(id string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if cancel, ok := tm.cancels[id]; ok {
		cancel()
		delete(tm.cancels, id)
	}
	tm.running--
}

// Running returns the number of jobs in flight.
func (tm *TaskManager) Running() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.running
}

func (tm *TaskManager) create(ctx context.Context, id string, req GenerateRequest) error {
	err := tm.store.Create(ctx, &jobstore.Video{
		ID:         id,
		Topic:      req.Topic,
		Complexity: req.Complexity,
		Domain:     req.Domain,
		Style:      req.Style,
		Model:      tm.model,
		Owner:      req.Owner,
		Status:     jobstore.StatusSubmitted,
	})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

// StartTask records a job and runs it in the background. It returns the
// job ID immediately.
func (tm *TaskManager) StartTask(ctx context.Context, req GenerateRequest) (string, error) {
	id, err := jobstore.NewID()
	if err != nil {
		return "", err
	}

	// The job outlives the request that started it but keeps its trace.
	taskCtx := observability.DetachTraceContextFrom(ctx, tm.baseCtx)
	taskCtx, cancel := context.WithCancel(taskCtx)
	if err := tm.acquire(id, cancel); err != nil {
		cancel()
		return "", err
	}
	if err := tm.create(ctx, id, req); err != nil {
		tm.release(id)
		return "", err
	}

	tm.wg.Add(1)
	go func() {
		defer tm.wg.Done()
		defer tm.release(id)
		_, _ = tm.run(taskCtx, id, req)
	}()
	return id, nil
}

// Run records a job and generates it before returning.
func (tm *TaskManager) Run(ctx context.Context, req GenerateRequest) (string, *pipeline.Result, error) {
	id, err := jobstore.NewID()
	if err != nil {
		return "", nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := tm.acquire(id, cancel); err != nil {
		cancel()
		return "", nil, err
	}
	defer tm.release(id)
	if err := tm.create(ctx, id, req); err != nil {
		return "", nil, err
	}

	res, err := tm.run(ctx, id, req)
	return id, res, err
}

func (tm *TaskManager) run(ctx context.Context, id string, req GenerateRequest) (*pipeline.Result, error) {
	ctx, span := tracer.Start(ctx, "task.run",
		trace.WithAttributes(attribute.String("video_id", id)),
	)
	defer span.End()

	log := tm.log.With("video_id", id)
	preq := req.pipelineRequest(id)
	preq.OnProgress = func(evt progress.Event) {
		if evt.Terminal() {
			return
		}
		tm.record(ctx, id, evt)
	}

	res, err := tm.gen.Generate(ctx, preq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(pipeline.KindOf(err)))
		log.ErrorContext(ctx, "Video generation failed", "error", err)
		tm.fail(ctx, id, pipeline.PublicMessage(err))
		return nil, err
	}

	c := jobstore.Completion{
		VideoURL:     res.VideoURL,
		UsedFallback: res.Metadata.UsedFallback,
	}
	if res.Plan != nil {
		c.Title = res.Plan.Title
		if data, err := json.Marshal(res.Plan); err == nil {
			c.PlanJSON = string(data)
		}
	}
	if err := tm.store.Complete(context.WithoutCancel(ctx), id, c); err != nil {
		log.ErrorContext(ctx, "Record completion failed", "error", err)
	}
	log.InfoContext(ctx, "Video generated", "video_url", res.VideoURL, "used_fallback", c.UsedFallback)
	return res, nil
}

// Stream generates req and yields its progress events while recording
// them. The job counts against the concurrency limit only while the
// sequence is being ranged.
func (tm *TaskManager) Stream(ctx context.Context, req GenerateRequest) (string, iter.Seq[progress.Event], error) {
	id, err := jobstore.NewID()
	if err != nil {
		return "", nil, err
	}
	return id, func(yield func(progress.Event) bool) {
		// Runs that end before the pipeline starts still open with Started.
		fail := func(reason string) {
			if yield(progress.Started(fmt.Sprintf("Starting generation for %q", req.Topic))) {
				yield(progress.Failed(reason))
			}
		}
		ctx, cancel := context.WithCancel(ctx)
		if err := tm.acquire(id, cancel); err != nil {
			cancel()
			fail("The server is busy. Please try again shortly.")
			return
		}
		defer tm.release(id)
		if err := tm.create(ctx, id, req); err != nil {
			tm.log.ErrorContext(ctx, "Create streamed job failed", "video_id", id, "error", err)
			fail("Video generation failed.")
			return
		}

		terminal := false
		for evt := range tm.gen.GenerateWithProgress(ctx, req.pipelineRequest(id)) {
			switch evt.Kind {
			case progress.KindCompleted:
				terminal = true
				err := tm.store.Complete(context.WithoutCancel(ctx), id, jobstore.Completion{VideoURL: evt.ArtifactURL})
				if err != nil {
					tm.log.ErrorContext(ctx, "Record completion failed", "video_id", id, "error", err)
				}
			case progress.KindFailed:
				terminal = true
				tm.fail(ctx, id, evt.Reason)
			default:
				tm.record(ctx, id, evt)
			}
			if !yield(evt) {
				break
			}
		}
		if !terminal {
			tm.fail(ctx, id, "The progress stream closed before the video was ready.")
		}
	}, nil
}

// Cancel stops a running job. It reports whether the job was running.
func (tm *TaskManager) Cancel(id string) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	cancel, ok := tm.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every background job has returned.
func (tm *TaskManager) Wait() {
	tm.wg.Wait()
}

func (tm *TaskManager) record(ctx context.Context, id string, evt progress.Event) {
	trace.SpanFromContext(ctx).AddEvent("stage_transition",
		trace.WithAttributes(
			attribute.String("status", evt.Status()),
			attribute.Float64("percent", evt.Percent),
		),
	)
	if err := tm.store.UpdateProgress(ctx, id, evt.Status(), evt.Percent, evt.Message); err != nil {
		tm.log.WarnContext(ctx, "Update progress failed", "video_id", id, "error", err)
	}
}

// fail records a failed job. It still writes when ctx is canceled, so a
// job stopped by shutdown does not look stuck.
func (tm *TaskManager) fail(ctx context.Context, id, reason string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalWriteTimeout)
	defer cancel()
	if err := tm.store.Fail(wctx, id, reason); err != nil {
		tm.log.ErrorContext(ctx, "Record failure failed", "video_id", id, "error", err)
	}
}
