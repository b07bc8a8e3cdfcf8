// Package pipeline turns a topic into a rendered, stored educational video.
//
// A run is strictly sequential: plan, program, extraction and repair,
// render, optional narration, then storage. Each request owns its memory
// and work directory, so independent runs share no mutable state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/eduanim/internal/assembly"
	"github.com/apresai/eduanim/internal/extract"
	"github.com/apresai/eduanim/internal/fallback"
	"github.com/apresai/eduanim/internal/ingest"
	"github.com/apresai/eduanim/internal/llm"
	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/program"
	"github.com/apresai/eduanim/internal/progress"
	"github.com/apresai/eduanim/internal/render"
	"github.com/apresai/eduanim/internal/repair"
	"github.com/apresai/eduanim/internal/storage"
	"github.com/apresai/eduanim/internal/style"
	"github.com/apresai/eduanim/internal/tts"
)

var tracer = otel.Tracer("eduanim-pipeline")

// DefaultDomain lets the model pick the subject area.
const DefaultDomain = "auto-detect"

// errStopped ends a streamed run whose consumer stopped ranging.
var errStopped = errors.New("progress consumer stopped")

// Options configures a Pipeline. Model and Executor are required.
type Options struct {
	Model    llm.Model
	Executor render.Executor
	// Uploader is optional. Without one, or when an upload fails, the
	// video is kept in OutputDir and its path is the reference.
	Uploader storage.Uploader
	// Narrator and Muxer together enable the voice-over.
	Narrator tts.Provider
	Muxer    assembly.Muxer

	Policy   plan.DomainPolicy
	Style    style.Profile
	Branding string
	Quality  render.Quality

	// MemorySize is the per-request reply memory, clamped by program.NewMemory.
	MemorySize int
	// RefineAttempts is how many times an unrepairable program is sent
	// back to the model before the fallback is used.
	RefineAttempts int
	// FallbackOnExtractionFailure renders the fallback program instead of
	// failing when no program can be extracted from the reply.
	FallbackOnExtractionFailure bool

	// WorkRoot holds the per-request work directories. Defaults to the
	// system temp dir.
	WorkRoot string
	// OutputDir receives videos that are not uploaded. Defaults to ".".
	OutputDir string

	// Progress, when set, receives every event of Generate.
	Progress progress.Callback
	Logger   *slog.Logger
}

// Request is one video to generate.
type Request struct {
	Topic      string
	Complexity string
	Domain     string
	// Style overrides Options.Style for this request.
	Style string
	// ID prefixes the artifact name. Usually the job ID.
	ID string
	// Source is an optional URL, PDF or text file used as reference
	// material for the plan.
	Source string
	// OnProgress overrides Options.Progress for Generate.
	OnProgress progress.Callback
}

// Result mirrors the response of the blocking call.
type Result struct {
	ID         string    `json:"id,omitempty"`
	Reference  string    `json:"artifact_reference"`
	Topic      string    `json:"topic"`
	Complexity string    `json:"complexity"`
	Domain     string    `json:"domain"`
	Timestamp  time.Time `json:"timestamp"`
	// VideoURL is the storage URL, or the local path when the upload
	// degraded.
	VideoURL   string          `json:"video_url"`
	LocalPath  string          `json:"local_path,omitempty"`
	Plan       *plan.Plan      `json:"educational_breakdown"`
	Storyboard plan.Storyboard `json:"manim_structure"`
	Metadata   Metadata        `json:"generation_metadata"`
}

// Metadata describes how a video was produced.
type Metadata struct {
	Model              string           `json:"model"`
	Style              style.Name       `json:"style"`
	ClassName          string           `json:"class_name"`
	ExtractionStrategy extract.Strategy `json:"extraction_strategy,omitempty"`
	RepairActions      int              `json:"repair_actions"`
	RefineAttempts     int              `json:"refine_attempts,omitempty"`
	UsedFallback       bool             `json:"used_fallback"`
	PlanIssues         []plan.Issue     `json:"plan_issues,omitempty"`
	ReferenceTitle     string           `json:"reference_title,omitempty"`
	Narrated           bool             `json:"narrated"`
	Uploaded           bool             `json:"uploaded"`
	DurationMS         int64            `json:"duration_ms"`
}

// Pipeline runs generation requests. It is safe for concurrent use.
type Pipeline struct {
	opts    Options
	planner *plan.Synthesizer
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Model == nil {
		return nil, &Error{Kind: KindConfiguration, Message: "no language model configured"}
	}
	if opts.Executor == nil {
		return nil, &Error{Kind: KindConfiguration, Message: "no render executor configured"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Style.Name == "" {
		opts.Style = style.MustLookup(style.Default)
	}
	if opts.Quality == "" {
		opts.Quality = render.DefaultQuality
	}
	if opts.MemorySize == 0 {
		opts.MemorySize = program.DefaultMemory
	}
	if opts.WorkRoot == "" {
		opts.WorkRoot = os.TempDir()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &Pipeline{
		opts:    opts,
		planner: plan.NewSynthesizer(opts.Model, opts.Policy, opts.Logger),
		log:     opts.Logger,
		now:     time.Now,
	}, nil
}

// Generate runs req to completion. Progress events go to req.OnProgress,
// or Options.Progress when the request sets none.
func (p *Pipeline) Generate(ctx context.Context, req Request) (*Result, error) {
	cb := req.OnProgress
	if cb == nil {
		cb = p.opts.Progress
	}
	if cb == nil {
		cb = progress.NopCallback
	}
	start := time.Now()
	emit := func(e progress.Event) bool {
		e.Elapsed = time.Since(start)
		cb(e)
		return true
	}

	res, err := p.run(ctx, req, emit)
	if err != nil {
		emit(progress.Failed(PublicMessage(err)))
		return nil, err
	}
	emit(progress.Completed(res.Reference, "Video ready"))
	return res, nil
}

// GenerateWithProgress returns the run as a sequence of events. The
// sequence can be ranged once; ranging it again yields a single Failed
// event. Breaking out of the range stops the run at the next stage
// boundary.
func (p *Pipeline) GenerateWithProgress(ctx context.Context, req Request) iter.Seq[progress.Event] {
	var used atomic.Bool
	return func(yield func(progress.Event) bool) {
		if used.Swap(true) {
			yield(progress.Failed("This progress stream was already consumed."))
			return
		}
		start := time.Now()
		emit := func(e progress.Event) bool {
			e.Elapsed = time.Since(start)
			return yield(e)
		}

		res, err := p.run(ctx, req, emit)
		switch {
		case errors.Is(err, errStopped):
			return
		case err != nil:
			emit(progress.Failed(PublicMessage(err)))
		default:
			emit(progress.Completed(res.Reference, "Video ready"))
		}
	}
}

// run executes the stages, reporting each through emit. It returns
// errStopped as soon as emit returns false.
func (p *Pipeline) run(ctx context.Context, req Request, emit func(progress.Event) bool) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "pipeline.generate")
	defer span.End()
	defer func() {
		if err != nil && !errors.Is(err, errStopped) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	started := time.Now()
	req.Topic = strings.TrimSpace(req.Topic)
	if !emit(progress.Started(fmt.Sprintf("Starting generation for %q", req.Topic))) {
		return nil, errStopped
	}

	complexity, err := plan.ParseComplexity(req.Complexity)
	if err != nil {
		return nil, &Error{Stage: progress.StageContent, Kind: KindInvalidRequest, Message: "unknown complexity level", Err: err}
	}
	if req.Topic == "" {
		return nil, &Error{Stage: progress.StageContent, Kind: KindInvalidRequest, Message: "topic is empty"}
	}
	prof := p.opts.Style
	if req.Style != "" {
		if prof, err = style.Lookup(req.Style); err != nil {
			return nil, &Error{Stage: progress.StageContent, Kind: KindInvalidRequest, Message: "unknown render style", Err: err}
		}
	}
	if req.Domain == "" {
		req.Domain = DefaultDomain
	}
	span.SetAttributes(
		attribute.String("pipeline.topic", req.Topic),
		attribute.String("pipeline.complexity", string(complexity)),
		attribute.String("pipeline.style", string(prof.Name)),
	)

	ts := p.now()
	slug := Slug(req.Topic)
	workDir, err := newWorkDir(p.opts.WorkRoot, ts, slug)
	if err != nil {
		return nil, &Error{Stage: progress.StageContent, Kind: KindConfiguration, Message: "could not create work directory", Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(workDir); rmErr != nil {
			p.log.Warn("work directory cleanup failed", "dir", workDir, "error", rmErr)
		}
	}()

	res = &Result{
		ID:         req.ID,
		Topic:      req.Topic,
		Complexity: string(complexity),
		Domain:     req.Domain,
		Timestamp:  ts,
		Metadata:   Metadata{Model: p.opts.Model.Name(), Style: prof.Name},
	}

	// Stage 1: plan
	if !emit(progress.StageEvent(progress.StageContent, "Generating educational content...")) {
		return nil, errStopped
	}
	pl, err := p.planStage(ctx, req, complexity, res)
	if err != nil {
		return nil, err
	}
	res.Plan = pl
	res.Storyboard = plan.BuildStoryboard(pl)

	// Stages 2-4: program, extraction, repair
	if !emit(progress.StageEvent(progress.StageCode, "Generating animation code...")) {
		return nil, errStopped
	}
	prog, err := p.programStage(ctx, pl, prof, res)
	if err != nil {
		return nil, err
	}
	res.Metadata.ClassName = prog.ClassName

	// Stage 5: render, then the optional voice-over
	if !emit(progress.StageEvent(progress.StageRendering, "Rendering animation...")) {
		return nil, errStopped
	}
	video, err := p.renderStage(ctx, prog, workDir)
	if err != nil {
		return nil, err
	}
	video, res.Metadata.Narrated = p.narrate(ctx, pl, video, workDir)

	// Stages 6-7: rename and store
	if !emit(progress.StageEvent(progress.StageSaving, "Saving video...")) {
		return nil, errStopped
	}
	if err := p.saveStage(ctx, req.ID, slug, ts, video, workDir, res); err != nil {
		return nil, err
	}

	res.Metadata.DurationMS = time.Since(started).Milliseconds()
	p.log.Info("video generated",
		"stage", "saving",
		"topic", req.Topic,
		"reference", res.Reference,
		"used_fallback", res.Metadata.UsedFallback,
		"narrated", res.Metadata.Narrated,
		"uploaded", res.Metadata.Uploaded,
		"duration_ms", res.Metadata.DurationMS,
	)
	return res, nil
}

func (p *Pipeline) planStage(ctx context.Context, req Request, complexity plan.Complexity, res *Result) (*plan.Plan, error) {
	var reference string
	if req.Source != "" {
		ref, err := ingest.Load(ctx, req.Source, p.log)
		if err != nil {
			return nil, &Error{Stage: progress.StageContent, Kind: KindInvalidRequest, Message: "could not read the reference material", Err: err}
		}
		reference = ref.Text
		res.Metadata.ReferenceTitle = ref.Title
	}

	pl, issues, err := p.planner.Synthesize(ctx, plan.Request{
		Topic:      req.Topic,
		Complexity: complexity,
		Domain:     req.Domain,
		Reference:  reference,
	})
	if err != nil {
		return nil, &Error{Stage: progress.StageContent, Kind: KindPlanGeneration, Message: "failed to generate educational plan", Err: err}
	}
	res.Metadata.PlanIssues = issues
	return pl, nil
}

// programStage returns a program that is safe to render: the repaired
// model program, or the fallback built from pl when repair is exhausted.
func (p *Pipeline) programStage(ctx context.Context, pl *plan.Plan, prof style.Profile, res *Result) (*repair.Program, error) {
	synth := program.NewSynthesizer(p.opts.Model, program.Options{
		Style:    prof,
		Branding: p.opts.Branding,
		Logger:   p.log,
	})
	engine := repair.New(repair.Options{AllowLaTeX: prof.AllowLaTeX, Logger: p.log})
	fallbacks := fallback.New(prof, p.opts.Branding)
	mem := program.NewMemory(p.opts.MemorySize)

	reply, err := synth.Synthesize(ctx, pl, mem)
	if err != nil {
		return nil, &Error{Stage: progress.StageCode, Kind: KindCodeGeneration, Message: "failed to generate animation code", Err: err}
	}

	prog, err := p.extractAndRepair(reply, engine, res)
	if err != nil {
		if !p.opts.FallbackOnExtractionFailure {
			return nil, err
		}
		p.log.Warn("no program in reply, using fallback", "stage", "code", "error", err)
		res.Metadata.UsedFallback = true
		return fallbacks.FromPlan(pl), nil
	}

	for attempt := 1; !prog.IsValid && attempt <= p.opts.RefineAttempts; attempt++ {
		res.Metadata.RefineAttempts = attempt
		feedback := fmt.Sprintf("The program does not parse (%s). Return the complete corrected program.", prog.Reason)
		reply, err := synth.Refine(ctx, feedback, mem)
		if err != nil {
			p.log.Warn("refine failed", "stage", "code", "attempt", attempt, "error", err)
			break
		}
		next, err := p.extractAndRepair(reply, engine, res)
		if err != nil {
			p.log.Warn("refined reply has no program", "stage", "code", "attempt", attempt)
			continue
		}
		prog = next
	}

	if !prog.IsValid {
		verr := &Error{Stage: progress.StageCode, Kind: KindValidationExhausted, Message: "program could not be repaired", Err: prog.Failure()}
		p.log.Warn("using fallback program", "stage", "code", "error", verr)
		res.Metadata.UsedFallback = true
		return fallbacks.FromPlan(pl), nil
	}
	return prog, nil
}

func (p *Pipeline) extractAndRepair(reply string, engine *repair.Engine, res *Result) (*repair.Program, error) {
	candidate, strategy, ok := extract.Extract(reply)
	if !ok {
		return nil, &Error{Stage: progress.StageCode, Kind: KindCodeExtraction, Message: "no animation program found in model reply", Err: extract.ErrNoProgram}
	}
	res.Metadata.ExtractionStrategy = strategy

	prog := engine.Repair(candidate)
	res.Metadata.RepairActions += len(prog.Diagnostics)
	p.log.Info("program repaired",
		"stage", "code",
		"strategy", strategy,
		"class", prog.ClassName,
		"actions", len(prog.Diagnostics),
		"valid", prog.IsValid,
	)
	return prog, nil
}

func (p *Pipeline) renderStage(ctx context.Context, prog *repair.Program, workDir string) (string, error) {
	start := time.Now()
	video, err := p.opts.Executor.Render(ctx, render.Job{
		Source:    prog.Source,
		ClassName: prog.ClassName,
		Dir:       workDir,
		Quality:   p.opts.Quality,
	})
	if err != nil {
		return "", &Error{Stage: progress.StageRendering, Kind: KindRenderFailure, Message: "render failed", Err: err}
	}
	info, err := os.Stat(video)
	if err != nil {
		return "", &Error{Stage: progress.StageRendering, Kind: KindRenderFailure, Message: "rendered video is missing", Err: err}
	}
	if info.Size() == 0 {
		return "", &Error{Stage: progress.StageRendering, Kind: KindRenderFailure, Message: "rendered video is empty", Err: render.ErrNoOutput}
	}
	p.log.Info("video rendered",
		"stage", "rendering",
		"class", prog.ClassName,
		"bytes", info.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return video, nil
}
