package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/apresai/eduanim/internal/jobstore"
	"github.com/apresai/eduanim/internal/plan"
	"github.com/apresai/eduanim/internal/style"
)

var tracer = otel.Tracer("eduanim-server")

const defaultPageSize = 20

// ToolDefs returns the MCP tool definitions.
func ToolDefs() []mcp.Tool {
	complexities := make([]string, 0, len(plan.Complexities()))
	for _, c := range plan.Complexities() {
		complexities = append(complexities, string(c))
	}
	styles := make([]string, 0, len(style.Names()))
	for _, n := range style.Names() {
		styles = append(styles, string(n))
	}

	return []mcp.Tool{
		{
			Name:        "generate_video",
			Description: "Generate an animated educational video explaining a topic. Starts an async job and returns its ID. Use get_video to check progress.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"topic": map[string]any{
						"type":        "string",
						"description": "The concept to explain, e.g. \"Newton's first law\"",
					},
					"complexity": map[string]any{
						"type":        "string",
						"description": "Audience level: " + strings.Join(complexities, ", "),
						"default":     string(plan.DefaultComplexity),
					},
					"domain": map[string]any{
						"type":        "string",
						"description": "Subject area, or auto-detect",
						"default":     "auto-detect",
					},
					"style": map[string]any{
						"type":        "string",
						"description": "Visual style: " + strings.Join(styles, ", "),
					},
					"source": map[string]any{
						"type":        "string",
						"description": "Optional URL of reference material for the lesson",
					},
				},
				Required: []string{"topic"},
			},
		},
		{
			Name:        "get_video",
			Description: "Get the status and details of a video job by ID. Completed jobs include the video URL.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"video_id": map[string]any{
						"type":        "string",
						"description": "The video ID returned from generate_video",
					},
				},
				Required: []string{"video_id"},
			},
		},
		{
			Name:        "list_videos",
			Description: "List video jobs, newest first.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of results (default 20)",
						"default":     defaultPageSize,
					},
					"cursor": map[string]any{
						"type":        "string",
						"description": "Pagination cursor from a previous list_videos call",
					},
				},
			},
		},
		{
			Name:        "cancel_video",
			Description: "Cancel a running video job.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"video_id": map[string]any{
						"type":        "string",
						"description": "The video ID to cancel",
					},
				},
				Required: []string{"video_id"},
			},
		},
	}
}

// Handlers implements the MCP tools.
type Handlers struct {
	tasks *TaskManager
	store jobstore.Store
	log   *slog.Logger
}

func NewHandlers(tasks *TaskManager, store jobstore.Store, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, store: store, log: logger}
}

// HandleGenerateVideo starts a generation job.
func (h *Handlers) HandleGenerateVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.generate_video")
	defer span.End()

	genReq := GenerateRequest{
		Topic:      strings.TrimSpace(mcp.ParseString(req, "topic", "")),
		Complexity: mcp.ParseString(req, "complexity", ""),
		Domain:     mcp.ParseString(req, "domain", ""),
		Style:      mcp.ParseString(req, "style", ""),
		Source:     mcp.ParseString(req, "source", ""),
		Owner:      "mcp",
	}
	span.SetAttributes(
		attribute.String("topic", genReq.Topic),
		attribute.String("complexity", genReq.Complexity),
		attribute.String("style", genReq.Style),
	)

	if genReq.Topic == "" {
		span.SetStatus(codes.Error, "missing topic")
		return mcp.NewToolResultError("topic is required"), nil
	}
	if genReq.Source != "" && !isRemoteSource(genReq.Source) {
		span.SetStatus(codes.Error, "local source")
		return mcp.NewToolResultError("source must be an http or https URL"), nil
	}

	id, err := h.tasks.StartTask(ctx, genReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start task failed")
		if errors.Is(err, ErrBusy) {
			return mcp.NewToolResultError("the server is busy, try again shortly"), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to start task: %v", err)), nil
	}

	span.SetAttributes(attribute.String("video_id", id))
	h.log.InfoContext(ctx, "Video generation started", "video_id", id, "topic", genReq.Topic)

	return jsonResult(map[string]any{
		"video_id": id,
		"status":   jobstore.StatusSubmitted,
		"message":  "Video generation started. Use get_video with this video_id to check progress.",
	})
}

// HandleGetVideo returns one job.
func (h *Handlers) HandleGetVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.get_video")
	defer span.End()

	id := mcp.ParseString(req, "video_id", "")
	if id == "" {
		span.SetStatus(codes.Error, "missing video_id")
		return mcp.NewToolResultError("video_id is required"), nil
	}
	span.SetAttributes(attribute.String("video_id", id))

	v, err := h.store.Get(ctx, id)
	switch {
	case errors.Is(err, jobstore.ErrNotFound):
		span.SetStatus(codes.Error, "not found")
		return mcp.NewToolResultError(fmt.Sprintf("video %s not found", id)), nil
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "get video failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to get video: %v", err)), nil
	}
	return jsonResult(v)
}

// HandleListVideos pages through jobs, newest first.
func (h *Handlers) HandleListVideos(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, span := tracer.Start(ctx, "tool.list_videos")
	defer span.End()

	limit := parseIntParam(req, "limit", defaultPageSize)
	cursor := mcp.ParseString(req, "cursor", "")
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("cursor", cursor),
	)

	items, next, err := h.store.List(ctx, limit, cursor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list videos failed")
		return mcp.NewToolResultError(fmt.Sprintf("failed to list videos: %v", err)), nil
	}
	span.SetAttributes(attribute.Int("result_count", len(items)))

	return jsonResult(listResponse{Videos: items, Count: len(items), NextCursor: next})
}

// HandleCancelVideo cancels a running job.
func (h *Handlers) HandleCancelVideo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, span := tracer.Start(ctx, "tool.cancel_video")
	defer span.End()

	id := mcp.ParseString(req, "video_id", "")
	if id == "" {
		return mcp.NewToolResultError("video_id is required"), nil
	}
	span.SetAttributes(attribute.String("video_id", id))
	if !h.tasks.Cancel(id) {
		return mcp.NewToolResultError(fmt.Sprintf("video %s is not running", id)), nil
	}
	return jsonResult(map[string]any{"video_id": id, "message": "Cancellation requested."})
}

// listResponse is the page shape shared by the tool and the HTTP API.
type listResponse struct {
	Videos     []jobstore.Video `json:"videos"`
	Count      int              `json:"count"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// isRemoteSource reports whether source is an http(s) URL. Remote
// callers may not point the server at its own files.
func isRemoteSource(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func parseIntParam(req mcp.CallToolRequest, key string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return defaultVal
	}
}
