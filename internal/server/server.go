// Package server exposes video generation over HTTP: a JSON API with a
// server-sent progress stream, and MCP tools for agents.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/apresai/eduanim/internal/jobstore"
)

const shutdownTimeout = 30 * time.Second

// Options configures a Server.
type Options struct {
	Port        int
	Version     string
	ServiceName string
	// CORSOrigins lists allowed browser origins. Empty allows any.
	CORSOrigins []string
	Logger      *slog.Logger
}

// Server serves the HTTP API and the MCP endpoint.
type Server struct {
	opts   Options
	tasks  *TaskManager
	router *gin.Engine
	log    *slog.Logger
}

// New creates a Server over tasks and store.
func New(tasks *TaskManager, store jobstore.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "eduanim"
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	mcp := mcpserver.NewMCPServer(opts.ServiceName, opts.Version, mcpserver.WithToolCapabilities(true))
	handlers := NewHandlers(tasks, store, opts.Logger)
	tools := ToolDefs()
	mcp.AddTool(tools[0], handlers.HandleGenerateVideo)
	mcp.AddTool(tools[1], handlers.HandleGetVideo)
	mcp.AddTool(tools[2], handlers.HandleListVideos)
	mcp.AddTool(tools[3], handlers.HandleCancelVideo)

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(opts.ServiceName), requestLogger(opts.Logger), corsMiddleware(opts.CORSOrigins))

	a := &api{tasks: tasks, store: store, log: opts.Logger}
	r.GET("/healthcheck", a.health)
	v := r.Group("/api/videos")
	v.POST("", a.createVideo)
	v.GET("", a.listVideos)
	v.GET("/stream", a.streamVideo)
	v.GET("/:id", a.getVideo)
	v.POST("/:id/cancel", a.cancelVideo)

	r.Any("/mcp", gin.WrapH(mcpserver.NewStreamableHTTPServer(mcp, mcpserver.WithStateLess(true))))

	return &Server{opts: opts, tasks: tasks, router: r, log: opts.Logger}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Requested-With", "Mcp-Session-Id"},
		ExposeHeaders: []string{"X-Video-Id"},
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is canceled, then shuts down and waits for
// background jobs to record their state.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Starting server", "addr", srv.Addr, "version", s.opts.Version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.tasks.Wait()
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
