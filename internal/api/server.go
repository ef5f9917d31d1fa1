// Package api exposes sessions and jobs over HTTP with gin. Live job
// progress is streamed as Server-Sent Events or over a WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/selfie2snap/selfie2snap/internal/gallery"
	"github.com/selfie2snap/selfie2snap/internal/job"
	"github.com/selfie2snap/selfie2snap/internal/logging"
	"github.com/selfie2snap/selfie2snap/internal/session"
	"github.com/selfie2snap/selfie2snap/internal/settings"
	"github.com/selfie2snap/selfie2snap/internal/sse"
	"github.com/selfie2snap/selfie2snap/internal/store"
)

// Jobs is the orchestrator surface used by the job routes.
type Jobs interface {
	Job(jobID string) (*job.Job, error)
	Cancel(jobID string) error
	RetryFrame(jobID string, index int) error
}

// Deps are the collaborators a Server needs. Store and Settings may be
// nil.
type Deps struct {
	Sessions *session.Manager
	Jobs     Jobs
	Gallery  *gallery.Gallery
	Hub      *sse.Hub
	Store    store.Store
	Settings *settings.Settings
	Logger   *logging.Logger
}

// Server is the HTTP API.
type Server struct {
	deps      Deps
	logger    *logging.Logger
	engine    *gin.Engine
	validate  *validator.Validate
	upgrader  websocket.Upgrader
	maxUpload int64
	heartbeat time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithMaxUploadBytes bounds the size of an uploaded portrait.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithHeartbeat sets the keep-alive interval of event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// New builds the router. It panics if Sessions, Jobs, Gallery or Hub is
// missing.
func New(deps Deps, opts ...Option) *Server {
	if deps.Sessions == nil || deps.Jobs == nil || deps.Gallery == nil || deps.Hub == nil {
		panic("api: Sessions, Jobs, Gallery and Hub are required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.NopLogger()
	}

	s := &Server{
		deps:      deps,
		logger:    deps.Logger.WithComponent("api"),
		validate:  newValidator(),
		maxUpload: 10 << 20,
		heartbeat: sse.DefaultHeartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1")
	v1.GET("/options", s.listOptions)
	v1.GET("/preferences", s.getPreferences)
	v1.PUT("/preferences", s.putPreferences)

	sessions := v1.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("/:id", s.getSession)
	sessions.DELETE("/:id", s.deleteSession)
	sessions.PUT("/:id/slots/:position", s.putSlot)
	sessions.DELETE("/:id/slots/:position", s.deleteSlot)
	sessions.POST("/:id/swap", s.swapSlots)
	sessions.PUT("/:id/options", s.putOptions)
	sessions.POST("/:id/submit", s.submit)
	sessions.POST("/:id/reset", s.reset)
	sessions.GET("/:id/preferences", s.getPreferences)
	sessions.PUT("/:id/preferences", s.putPreferences)
	sessions.GET("/:id/events", s.sessionEvents)

	jobs := v1.Group("/jobs")
	jobs.GET("/:id", s.getJob)
	jobs.POST("/:id/cancel", s.cancelJob)
	jobs.POST("/:id/frames/:index/retry", s.retryFrame)
	jobs.GET("/:id/frames/:index/image", s.frameImage)
	jobs.POST("/:id/frames/:index/favorite", s.favorite)
	jobs.DELETE("/:id/frames/:index/favorite", s.unfavorite)
	jobs.GET("/:id/favorites", s.listFavorites)
	jobs.GET("/:id/events", s.jobEvents)
	jobs.GET("/:id/ws", s.jobSocket)

	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
