package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"tikz-playground/internal/domain"
	"tikz-playground/internal/jobs"
)

// maxSourceBody bounds request bodies carrying drawing source.
const maxSourceBody = "1M"

const shutdownTimeout = 10 * time.Second

// Service is the application surface the HTTP layer exposes.
type Service interface {
	CompileContext(ctx context.Context, source string) domain.CompileResponse
	GetJob(jobID string) (domain.Job, error)
	CancelJob(jobID string) error
	GetDiagnostics() domain.DiagnosticReport
	RefreshDiagnostics() (domain.DiagnosticReport, error)
	InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error)
	JobEvents(sinceSeq int64) []jobs.Event
	SubscribeEvents() (<-chan jobs.Event, func())
	Examples() []domain.ExampleSnippet
}

// Server serves the playground page and JSON API.
type Server struct {
	echo     *echo.Echo
	svc      Service
	logger   *log.Logger
	page     []byte
	upgrader websocket.Upgrader
}

// NewServer builds the echo router for svc.
func NewServer(svc Service, logger *log.Logger) (*Server, error) {
	page, err := buildPage()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger = logger

	s := &Server{
		echo:   e,
		svc:    svc,
		logger: logger,
		page:   page,
		upgrader: websocket.Upgrader{
			CheckOrigin: sameOrigin,
		},
	}

	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} http ${method} ${uri} ${status} ${latency_human}\n",
		Output: logger.Output(),
	}))

	e.GET("/", s.index)
	e.StaticFS("/static", staticFS())

	api := e.Group("/api")
	api.POST("/compile", s.compile, middleware.BodyLimit(maxSourceBody))
	api.GET("/examples", s.examples)
	api.GET("/diagnostics", s.diagnostics)
	api.POST("/diagnostics/refresh", s.refreshDiagnostics)
	api.POST("/diagnostics/:id/fix", s.fixDiagnostic)
	api.GET("/jobs/:id", s.job)
	api.POST("/jobs/:id/cancel", s.cancelJob)
	api.GET("/events", s.events)
	api.GET("/events/ws", s.eventStream)

	return s, nil
}

// Handler exposes the router for embedding in other servers.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()
	s.logger.Infof("listening on http://%s", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("shutting down")
		return s.echo.Shutdown(shutdownCtx)
	}
}

// sameOrigin accepts websocket upgrades from the page's own host only.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}
