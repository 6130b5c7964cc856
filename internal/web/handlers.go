package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"tikz-playground/internal/jobs"
)

type compileRequest struct {
	Source string `json:"source" form:"source"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) index(c echo.Context) error {
	return c.HTMLBlob(http.StatusOK, s.page)
}

// compile always answers 200 with the image-or-message pair; failures are
// part of the payload, not the status code.
func (s *Server) compile(c echo.Context) error {
	var req compileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	resp := s.svc.CompileContext(c.Request().Context(), req.Source)
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) examples(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Examples())
}

func (s *Server) diagnostics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.GetDiagnostics())
}

func (s *Server) refreshDiagnostics(c echo.Context) error {
	report, err := s.svc.RefreshDiagnostics()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}

// fixDiagnostic returns the refreshed report even when the fix failed so
// the UI can show the current state next to the error.
func (s *Server) fixDiagnostic(c echo.Context) error {
	report, err := s.svc.InstallOrFixDiagnostic(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{
			"error":  err.Error(),
			"report": report,
		})
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) job(c echo.Context) error {
	job, err := s.svc.GetJob(c.Param("id"))
	if err != nil {
		return c.JSON(jobErrorStatus(err), errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c echo.Context) error {
	if err := s.svc.CancelJob(c.Param("id")); err != nil {
		return c.JSON(jobErrorStatus(err), errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) events(c echo.Context) error {
	since, err := parseSince(c.QueryParam("since"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "since must be an integer"})
	}
	events := s.svc.JobEvents(since)
	if events == nil {
		events = []jobs.Event{}
	}
	return c.JSON(http.StatusOK, events)
}

// eventStream replays events after ?since= and then pushes live events
// until the client goes away.
func (s *Server) eventStream(c echo.Context) error {
	since, err := parseSince(c.QueryParam("since"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "since must be an integer"})
	}

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	defer conn.Close()

	live, unsubscribe := s.svc.SubscribeEvents()
	defer unsubscribe()

	last := since
	for _, event := range s.svc.JobEvents(since) {
		if err := conn.WriteJSON(event); err != nil {
			return nil
		}
		last = event.Seq
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return nil
		case event, ok := <-live:
			if !ok {
				return nil
			}
			if event.Seq <= last {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debugf("event stream closed: %v", err)
				return nil
			}
			last = event.Seq
		}
	}
}

func parseSince(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func jobErrorStatus(err error) int {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrJobNotRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
