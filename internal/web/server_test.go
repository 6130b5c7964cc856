package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tikz-playground/internal/domain"
	"tikz-playground/internal/jobs"
)

// fakeService records calls and returns canned responses.
type fakeService struct {
	compiled []string
	bus      *jobs.EventBus
	fixErr   error
}

func (f *fakeService) CompileContext(ctx context.Context, source string) domain.CompileResponse {
	f.compiled = append(f.compiled, source)
	if strings.TrimSpace(source) == "" {
		return domain.CompileResponse{JobID: "j1", Message: "Please enter TikZ code."}
	}
	return domain.CompileResponse{JobID: "j1", OK: true, Message: "Success!", Image: "data:image/png;base64,AA=="}
}

func (f *fakeService) GetJob(jobID string) (domain.Job, error) {
	if jobID != "j1" {
		return domain.Job{}, jobs.ErrJobNotFound
	}
	return domain.Job{ID: "j1", Status: domain.JobStatusDone}, nil
}

func (f *fakeService) CancelJob(jobID string) error {
	if jobID == "j1" {
		return jobs.ErrJobNotRunning
	}
	return nil
}

func (f *fakeService) GetDiagnostics() domain.DiagnosticReport {
	return domain.DiagnosticReport{Items: []domain.DiagnosticItem{{ID: "tool_pdflatex", Status: domain.DiagnosticStatusPass}}}
}

func (f *fakeService) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	return f.GetDiagnostics(), nil
}

func (f *fakeService) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	return f.GetDiagnostics(), f.fixErr
}

func (f *fakeService) JobEvents(sinceSeq int64) []jobs.Event {
	return f.bus.Since(sinceSeq)
}

func (f *fakeService) SubscribeEvents() (<-chan jobs.Event, func()) {
	return f.bus.Subscribe()
}

func (f *fakeService) Examples() []domain.ExampleSnippet {
	return []domain.ExampleSnippet{{ID: "line", Name: "Line", Source: DefaultSource}}
}

func newTestServer(t *testing.T) (*Server, *fakeService) {
	t.Helper()
	svc := &fakeService{bus: jobs.NewEventBus(10)}
	logger := log.New("test")
	logger.SetOutput(io.Discard)
	srv, err := NewServer(svc, logger)
	require.NoError(t, err)
	return srv, svc
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestIndexInlinesScriptAndReferences(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	page := rec.Body.String()
	assert.NotContains(t, page, `src="/static/script.js"`)
	assert.Contains(t, page, "/api/compile")
	assert.Contains(t, page, `<a href="https://tikz.dev/">`)
	assert.Contains(t, page, `\draw (0,0) -- (2,2);`)
}

func TestStaticStylesheet(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/static/style.css", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".image-slot")
}

func TestCompileSuccess(t *testing.T) {
	srv, svc := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/compile", `{"source":"\\draw (0,0) -- (1,1);"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.CompileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, "Success!", resp.Message)
	assert.True(t, strings.HasPrefix(resp.Image, "data:image/png;base64,"))
	assert.Equal(t, []string{`\draw (0,0) -- (1,1);`}, svc.compiled)
}

func TestCompileBlankReturnsMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/compile", `{"source":"   "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.CompileResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Empty(t, resp.Image)
	assert.NotEmpty(t, resp.Message)
}

func TestCompileRejectsMalformedBody(t *testing.T) {
	srv, svc := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/compile", `{"source":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.compiled)
}

func TestJobEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/jobs/j1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/jobs/nope", "").Code)
	assert.Equal(t, http.StatusConflict, do(t, srv, http.MethodPost, "/api/jobs/j1/cancel", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, srv, http.MethodPost, "/api/jobs/j2/cancel", "").Code)
}

func TestDiagnosticsEndpoints(t *testing.T) {
	srv, svc := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/diagnostics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tool_pdflatex")

	svc.fixErr = assert.AnError
	rec = do(t, srv, http.MethodPost, "/api/diagnostics/tool_pdflatex/fix", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "report")
}

func TestEventsSince(t *testing.T) {
	srv, svc := newTestServer(t)
	svc.bus.Publish(jobs.Event{JobID: "a"})
	svc.bus.Publish(jobs.Event{JobID: "b"})

	rec := do(t, srv, http.MethodGet, "/api/events?since=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []jobs.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].JobID)

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/events?since=x", "").Code)
}

func TestEventStreamReplaysAndPushes(t *testing.T) {
	srv, svc := newTestServer(t)
	svc.bus.Publish(jobs.Event{JobID: "old"})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var first jobs.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "old", first.JobID)

	svc.bus.Publish(jobs.Event{JobID: "new"})
	var second jobs.Event
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "new", second.JobID)
}

func TestInlineFirstScriptOnlyReplacesFirst(t *testing.T) {
	head := `<title>x</title><script src="a.js"></script><script src="b.js"></script>`

	got, err := inlineFirstScript(head, "var a = 1 < 2;")
	require.NoError(t, err)
	assert.Contains(t, got, "<script>\nvar a = 1 < 2;\n</script>")
	assert.Contains(t, got, `<script src="b.js"></script>`)
	assert.NotContains(t, got, "a.js")
}
