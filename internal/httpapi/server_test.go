package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathomlabs/diligence/internal/engine"
	"github.com/fathomlabs/diligence/internal/events"
	"github.com/fathomlabs/diligence/internal/pipeline"
	"github.com/fathomlabs/diligence/internal/reportstore"
	"github.com/fathomlabs/diligence/internal/step"
)

// okProcessor always succeeds so API-driven progression works end to end.
type okProcessor struct {
	kind pipeline.StepKind
}

func (p *okProcessor) Kind() pipeline.StepKind { return p.kind }

func (p *okProcessor) CanExecute(_ context.Context, _ *pipeline.ExecContext) bool { return true }

func (p *okProcessor) Execute(_ context.Context, _ *pipeline.ExecContext) pipeline.Result {
	payload := map[string]any{"ok": true}
	return pipeline.Result{
		Success:      true,
		Payload:      payload,
		Continuation: pipeline.ContinueNext,
		Updated:      map[string]map[string]any{p.kind.ResultKey(): payload},
	}
}

func newTestServer(t *testing.T) (*Server, *engine.Engine, *events.Bus) {
	t.Helper()

	registry := step.NewRegistry(zap.NewNop())
	for _, kind := range pipeline.AllKinds() {
		registry.Register(&okProcessor{kind: kind})
	}

	bus := events.NewBus(zap.NewNop())
	store, err := reportstore.NewStore(t.TempDir())
	require.NoError(t, err)

	eng := engine.New(engine.Config{TickInterval: time.Hour, AutoMode: true},
		registry, bus, store,
		&pipeline.Entity{ID: "e-1", Name: "Acme"},
		&pipeline.Agent{ID: "a-1", Name: "analyst"},
		nil, zap.NewNop())
	t.Cleanup(eng.Close)

	srv, err := NewServer(eng, bus, store, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv, eng, bus
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echoContentType, "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

const echoContentType = "Content-Type"

func TestServer_RequiresEngineAndLogger(t *testing.T) {
	_, err := NewServer(nil, nil, nil, zap.NewNop(), nil)
	assert.Error(t, err)

	registry := step.NewRegistry(zap.NewNop())
	bus := events.NewBus(zap.NewNop())
	eng := engine.New(engine.Config{TickInterval: time.Hour}, registry, bus, nil, nil, nil, nil, zap.NewNop())
	defer eng.Close()

	_, err = NewServer(eng, bus, nil, nil, nil)
	assert.Error(t, err)
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestServer_Snapshot(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/pipeline", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap engine.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Len(t, snap.Steps, 6)
	assert.Equal(t, 0, snap.CurrentIndex)
	assert.True(t, snap.AutoMode)
	for _, st := range snap.Steps {
		assert.Equal(t, pipeline.StatusPending, st.Status)
	}
}

func TestServer_ReportNotFoundUntilComplete(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/api/v1/pipeline/report", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	for i := 0; i < 6; i++ {
		eng.Tick()
	}

	rec = doRequest(srv, http.MethodGet, "/api/v1/pipeline/report", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Report)
	assert.NotEmpty(t, resp.StorageKey)
}

func TestServer_StartPauseReset(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/pipeline/start", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/v1/pipeline/pause", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, eng.IsRunning())

	rec = doRequest(srv, http.MethodPost, "/api/v1/pipeline/reset", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 0, eng.Snapshot().CurrentIndex)
}

func TestServer_SetMode(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPut, "/api/v1/pipeline/mode", `{"auto": false}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, eng.Snapshot().AutoMode)

	rec = doRequest(srv, http.MethodPut, "/api/v1/pipeline/mode", `{"auto": true}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, eng.Snapshot().AutoMode)
}

func TestServer_StepActions(t *testing.T) {
	srv, eng, _ := newTestServer(t)

	// Approve a pending step is accepted.
	rec := doRequest(srv, http.MethodPost, "/api/v1/pipeline/steps/0/approve", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/v1/pipeline/steps/2/reject", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, pipeline.StatusError, eng.Snapshot().Steps[2].Status)

	rec = doRequest(srv, http.MethodPost, "/api/v1/pipeline/steps/2/rerun", `{"hint": "use cached filings"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	snap := eng.Snapshot()
	assert.Equal(t, pipeline.StatusPending, snap.Steps[2].Status)
	assert.Equal(t, "use cached filings", snap.Contexts[2].AdditionalInfo)
	assert.Equal(t, 1, snap.Contexts[2].RetryCount)
}

func TestServer_StepActionErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/api/v1/pipeline/steps/42/approve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/api/v1/pipeline/steps/banana/approve", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// streamRecorder is a flushable response writer safe to read while the SSE
// handler is still writing.
type streamRecorder struct {
	mu     sync.Mutex
	header http.Header
	status int
	body   strings.Builder
}

func newStreamRecorder() *streamRecorder {
	return &streamRecorder{header: make(http.Header)}
}

func (r *streamRecorder) Header() http.Header { return r.header }

func (r *streamRecorder) WriteHeader(status int) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}

func (r *streamRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(p)
}

func (r *streamRecorder) Flush() {}

func (r *streamRecorder) started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status != 0
}

func (r *streamRecorder) bodyString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.String()
}

func TestServer_EventStream(t *testing.T) {
	srv, _, bus := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipeline/events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)
	rec := newStreamRecorder()

	done := make(chan struct{})
	go func() {
		srv.Echo().ServeHTTP(rec, req)
		close(done)
	}()

	// Wait for the handler to write the stream headers and subscribe.
	require.Eventually(t, rec.started, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	// The handler subscribes after writing headers; republish until the
	// subscription observes an event.
	require.Eventually(t, func() bool {
		bus.Publish(events.LogEmitted(pipeline.NewLog(pipeline.LogTypeSystem, "hello", "", pipeline.LogStatusInfo)))
		return strings.Contains(rec.bodyString(), "event: log_emitted")
	}, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, rec.bodyString(), `"hello"`)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not close on client disconnect")
	}
}
