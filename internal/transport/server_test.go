package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigsync/internal/directory"
	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/metrics"
	"github.com/roach88/sigsync/internal/signal"
	"github.com/roach88/sigsync/internal/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// newTestServer builds a server whose /metrics serves a private registry.
func newTestServer(t *testing.T, settings Settings, opts ...HubOption) (*Server, *Hub) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts = append([]HubOption{WithMetrics(metrics.New(reg)), WithLogger(discard)}, opts...)
	h := newTestHub(t, opts...)
	s := NewServer(h, settings,
		WithServerLogger(discard),
		WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	return s, h
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func TestServer_Health(t *testing.T) {
	s, _ := newTestServer(t, Settings{})

	rr := do(t, s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["signals"])
	assert.Equal(t, ir.ServerVersion, body["version"])
}

func TestServer_CreateSignal(t *testing.T) {
	s, h := newTestServer(t, Settings{})

	rr := do(t, s, http.MethodPost, "/signals", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "sig-1", decodeBody(t, rr)["id"])

	rr = do(t, s, http.MethodPost, "/signals", `{"value": {"n": 5}}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "sig-2", decodeBody(t, rr)["id"])

	st, ok := h.Directory().Get("sig-2")
	require.True(t, ok)
	root, _ := signal.Lookup(st.Snapshot(), ir.RootID)
	assert.JSONEq(t, `{"n":5}`, root.Value.String())

	rr = do(t, s, http.MethodPost, "/signals", `{"value":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, s, http.MethodGet, "/signals", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"signals":["sig-1","sig-2"]}`, rr.Body.String())
}

func TestServer_Events(t *testing.T) {
	s, h := newTestServer(t, Settings{})
	require.NoError(t, h.Create("todos", nil, directory.Pinned))

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{
			name:   "insert",
			path:   "/signals/todos/events",
			body:   `{"id":"e1","entry":"a","direction":"AFTER","value":"x"}`,
			status: http.StatusAccepted,
		},
		{
			name:   "benign drop is accepted",
			path:   "/signals/todos/events",
			body:   `{"id":"e2","remove":"ghost","parent":"` + ir.RootID + `"}`,
			status: http.StatusAccepted,
		},
		{
			name:   "malformed",
			path:   "/signals/todos/events",
			body:   `not json`,
			status: http.StatusBadRequest,
			code:   string(ir.ErrCodeMalformed),
		},
		{
			name:   "unknown command",
			path:   "/signals/todos/events",
			body:   `{"id":"e3"}`,
			status: http.StatusBadRequest,
			code:   string(ir.ErrCodeUnknownCommand),
		},
		{
			name:   "missing event id",
			path:   "/signals/todos/events",
			body:   `{"entry":"b","direction":"AFTER","value":1}`,
			status: http.StatusBadRequest,
			code:   string(ir.ErrCodeMissingEventID),
		},
		{
			name:   "unknown signal",
			path:   "/signals/nope/events",
			body:   `{"id":"e4","set":"a","value":1}`,
			status: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, s, http.MethodPost, tt.path, tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeBody(t, rr)["code"])
			}
		})
	}

	st, _ := h.Directory().Get("todos")
	assert.Equal(t, 2, st.Len())
	order, _ := signal.ListOrder(st.Snapshot(), ir.RootID)
	assert.Equal(t, []string{"a"}, order)
}

func TestServer_Snapshot(t *testing.T) {
	s, h := newTestServer(t, Settings{})
	require.NoError(t, h.Create("counter", ir.MustValue(7), directory.Pinned))

	rr := do(t, s, http.MethodGet, "/signals/counter/snapshot", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	e, err := ir.DecodeEvent(rr.Body.String())
	require.NoError(t, err)
	require.True(t, e.IsSnapshot())
	root, ok := signal.Lookup(e, ir.RootID)
	require.True(t, ok)
	assert.JSONEq(t, `7`, root.Value.String())

	rr = do(t, s, http.MethodGet, "/signals/nope/snapshot", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_Delete(t *testing.T) {
	s, h := newTestServer(t, Settings{})
	require.NoError(t, h.Create("todos", nil, directory.Pinned))

	rr := do(t, s, http.MethodDelete, "/signals/todos", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, h.Directory().Contains("todos"))

	rr = do(t, s, http.MethodDelete, "/signals/todos", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t, Settings{})

	rr := do(t, s, http.MethodPost, "/signals", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = do(t, s, http.MethodPost, "/signals/sig-1/events", `{"id":"e1","set":"`+ir.RootID+`","value":1}`)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `sigsync_events_submitted_total{signal="sig-1"} 1`)
	assert.Contains(t, body, `sigsync_signals 1`)
	assert.Contains(t, body, `sigsync_http_requests_total{method="POST",path="/signals",status="201"} 1`)
}

func TestServer_RunShutsDownAndFlushesJournal(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, h := newTestServer(t, Settings{Addr: "127.0.0.1:0", IdleTimeout: time.Minute},
		WithJournal(store.NewJournal(db)))
	require.NoError(t, h.Create("todos", nil, directory.Pinned))
	require.NoError(t, h.Adapter().Update("todos", `{"id":"e1","entry":"a","direction":"AFTER","value":"x"}`))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.True(t, h.Directory().IsEmpty())
	recs, err := db.ReadEvents(context.Background(), "todos")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
