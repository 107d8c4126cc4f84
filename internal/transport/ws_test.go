package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigsync/internal/directory"
	"github.com/roach88/sigsync/internal/ir"
)

func startServer(t *testing.T, settings Settings) (*httptest.Server, *Hub) {
	t.Helper()
	s, h := newTestServer(t, settings)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, h
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) ir.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	e, err := ir.DecodeEvent(string(data))
	require.NoError(t, err)
	return e
}

func readClose(t *testing.T, conn *websocket.Conn) *websocket.CloseError {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce
	}
}

func send(t *testing.T, conn *websocket.Conn, wire string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(wire)))
}

func TestWS_SnapshotThenBroadcast(t *testing.T) {
	srv, h := startServer(t, Settings{})
	require.NoError(t, h.Create("todos", nil, directory.Pinned))

	a := dial(t, srv, "/signals/todos/ws")
	b := dial(t, srv, "/signals/todos/ws")

	assert.True(t, readEvent(t, a).IsSnapshot())
	assert.True(t, readEvent(t, b).IsSnapshot())

	send(t, a, `{"id":"e1","entry":"x","direction":"AFTER","value":"first"}`)

	for _, conn := range []*websocket.Conn{a, b} {
		e := readEvent(t, conn)
		id, ok := ir.EventID(e)
		require.True(t, ok)
		assert.Equal(t, "e1", id)
		assert.Equal(t, ir.KindInsert, e.Command.Kind())
	}
}

func TestWS_CheckpointResume(t *testing.T) {
	srv, h := startServer(t, Settings{})
	require.NoError(t, h.Create("counter", ir.MustValue(0), directory.Pinned))
	require.NoError(t, h.Adapter().Update("counter", `{"id":"e1","set":"`+ir.RootID+`","value":1}`))
	require.NoError(t, h.Adapter().Update("counter", `{"id":"e2","set":"`+ir.RootID+`","value":2}`))

	conn := dial(t, srv, "/signals/counter/ws?checkpoint=e1")

	e := readEvent(t, conn)
	id, ok := ir.EventID(e)
	require.True(t, ok)
	assert.Equal(t, "e2", id)
}

func TestWS_ProtocolViolationCloses(t *testing.T) {
	srv, h := startServer(t, Settings{})
	require.NoError(t, h.Create("todos", nil, directory.Pinned))

	conn := dial(t, srv, "/signals/todos/ws")
	readEvent(t, conn)

	send(t, conn, `{"id":"bad"}`)

	ce := readClose(t, conn)
	assert.Equal(t, websocket.CloseProtocolError, ce.Code)
	assert.Equal(t, string(ir.ErrCodeUnknownCommand), ce.Text)
}

func TestWS_UnknownSignal(t *testing.T) {
	srv, _ := startServer(t, Settings{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/signals/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWS_SignalRemovedClosesConnection(t *testing.T) {
	srv, h := startServer(t, Settings{})
	require.NoError(t, h.Create("todos", nil, directory.Pinned))

	conn := dial(t, srv, "/signals/todos/ws")
	readEvent(t, conn)

	require.True(t, h.Remove("todos"))

	ce := readClose(t, conn)
	assert.Equal(t, websocket.CloseGoingAway, ce.Code)
}

func TestWS_EphemeralSurvivesDisconnectUntilSwept(t *testing.T) {
	srv, h := startServer(t, Settings{})
	id, err := h.CreateEphemeral(nil)
	require.NoError(t, err)

	conn := dial(t, srv, "/signals/"+id+"/ws")
	readEvent(t, conn)
	send(t, conn, `{"id":"E1","entry":"`+ir.RootID+`","direction":"AFTER","value":1}`)
	readEvent(t, conn)
	assert.Equal(t, 1, h.Directory().Refs(id))

	conn.Close()
	require.Eventually(t, func() bool {
		return h.Directory().Refs(id) == 0
	}, 2*time.Second, 10*time.Millisecond)

	resumed := dial(t, srv, "/signals/"+id+"/ws?checkpoint=E1")
	require.NoError(t, resumed.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = resumed.ReadMessage()
	assert.Error(t, err, "nothing newer than the checkpoint")
	resumed.Close()

	require.Eventually(t, func() bool {
		return h.Directory().Refs(id) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{id}, h.Sweep(0))
	assert.False(t, h.Directory().Contains(id))
}

func TestWS_RateLimitedUpdatesStillApply(t *testing.T) {
	srv, h := startServer(t, Settings{UpdateRate: 1000, UpdateBurst: 1})
	require.NoError(t, h.Create("todos", nil, directory.Pinned))

	conn := dial(t, srv, "/signals/todos/ws")
	readEvent(t, conn)

	send(t, conn, `{"id":"e1","entry":"a","direction":"AFTER","value":1}`)
	send(t, conn, `{"id":"e2","entry":"b","direction":"AFTER","value":2}`)

	assert.Equal(t, "e1", *readEvent(t, conn).ID)
	assert.Equal(t, "e2", *readEvent(t, conn).ID)
}
