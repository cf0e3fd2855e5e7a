package handler

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codether/codether/internal/hub"
)

func dialWS(t *testing.T, ts *httptest.Server, shortID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/snippets/" + shortID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) hub.Event {
	t.Helper()
	var ev hub.Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWSJoinSnapshotAndEdit(t *testing.T) {
	router := newTestRouter(t)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	shortID := createSnippet(t, router, map[string]any{
		"language":   "go",
		"content":    "v1",
		"editSecret": "s3cret",
	})

	editor := dialWS(t, ts, shortID)
	require.NoError(t, editor.WriteJSON(map[string]string{"event": "join"}))
	ev := readEvent(t, editor)
	require.Equal(t, "snapshot", ev.Type)
	assert.Equal(t, "v1", ev.Content)
	assert.Equal(t, shortID, ev.ShortID)

	viewer := dialWS(t, ts, shortID)
	require.NoError(t, viewer.WriteJSON(map[string]string{"event": "join"}))
	require.Equal(t, "snapshot", readEvent(t, viewer).Type)

	require.NoError(t, editor.WriteJSON(map[string]string{
		"event":      "edit",
		"editSecret": "s3cret",
		"content":    "v2",
	}))

	for name, conn := range map[string]*websocket.Conn{"editor": editor, "viewer": viewer} {
		ev := readEvent(t, conn)
		assert.Equal(t, "update", ev.Type, name)
		assert.Equal(t, "v2", ev.Content, name)
	}
}

func TestWSEditRejectedSessionSurvives(t *testing.T) {
	router := newTestRouter(t)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	shortID := createSnippet(t, router, map[string]any{
		"language":   "go",
		"content":    "v1",
		"editSecret": "s3cret",
	})

	conn := dialWS(t, ts, shortID)
	require.NoError(t, conn.WriteJSON(map[string]string{"event": "join"}))
	require.Equal(t, "snapshot", readEvent(t, conn).Type)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":      "edit",
		"editSecret": "wrong",
		"content":    "v2",
	}))
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "INVALID_SECRET", ev.Code)

	// A rejected edit must not end the session: a good edit still works.
	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":      "edit",
		"editSecret": "s3cret",
		"content":    "v2",
	}))
	ev = readEvent(t, conn)
	assert.Equal(t, "update", ev.Type)
	assert.Equal(t, "v2", ev.Content)
}

func TestWSJoinErrorFlushedBeforeClose(t *testing.T) {
	router := newTestRouter(t)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	shortID := createSnippet(t, router, map[string]any{
		"language":   "go",
		"content":    "hidden",
		"viewSecret": "pw",
	})

	conn := dialWS(t, ts, shortID)
	require.NoError(t, conn.WriteJSON(map[string]string{"event": "join", "viewSecret": "wrong"}))

	// The error frame must reach the client before the server closes the
	// socket.
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "INVALID_SECRET", ev.Code)

	// And then the server does close.
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWSFirstMessageMustJoin(t *testing.T) {
	router := newTestRouter(t)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	shortID := createSnippet(t, router, map[string]any{
		"language": "go",
		"content":  "v1",
	})

	conn := dialWS(t, ts, shortID)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"event":      "edit",
		"editSecret": "s",
		"content":    "v2",
	}))

	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "VALIDATION_FAILED", ev.Code)
}
