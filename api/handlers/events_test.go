package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/sculptflow/workspace"
)

type wireMessage struct {
	Kind     string           `json:"kind"`
	Event    *workspace.Event `json:"event"`
	Snapshot map[string]any   `json:"snapshot"`
}

func dialEvents(t *testing.T, ws *workspace.Workspace) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	NewEventsHandler(ws, nil, zap.NewNop()).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg wireMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestEventsHandler_SnapshotThenEvents(t *testing.T) {
	ws := workspace.New(workspace.DefaultConfig(), zap.NewNop())
	t.Cleanup(ws.Close)

	conn := dialEvents(t, ws)

	first := readMessage(t, conn)
	assert.Equal(t, "snapshot", first.Kind)
	assert.Equal(t, "upload", first.Snapshot["mode"])

	// 订阅在快照之前建立，之后的变更都能收到
	ws.SetError("upload failed")
	ws.ClearError()

	msg := readMessage(t, conn)
	require.Equal(t, "event", msg.Kind)
	require.NotNil(t, msg.Event)
	assert.Equal(t, workspace.EventErrorChanged, msg.Event.Type)
	assert.Equal(t, "upload failed", msg.Event.Message)

	next := readMessage(t, conn)
	assert.Equal(t, workspace.EventErrorChanged, next.Event.Type)
	assert.Greater(t, next.Event.Seq, msg.Event.Seq)
}

func TestEventsHandler_UnsubscribesOnDisconnect(t *testing.T) {
	ws := workspace.New(workspace.DefaultConfig(), zap.NewNop())
	t.Cleanup(ws.Close)

	conn := dialEvents(t, ws)
	readMessage(t, conn)
	assert.Equal(t, 1, ws.Events().Subscribers())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool {
		return ws.Events().Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsHandler_ClosesWhenWorkspaceCloses(t *testing.T) {
	ws := workspace.New(workspace.DefaultConfig(), zap.NewNop())
	conn := dialEvents(t, ws)
	readMessage(t, conn)

	ws.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}
