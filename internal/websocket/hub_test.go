package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc, <-chan error) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- hub.Run(ctx) }()
	return hub, cancel, errc
}

func serveFlow(t *testing.T, hub *Hub, flowID string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client, err := NewClient(hub, conn, flowID, TypeContinueOnboarding, map[string]string{"step": "auth"})
		if err != nil {
			conn.Close()
			return
		}
		if err := hub.Register(client); err != nil {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubPublishesToFlow(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel, errc := startHub(t)
	srv := serveFlow(t, hub, "flow-1")

	conn := dial(t, srv)

	hello := readMessage(t, conn)
	assert.Equal(t, TypeContinueOnboarding, hello.Type)
	assert.Equal(t, "flow-1", hello.FlowID)
	assert.JSONEq(t, `{"step":"auth"}`, string(hello.Data))

	require.NoError(t, hub.Publish("flow-1", TypeAuthSuccess, map[string]string{"id": "u1"}))
	msg := readMessage(t, conn)
	assert.Equal(t, TypeAuthSuccess, msg.Type)

	var data map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "u1", data["id"])

	// событие другого flow сюда не попадает
	require.NoError(t, hub.Publish("flow-2", TypeAuthError, nil))
	assert.Equal(t, 1, hub.FlowSize("flow-1"))
	assert.Equal(t, 0, hub.FlowSize("flow-2"))

	cancel()
	require.NoError(t, <-errc)

	// после остановки hub закрывает соединение
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)

	conn.Close()
	srv.Close()

	assert.ErrorIs(t, hub.Publish("flow-1", TypeAuthError, nil), ErrHubClosed)
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub, cancel, errc := startHub(t)
	srv := serveFlow(t, hub, "flow-x")

	conn := dial(t, srv)
	readMessage(t, conn)
	require.Equal(t, 1, hub.FlowSize("flow-x"))

	conn.Close()
	assert.Eventually(t, func() bool { return hub.FlowSize("flow-x") == 0 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errc)
	srv.Close()
}

func TestDeliverReportsFullQueue(t *testing.T) {
	client := &Client{Send: make(chan []byte, 1)}

	require.NoError(t, client.deliver([]byte("first")))
	assert.ErrorIs(t, client.deliver([]byte("second")), ErrClientQueueFull)
	assert.Equal(t, []byte("first"), <-client.Send)
}
