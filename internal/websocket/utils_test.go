package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serve upgrades one connection and hands it to handle.
func serve(t *testing.T, handle func(*Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := NewConn(raw)
		defer conn.Close()
		handle(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConcurrentWritesArriveWhole(t *testing.T) {
	const writers, each = 4, 25
	client := serve(t, func(c *Conn) {
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < each; i++ {
					_ = c.WriteTyped(ExamEventMessage{
						Event:  EventExamChanged,
						Change: model.ExamEvent{Type: model.EventQuestionSaved, ExamID: 7, EntityID: int64(i + 1)},
					})
				}
			}()
		}
		wg.Wait()
		_ = c.WriteClose("done")
	})

	received := 0
	for {
		var msg ExamEventMessage
		if err := client.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		assert.Equal(t, EventExamChanged, msg.Event)
		assert.Equal(t, int64(7), msg.Change.ExamID)
		received++
	}
	assert.Equal(t, writers*each, received)
}

func TestPingRequestGetsPong(t *testing.T) {
	client := serve(t, func(c *Conn) {
		var req RequestEnvelope
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		if req.Action == ActionPing {
			_ = c.WriteTyped(PongResponse{Event: EventPong})
			return
		}
		_ = c.WriteError("unknown action")
	})

	require.NoError(t, client.WriteJSON(RequestEnvelope{Action: ActionPing}))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var resp PongResponse
	require.NoError(t, client.ReadJSON(&resp))
	assert.Equal(t, EventPong, resp.Event)
}

func TestUnknownActionGetsError(t *testing.T) {
	client := serve(t, func(c *Conn) {
		var req RequestEnvelope
		if err := c.ReadJSON(&req); err != nil {
			return
		}
		_ = c.WriteError("unknown action " + string(req.Action))
	})

	require.NoError(t, client.WriteJSON(RequestEnvelope{Action: "subscribe"}))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	var resp ErrorResponse
	require.NoError(t, client.ReadJSON(&resp))
	assert.Equal(t, EventError, resp.Event)
	assert.Equal(t, "unknown action subscribe", resp.Error)
}
