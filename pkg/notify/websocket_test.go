package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/larder/pkg/models"
	"golang.org/x/net/websocket"
)

type stubController struct {
	got chan models.Message
}

func (s *stubController) HandleMessage(_ context.Context, msg models.Message) (any, error) {
	s.got <- msg
	switch msg.Type {
	case models.MessageGetCachedData:
		return map[string]int{"kcal": 120}, nil
	case models.MessageSkipWaiting:
		return nil, nil
	default:
		return nil, errors.New("unknown message type")
	}
}

type testFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func dialHub(t *testing.T, h *Hub, control Controller) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h.WebSocket(control))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, err := websocket.Dial(wsURL, "", srv.URL)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Count() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, got %d", n, h.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) testFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got testFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func TestWebSocketReceivesBroadcast(t *testing.T) {
	h := NewHub(4, nil)
	conn := dialHub(t, h, &stubController{got: make(chan models.Message, 1)})
	waitForClients(t, h, 1)

	h.Broadcast(models.Message{Type: models.MessageSyncSuccess, Data: map[string]any{"id": 7}})

	got := readFrame(t, conn)
	if got.Type != models.MessageSyncSuccess {
		t.Fatalf("expected SYNC_SUCCESS, got %s", got.Type)
	}
	if string(got.Data) != `{"id":7}` {
		t.Errorf("unexpected data %s", got.Data)
	}
}

func TestWebSocketReply(t *testing.T) {
	h := NewHub(4, nil)
	ctl := &stubController{got: make(chan models.Message, 1)}
	conn := dialHub(t, h, ctl)

	writeFrame(t, conn, map[string]any{
		"type":       models.MessageGetCachedData,
		"request_id": "r1",
		"payload":    "today",
	})

	got := readFrame(t, conn)
	if got.Type != models.MessageReply || got.RequestID != "r1" {
		t.Fatalf("unexpected frame %+v", got)
	}
	if string(got.Data) != `{"kcal":120}` {
		t.Errorf("unexpected data %s", got.Data)
	}
	msg := <-ctl.got
	if string(msg.Payload) != `"today"` {
		t.Errorf("unexpected payload %s", msg.Payload)
	}
}

func TestWebSocketNullReply(t *testing.T) {
	h := NewHub(4, nil)
	conn := dialHub(t, h, &stubController{got: make(chan models.Message, 1)})

	writeFrame(t, conn, map[string]any{"type": models.MessageSkipWaiting, "request_id": "r2"})

	got := readFrame(t, conn)
	if got.Type != models.MessageReply || string(got.Data) != "null" {
		t.Fatalf("expected null reply, got %+v", got)
	}
}

func TestWebSocketError(t *testing.T) {
	h := NewHub(4, nil)
	conn := dialHub(t, h, &stubController{got: make(chan models.Message, 1)})

	writeFrame(t, conn, map[string]any{"type": "BOGUS", "request_id": "r3"})

	got := readFrame(t, conn)
	if got.Type != models.MessageError || got.RequestID != "r3" {
		t.Fatalf("expected error frame, got %+v", got)
	}
	if !strings.Contains(string(got.Data), "unknown message type") {
		t.Errorf("unexpected error data %s", got.Data)
	}
}

func TestWebSocketDisconnectLeavesHub(t *testing.T) {
	h := NewHub(4, nil)
	idle := make(chan struct{}, 1)
	h.OnIdle(func() { idle <- struct{}{} })

	conn := dialHub(t, h, &stubController{got: make(chan models.Message, 1)})
	waitForClients(t, h, 1)
	_ = conn.Close()

	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("expected idle hook after disconnect")
	}
}
