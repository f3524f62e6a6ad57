package notify

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/pario-ai/larder/pkg/models"
	"golang.org/x/net/websocket"
)

const maxDecodeErrorsPerConn = 3

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func (p *wsPeer) write(msg models.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(msg)
}

type errorData struct {
	Message string `json:"message"`
}

// WebSocket returns a handler that streams notifications to the client and
// answers its control messages with REPLY or ERROR frames carrying the same
// request_id.
func (h *Hub) WebSocket(control Controller) http.Handler {
	ws := websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, control)
	})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ws.ServeHTTP(w, r)
	})
}

func (h *Hub) serveWS(conn *websocket.Conn, control Controller) {
	defer func() {
		_ = conn.Close()
	}()

	client := h.Join()
	peer := &wsPeer{encoder: json.NewEncoder(conn)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range client.Messages() {
			if err := peer.write(msg); err != nil {
				return
			}
		}
	}()
	defer func() {
		h.Leave(client)
		<-done
	}()

	ctx := conn.Request().Context()
	decoder := json.NewDecoder(conn)
	decodeErrors := 0
	for {
		var msg models.Message
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = peer.write(models.Message{Type: models.MessageError, Data: errorData{Message: "invalid frame"}})
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		data, err := control.HandleMessage(ctx, msg)
		if err != nil {
			_ = peer.write(models.Message{
				Type:      models.MessageError,
				RequestID: msg.RequestID,
				Data:      errorData{Message: err.Error()},
			})
			continue
		}
		if msg.RequestID == "" {
			continue
		}
		_ = peer.write(models.Message{Type: models.MessageReply, RequestID: msg.RequestID, Data: replyData(data)})
	}
}

// replyData keeps a nil answer as an explicit JSON null.
func replyData(v any) any {
	if v == nil {
		return json.RawMessage("null")
	}
	return v
}
