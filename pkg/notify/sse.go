package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Events returns a Server-Sent Events handler that streams notifications.
// Each event carries one JSON-encoded message on its data line.
func (h *Hub) Events() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		client := h.Join()
		defer h.Leave(client)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, ": connected %s\n\n", client.ID)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case msg, ok := <-client.Messages():
				if !ok {
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					if h.logf != nil {
						h.logf("notify: encode %s: %v", msg.Type, err)
					}
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, data)
				flusher.Flush()
			}
		}
	})
}
