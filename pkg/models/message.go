package models

import "encoding/json"

// Message types exchanged with application instances.
const (
	MessageSyncSuccess   = "SYNC_SUCCESS"
	MessageClaimed       = "CLAIMED"
	MessageReply         = "REPLY"
	MessageError         = "ERROR"
	MessageSkipWaiting   = "SKIP_WAITING"
	MessageCacheFoodData = "CACHE_FOOD_DATA"
	MessageGetCachedData = "GET_CACHED_DATA"
)

// Message is the envelope for notifications sent to applications and for
// control messages received from them.
type Message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Data      any             `json:"data,omitempty"`
}

// PendingWrite is the body of the 202 response returned for a queued write.
type PendingWrite struct {
	Success bool   `json:"success"`
	Queued  bool   `json:"queued"`
	Message string `json:"message"`
}
