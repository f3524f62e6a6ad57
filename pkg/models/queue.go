package models

import (
	"net/http"
	"strings"
	"time"
)

// QueuedWrite is a write that could not reach the network. The JSON shape is
// what applications receive inside SYNC_SUCCESS notifications.
type QueuedWrite struct {
	ID        int64             `json:"id"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body"`
	Timestamp int64             `json:"timestamp"` // Unix milliseconds
}

// NewQueuedWrite serializes a request for the write queue. Repeated header
// fields are combined into one comma-separated value.
func NewQueuedWrite(req *Request, now time.Time) QueuedWrite {
	headers := make(map[string]string, len(req.Header))
	for k := range req.Header {
		headers[http.CanonicalHeaderKey(k)] = strings.Join(req.Header.Values(k), ", ")
	}
	return QueuedWrite{
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
		Body:      string(req.Body),
		Timestamp: now.UnixMilli(),
	}
}

// Request rebuilds the original request for replay.
func (q QueuedWrite) Request() *Request {
	h := make(http.Header, len(q.Headers))
	for k, v := range q.Headers {
		h.Set(k, v)
	}
	return &Request{
		Method: q.Method,
		URL:    q.URL,
		Header: h,
		Body:   []byte(q.Body),
	}
}

// EnqueuedAt returns the enqueue time.
func (q QueuedWrite) EnqueuedAt() time.Time {
	return time.UnixMilli(q.Timestamp).UTC()
}
