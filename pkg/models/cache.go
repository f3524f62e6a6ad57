package models

import (
	"net/http"
	"time"
)

// CacheEntry stores a response under its request signature in one partition.
type CacheEntry struct {
	Partition  string      `json:"partition"`
	Signature  string      `json:"signature"`
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body"`
	StoredAt   time.Time   `json:"stored_at"`
}

// Response rebuilds the stored response.
func (e *CacheEntry) Response() *Response {
	r := &Response{StatusCode: e.StatusCode, Header: e.Header, Body: e.Body}
	return r.Clone()
}

// PartitionStats reports the size of one cache partition.
type PartitionStats struct {
	Name    string `json:"name"`
	Entries int64  `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Partitions []PartitionStats `json:"partitions"`
	Entries    int64            `json:"entries"`
	Hits       int64            `json:"hits"`
	Misses     int64            `json:"misses"`
}
