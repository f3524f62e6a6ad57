package models

import (
	"net/http"
	"testing"
	"time"
)

func TestQueuedWriteKeepsRepeatedHeaders(t *testing.T) {
	req := &Request{
		Method: http.MethodPost,
		URL:    "/api/food-data/entries",
		Header: http.Header{
			"Content-Type": {"application/json"},
			"Accept":       {"application/json", "text/plain"},
		},
		Body: []byte(`{"kcal":300}`),
	}
	req.Header.Add("x-entry-tag", "lunch")
	req.Header.Add("x-entry-tag", "shared")

	w := NewQueuedWrite(req, time.UnixMilli(42))
	if got := w.Headers["Accept"]; got != "application/json, text/plain" {
		t.Errorf("Accept = %q", got)
	}
	if got := w.Headers["X-Entry-Tag"]; got != "lunch, shared" {
		t.Errorf("X-Entry-Tag = %q", got)
	}

	replayed := w.Request()
	if replayed.Method != req.Method || replayed.URL != req.URL || string(replayed.Body) != string(req.Body) {
		t.Errorf("unexpected replayed request %+v", replayed)
	}
	if got := replayed.Header.Get("X-Entry-Tag"); got != "lunch, shared" {
		t.Errorf("replayed X-Entry-Tag = %q", got)
	}
	if replayed.Header.Get("Content-Type") != "application/json" {
		t.Errorf("replayed Content-Type = %q", replayed.Header.Get("Content-Type"))
	}
	if !w.EnqueuedAt().Equal(time.UnixMilli(42)) {
		t.Errorf("unexpected enqueue time %v", w.EnqueuedAt())
	}
}
