package models

import (
	"net/http"
	"net/url"
)

// Request modes and destinations, mirroring the Fetch metadata headers
// (Sec-Fetch-Mode, Sec-Fetch-Dest) sent by browsers.
const (
	ModeNavigate = "navigate"

	DestinationImage    = "image"
	DestinationDocument = "document"
)

// Request is an intercepted application request.
type Request struct {
	Method string `json:"method"`
	// URL is origin-relative: path plus optional query.
	URL         string      `json:"url"`
	Header      http.Header `json:"headers,omitempty"`
	Body        []byte      `json:"body,omitempty"`
	Mode        string      `json:"mode,omitempty"`
	Destination string      `json:"destination,omitempty"`
}

// Path returns the URL path without the query string.
func (r *Request) Path() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return r.URL
	}
	return u.Path
}

// IsNavigation reports whether the request is a top-level page navigation.
func (r *Request) IsNavigation() bool {
	return r.Mode == ModeNavigate
}

// Response is a network answer or a synthesized/cached one.
type Response struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Clone returns a deep copy so a cached copy and the caller's copy never share buffers.
func (r *Response) Clone() *Response {
	c := &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	return c
}
