// Package fetch sends intercepted requests to the upstream origin.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pario-ai/larder/pkg/models"
)

// ErrNetwork marks a request that never produced an HTTP response.
var ErrNetwork = errors.New("network error")

// Fetcher performs a request against the network. A non-2xx answer is a
// response, not an error; only transport failures return an error.
type Fetcher interface {
	Fetch(ctx context.Context, req *models.Request) (*models.Response, error)
}

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client fetches origin-relative requests from a fixed upstream.
type Client struct {
	base *url.URL
	http *http.Client
}

// New creates a Client for the upstream base URL. A zero timeout means no
// client-side timeout. Redirects are returned to the caller, not followed.
func New(upstream string, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", upstream)
	}
	return &Client{
		base: base,
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Target resolves an origin-relative URL against the upstream.
func (c *Client) Target(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	return strings.TrimSuffix(c.base.String(), "/") + "/" + strings.TrimPrefix(u.RequestURI(), "/"), nil
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, req *models.Request) (*models.Response, error) {
	target, err := c.Target(req.URL)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vals := range req.Header {
		for _, v := range vals {
			hreq.Header.Add(k, v)
		}
	}
	removeHopHeaders(hreq.Header)

	resp, err := c.http.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrNetwork, req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrNetwork, err)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	return &models.Response{
		StatusCode: resp.StatusCode,
		Header:     header,
		Body:       respBody,
	}, nil
}

func removeHopHeaders(h http.Header) {
	for _, name := range h.Values("Connection") {
		for _, f := range strings.Split(name, ",") {
			if f = strings.TrimSpace(f); f != "" {
				h.Del(f)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
