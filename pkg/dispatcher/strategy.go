package dispatcher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pario-ai/larder/pkg/models"
)

const offlineHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Offline</title></head>
<body><h1>You are offline</h1><p>Check your connection and try again.</p></body>
</html>
`

func (d *Dispatcher) cacheFirst(ctx context.Context, req *models.Request) (*models.Response, error) {
	sig := d.requestSignature(req)
	if entry, ok := d.match(ctx, sig); ok {
		return tagged(entry.Response(), CacheHit), nil
	}

	resp, err := d.fetcher.Fetch(ctx, req)
	if err != nil {
		return d.offlineFallback(ctx, req, err)
	}
	if resp.OK() {
		d.store(ctx, d.cfg.StaticPartition(), sig, req, resp)
	}
	return tagged(resp, CacheMiss), nil
}

func (d *Dispatcher) networkFirst(ctx context.Context, req *models.Request) (*models.Response, error) {
	sig := d.requestSignature(req)
	resp, err := d.fetcher.Fetch(ctx, req)
	if err == nil {
		if resp.OK() {
			d.store(ctx, d.cfg.DynamicPartition(), sig, req, resp)
		}
		return tagged(resp, CacheMiss), nil
	}

	d.logf("dispatcher: network failed for %s, trying cache: %v", req.URL, err)
	if entry, ok := d.match(ctx, sig); ok {
		return tagged(entry.Response(), CacheStale), nil
	}
	return d.offlineFallback(ctx, req, err)
}

// offlineFallback answers a failed navigation with the offline page and
// propagates the failure for every other request.
func (d *Dispatcher) offlineFallback(ctx context.Context, req *models.Request, cause error) (*models.Response, error) {
	if !req.IsNavigation() {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, cause)
	}

	if d.cfg.OfflinePage != "" {
		sig := d.signature(http.MethodGet, d.cfg.OfflinePage, nil)
		if entry, ok := d.match(ctx, sig); ok {
			resp := entry.Response()
			resp.StatusCode = http.StatusOK
			return tagged(resp, CacheOffline), nil
		}
	}

	resp := &models.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(offlineHTML),
	}
	return tagged(resp, CacheOffline), nil
}

// match looks a signature up in the current partitions. Lookup errors are
// logged and treated as a miss.
func (d *Dispatcher) match(ctx context.Context, sig string) (*models.CacheEntry, bool) {
	entry, ok, err := d.cache.Match(ctx, sig, d.cfg.StaticPartition(), d.cfg.DynamicPartition())
	if err != nil {
		d.logf("dispatcher: cache match: %v", err)
		return nil, false
	}
	return entry, ok
}

// store writes a copy of resp. A failed write is logged; the caller still
// gets its response.
func (d *Dispatcher) store(ctx context.Context, partition, sig string, req *models.Request, resp *models.Response) {
	copied := resp.Clone()
	entry := models.CacheEntry{
		Partition:  partition,
		Signature:  sig,
		Method:     req.Method,
		URL:        req.URL,
		StatusCode: copied.StatusCode,
		Header:     copied.Header,
		Body:       copied.Body,
		StoredAt:   d.now().UTC(),
	}
	if err := d.cache.Put(ctx, entry); err != nil {
		d.logf("dispatcher: cache put %s %s: %v", partition, req.URL, err)
	}
}

// tagged returns resp with the cache header set. The header is added after
// storing so it never lands in the cache.
func tagged(resp *models.Response, how string) *models.Response {
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(CacheHeader, how)
	return resp
}
