// Package dispatcher answers intercepted requests from a partitioned cache or
// the network, queues writes made while offline, and replays them once
// connectivity returns.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/config"
	"github.com/pario-ai/larder/pkg/fetch"
	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/queue"
	"github.com/pario-ai/larder/pkg/router"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// CacheHeader reports how a response was produced.
const CacheHeader = "X-Larder-Cache"

// CacheHeader values.
const (
	CacheHit     = "hit"
	CacheMiss    = "miss"
	CacheStale   = "stale"
	CacheOffline = "offline"
)

var (
	// ErrNotActive is returned by Handle before activation. Callers should
	// send the request to the network directly.
	ErrNotActive = errors.New("dispatcher not active")
	// ErrInstallFailed wraps the first failure of an install step.
	ErrInstallFailed = errors.New("install failed")
	// ErrUnknownMessage is returned for control messages of an unknown type.
	ErrUnknownMessage = errors.New("unknown message type")
)

// Connectivity reports whether the network is reachable.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// SyncRegistrar schedules a deferred sync for a tag.
type SyncRegistrar interface {
	Register(ctx context.Context, tag string)
}

// Notifier delivers messages to connected application instances.
// Broadcast drops a message for a client whose buffer is full; Deliver
// waits for room until ctx is done.
type Notifier interface {
	Broadcast(msg models.Message) int
	Deliver(ctx context.Context, msg models.Message) int
	Count() int
}

// AttemptRecorder stores replay outcomes.
type AttemptRecorder interface {
	Record(ctx context.Context, a models.SyncAttempt) error
}

// Options holds the dispatcher's collaborators. Cache, Queue, Fetcher and
// Connectivity are required.
type Options struct {
	Cache        cache.Store
	Queue        queue.Queue
	Fetcher      fetch.Fetcher
	Connectivity Connectivity
	Sync         SyncRegistrar
	Notifier     Notifier
	Attempts     AttemptRecorder
	Logf         func(format string, args ...any)
	Now          func() time.Time
}

// Status is a snapshot of the dispatcher.
type Status struct {
	State   string `json:"state"`
	Version string `json:"version"`
	Queued  int    `json:"queued"`
	Clients int    `json:"clients"`
}

// Dispatcher routes intercepted requests to a caching strategy.
type Dispatcher struct {
	cfg     *config.Config
	router  *router.Router
	cache   cache.Store
	queue   queue.Queue
	fetcher fetch.Fetcher
	conn    Connectivity
	sync    SyncRegistrar
	notify  Notifier
	record  AttemptRecorder
	logf    func(format string, args ...any)
	now     func() time.Time
	tracer  trace.Tracer

	lifecycle sync.Mutex
	mu        sync.RWMutex
	state     State

	replays singleflight.Group
}

// New creates a Dispatcher in the installing state.
func New(cfg *config.Config, opts Options) (*Dispatcher, error) {
	switch {
	case opts.Cache == nil:
		return nil, errors.New("dispatcher: cache store is required")
	case opts.Queue == nil:
		return nil, errors.New("dispatcher: queue is required")
	case opts.Fetcher == nil:
		return nil, errors.New("dispatcher: fetcher is required")
	case opts.Connectivity == nil:
		return nil, errors.New("dispatcher: connectivity is required")
	}
	d := &Dispatcher{
		cfg:     cfg,
		router:  router.New(cfg),
		cache:   opts.Cache,
		queue:   opts.Queue,
		fetcher: opts.Fetcher,
		conn:    opts.Connectivity,
		sync:    opts.Sync,
		notify:  opts.Notifier,
		record:  opts.Attempts,
		logf:    opts.Logf,
		now:     opts.Now,
		tracer:  otel.Tracer("github.com/pario-ai/larder/pkg/dispatcher"),
		state:   StateInstalling,
	}
	if d.logf == nil {
		d.logf = log.Printf
	}
	if d.now == nil {
		d.now = time.Now
	}
	return d, nil
}

// Handle answers one intercepted request.
func (d *Dispatcher) Handle(ctx context.Context, req *models.Request) (*models.Response, error) {
	if d.State() != StateActive {
		return nil, ErrNotActive
	}

	strategy := d.router.Classify(req.Method, req.Path(), req.Destination)
	ctx, span := d.tracer.Start(ctx, "dispatcher.Handle", trace.WithAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.Path()),
		attribute.String("larder.strategy", strategy.String()),
	))
	defer span.End()

	var resp *models.Response
	var err error
	switch strategy {
	case router.CacheFirst:
		resp, err = d.cacheFirst(ctx, req)
	case router.NetworkFirst:
		resp, err = d.networkFirst(ctx, req)
	case router.Write:
		resp, err = d.write(ctx, req)
	default:
		resp, err = d.fetcher.Fetch(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.String("larder.cache", resp.Header.Get(CacheHeader)),
	)
	return resp, nil
}

// Status reports the lifecycle state, version, queue length and client count.
func (d *Dispatcher) Status(ctx context.Context) (Status, error) {
	n, err := d.queue.Len(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("queue len: %w", err)
	}
	st := Status{
		State:   d.State().String(),
		Version: d.cfg.Version,
		Queued:  n,
	}
	if d.notify != nil {
		st.Clients = d.notify.Count()
	}
	return st, nil
}

func (d *Dispatcher) signature(method, url string, header http.Header) string {
	return cache.Signature(method, url, header, d.cfg.VaryHeaders)
}

// requestSignature keys an intercepted request. Manifest entries are seeded
// at install without request headers, so vary headers never split them.
func (d *Dispatcher) requestSignature(req *models.Request) string {
	if req.Method == http.MethodGet && slices.Contains(d.cfg.StaticAssets, req.URL) {
		return d.signature(req.Method, req.URL, nil)
	}
	return d.signature(req.Method, req.URL, req.Header)
}

func (d *Dispatcher) broadcast(msg models.Message) {
	if d.notify == nil {
		return
	}
	d.notify.Broadcast(msg)
}

// deliver announces msg, waiting up to deliverTimeout for slow clients.
func (d *Dispatcher) deliver(ctx context.Context, msg models.Message) {
	if d.notify == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()
	d.notify.Deliver(ctx, msg)
}
