package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	cachemem "github.com/pario-ai/larder/pkg/cache/memory"
	"github.com/pario-ai/larder/pkg/config"
	"github.com/pario-ai/larder/pkg/fetch"
	"github.com/pario-ai/larder/pkg/models"
	queuemem "github.com/pario-ai/larder/pkg/queue/memory"
)

// fakeFetcher answers from a route table keyed by "METHOD url". Unknown
// routes fail as if the network were unreachable.
type fakeFetcher struct {
	mu      sync.Mutex
	routes  map[string]*models.Response
	handler func(req *models.Request) (*models.Response, error)
	calls   []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{routes: make(map[string]*models.Response)}
}

func (f *fakeFetcher) set(method, url string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[method+" "+url] = &models.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       []byte(body),
	}
}

func (f *fakeFetcher) unset(method, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.routes, method+" "+url)
}

func (f *fakeFetcher) Fetch(_ context.Context, req *models.Request) (*models.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Method+" "+req.URL)
	handler := f.handler
	resp, ok := f.routes[req.Method+" "+req.URL]
	f.mu.Unlock()

	if handler != nil {
		return handler(req)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s: connection refused", fetch.ErrNetwork, req.Method, req.URL)
	}
	return resp.Clone(), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

type fakeConn struct {
	online atomic.Bool
	probes atomic.Int32
	// cancelled counts probes made with an already cancelled context.
	cancelled atomic.Int32
}

func (c *fakeConn) Online(ctx context.Context) bool {
	c.probes.Add(1)
	if ctx.Err() != nil {
		c.cancelled.Add(1)
	}
	return c.online.Load()
}

type fakeSync struct {
	mu   sync.Mutex
	tags []string
}

func (s *fakeSync) Register(_ context.Context, tag string) {
	s.mu.Lock()
	s.tags = append(s.tags, tag)
	s.mu.Unlock()
}

type fakeNotifier struct {
	mu      sync.Mutex
	msgs    []models.Message
	clients int
}

func (n *fakeNotifier) Broadcast(msg models.Message) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.clients
}

func (n *fakeNotifier) Deliver(_ context.Context, msg models.Message) int {
	return n.Broadcast(msg)
}

func (n *fakeNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.clients
}

func (n *fakeNotifier) ofType(typ string) []models.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.Message
	for _, m := range n.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

type fakeRecorder struct {
	mu       sync.Mutex
	attempts []models.SyncAttempt
}

func (r *fakeRecorder) Record(_ context.Context, a models.SyncAttempt) error {
	r.mu.Lock()
	r.attempts = append(r.attempts, a)
	r.mu.Unlock()
	return nil
}

type harness struct {
	cfg      *config.Config
	d        *Dispatcher
	cache    *cachemem.Cache
	queue    *queuemem.Queue
	fetcher  *fakeFetcher
	conn     *fakeConn
	sync     *fakeSync
	notifier *fakeNotifier
	recorder *fakeRecorder
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Version = "v1"
	cfg.StaticAssets = []string{"/", "/index.html", "/app.js", "/offline.html"}
	cfg.APIPrefixes = []string{"/api/nutrition/", "/api/food-data/"}
	cfg.OfflinePage = "/offline.html"
	return cfg
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{
		cfg:      cfg,
		cache:    cachemem.New(),
		queue:    queuemem.New(),
		fetcher:  newFakeFetcher(),
		conn:     &fakeConn{},
		sync:     &fakeSync{},
		notifier: &fakeNotifier{},
		recorder: &fakeRecorder{},
	}
	h.conn.online.Store(true)
	for _, asset := range cfg.StaticAssets {
		h.fetcher.set(http.MethodGet, asset, http.StatusOK, "asset:"+asset)
	}
	d, err := New(cfg, Options{
		Cache:        h.cache,
		Queue:        h.queue,
		Fetcher:      h.fetcher,
		Connectivity: h.conn,
		Sync:         h.sync,
		Notifier:     h.notifier,
		Attempts:     h.recorder,
		Logf:         func(string, ...any) {},
		Now:          func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})
	if err != nil {
		t.Fatal(err)
	}
	h.d = d
	return h
}

// active returns a harness that has installed and activated.
func active(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t, testConfig())
	if err := h.d.Install(context.Background()); err != nil {
		t.Fatalf("install: %v", err)
	}
	if h.d.State() != StateActive {
		t.Fatalf("expected active, got %s", h.d.State())
	}
	h.fetcher.reset()
	return h
}

func get(url string) *models.Request {
	return &models.Request{Method: http.MethodGet, URL: url, Header: make(http.Header)}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(testConfig(), Options{}); err == nil {
		t.Error("expected error without collaborators")
	}
}

func TestHandleBeforeActive(t *testing.T) {
	h := newHarness(t, testConfig())
	_, err := h.d.Handle(context.Background(), get("/index.html"))
	if !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}
	if h.fetcher.callCount() != 0 {
		t.Error("inactive dispatcher should not fetch")
	}
}

func TestInstallServesStaticFromCacheWithoutNetwork(t *testing.T) {
	h := active(t)
	ctx := context.Background()

	for _, asset := range h.cfg.StaticAssets {
		resp, err := h.d.Handle(ctx, get(asset))
		if err != nil {
			t.Fatalf("%s: %v", asset, err)
		}
		if string(resp.Body) != "asset:"+asset {
			t.Errorf("%s: unexpected body %q", asset, resp.Body)
		}
		if resp.Header.Get(CacheHeader) != CacheHit {
			t.Errorf("%s: expected cache hit, got %q", asset, resp.Header.Get(CacheHeader))
		}
	}
	if n := h.fetcher.callCount(); n != 0 {
		t.Errorf("expected zero network calls, got %d", n)
	}

	claimed := h.notifier.ofType(models.MessageClaimed)
	if len(claimed) != 1 {
		t.Fatalf("expected one CLAIMED, got %d", len(claimed))
	}
}

func TestInstallFailsAtomically(t *testing.T) {
	tests := []struct {
		name       string
		breakAsset func(f *fakeFetcher)
	}{
		{"non-ok asset", func(f *fakeFetcher) { f.set(http.MethodGet, "/app.js", http.StatusNotFound, "") }},
		{"unreachable asset", func(f *fakeFetcher) { f.unset(http.MethodGet, "/app.js") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			tt.breakAsset(h.fetcher)

			err := h.d.Install(context.Background())
			if !errors.Is(err, ErrInstallFailed) {
				t.Fatalf("expected ErrInstallFailed, got %v", err)
			}
			if h.d.State() == StateActive {
				t.Fatal("dispatcher must not activate after failed install")
			}
			stats, err := h.cache.Stats(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if stats.Entries != 0 {
				t.Errorf("expected no cached assets, got %d", stats.Entries)
			}
		})
	}
}

func TestInstallWaitsForConnectedClients(t *testing.T) {
	cfg := testConfig()
	cfg.SkipWaiting = false
	h := newHarness(t, cfg)
	h.notifier.clients = 1
	ctx := context.Background()

	if err := h.d.Install(ctx); err != nil {
		t.Fatal(err)
	}
	if h.d.State() != StateInstalled {
		t.Fatalf("expected installed, got %s", h.d.State())
	}
	if _, err := h.d.Handle(ctx, get("/index.html")); !errors.Is(err, ErrNotActive) {
		t.Fatalf("waiting dispatcher should not serve, got %v", err)
	}

	if _, err := h.d.HandleMessage(ctx, models.Message{Type: models.MessageSkipWaiting}); err != nil {
		t.Fatal(err)
	}
	if h.d.State() != StateActive {
		t.Fatalf("expected active after SKIP_WAITING, got %s", h.d.State())
	}
}

func TestActivateIfIdle(t *testing.T) {
	cfg := testConfig()
	cfg.SkipWaiting = false
	h := newHarness(t, cfg)
	h.notifier.clients = 1
	ctx := context.Background()

	if err := h.d.Install(ctx); err != nil {
		t.Fatal(err)
	}
	h.d.ActivateIfIdle(ctx)
	if h.d.State() != StateInstalled {
		t.Fatal("should keep waiting while a client is connected")
	}

	h.notifier.mu.Lock()
	h.notifier.clients = 0
	h.notifier.mu.Unlock()
	h.d.ActivateIfIdle(ctx)
	if h.d.State() != StateActive {
		t.Fatalf("expected active once idle, got %s", h.d.State())
	}
}

func TestInstallWithoutClientsActivates(t *testing.T) {
	cfg := testConfig()
	cfg.SkipWaiting = false
	h := newHarness(t, cfg)

	if err := h.d.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.d.State() != StateActive {
		t.Fatalf("expected active with no clients, got %s", h.d.State())
	}
}

func TestActivateBeforeInstall(t *testing.T) {
	h := newHarness(t, testConfig())
	if err := h.d.Activate(context.Background()); err == nil {
		t.Error("expected error activating before install")
	}
}

func TestActivateDeletesStalePartitions(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	for _, p := range []string{"static-v0", "dynamic-v0", "dynamic-v1", "scratch"} {
		if err := h.cache.Put(ctx, models.CacheEntry{Partition: p, Signature: "sig-" + p, Method: "GET", URL: "/x", StatusCode: 200}); err != nil {
			t.Fatal(err)
		}
	}

	if err := h.d.Install(ctx); err != nil {
		t.Fatal(err)
	}

	names, err := h.cache.Partitions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, n := range names {
		got[n] = true
	}
	if len(names) != 2 || !got["static-v1"] || !got["dynamic-v1"] {
		t.Fatalf("expected only current partitions, got %v", names)
	}
	if _, ok, _ := h.cache.Match(ctx, "sig-dynamic-v1", "dynamic-v1"); !ok {
		t.Error("entries in the current dynamic partition must be retained")
	}
}

func TestCollect(t *testing.T) {
	h := active(t)
	ctx := context.Background()
	if err := h.cache.Open(ctx, "static-old"); err != nil {
		t.Fatal(err)
	}

	deleted, err := h.d.Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0] != "static-old" {
		t.Errorf("unexpected deleted partitions %v", deleted)
	}
}

func TestRestoreSkipsFetch(t *testing.T) {
	h := active(t)
	ctx := context.Background()

	d2, err := New(h.cfg, Options{
		Cache:        h.cache,
		Queue:        h.queue,
		Fetcher:      h.fetcher,
		Connectivity: h.conn,
		Logf:         func(string, ...any) {},
	})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := d2.Restore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected restore from populated static partition")
	}
	if d2.State() != StateActive {
		t.Errorf("expected active after restore, got %s", d2.State())
	}
	if n := h.fetcher.callCount(); n != 0 {
		t.Errorf("restore should not fetch, got %d calls", n)
	}
}

func TestRestoreIncomplete(t *testing.T) {
	h := newHarness(t, testConfig())
	ok, err := h.d.Restore(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("restore should fail on an empty cache")
	}
	if h.d.State() != StateInstalling {
		t.Errorf("expected installing, got %s", h.d.State())
	}
}

func TestStatus(t *testing.T) {
	h := active(t)
	h.notifier.clients = 2
	if _, err := h.queue.Append(context.Background(), models.QueuedWrite{URL: "/a", Method: "POST"}); err != nil {
		t.Fatal(err)
	}

	st, err := h.d.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.State != "active" || st.Version != "v1" || st.Queued != 1 || st.Clients != 2 {
		t.Errorf("unexpected status %+v", st)
	}
}
