// Package netstate tracks upstream connectivity and fires registered sync
// tags when connectivity is restored.
package netstate

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"
)

// SyncFunc runs when a registered tag fires.
type SyncFunc func(ctx context.Context)

// Monitor probes a URL to decide whether the network is reachable. Any HTTP
// answer counts as online; a transport error counts as offline.
type Monitor struct {
	probeURL string
	client   *http.Client
	interval time.Duration
	logf     func(format string, args ...any)

	mu       sync.Mutex
	online   bool
	baseCtx  context.Context
	handlers map[string]SyncFunc
	pending  map[string]struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger overrides the log function.
func WithLogger(logf func(format string, args ...any)) Option {
	return func(m *Monitor) { m.logf = logf }
}

// WithHTTPClient overrides the probe client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Monitor) { m.client = c }
}

// New creates a Monitor. It starts out assuming the network is reachable.
func New(probeURL string, interval, timeout time.Duration, opts ...Option) *Monitor {
	m := &Monitor{
		probeURL: probeURL,
		client:   &http.Client{Timeout: timeout},
		interval: interval,
		logf:     log.Printf,
		online:   true,
		baseCtx:  context.Background(),
		handlers: make(map[string]SyncFunc),
		pending:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle sets the function run when tag fires.
func (m *Monitor) Handle(tag string, fn SyncFunc) {
	m.mu.Lock()
	m.handlers[tag] = fn
	m.mu.Unlock()
}

// Register asks for tag to fire once connectivity is available. Registering
// a tag that is already pending is a no-op. When the network is already
// known to be reachable the tag fires right away.
func (m *Monitor) Register(ctx context.Context, tag string) {
	m.mu.Lock()
	m.pending[tag] = struct{}{}
	online := m.online
	m.mu.Unlock()

	if online {
		m.fire()
	}
}

// Pending returns the registered tags that have not fired yet.
func (m *Monitor) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := make([]string, 0, len(m.pending))
	for tag := range m.pending {
		tags = append(tags, tag)
	}
	return tags
}

// IsOnline returns the last known state without probing.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Online probes the network now and records the result. A probe cut short
// by ctx says nothing about the network: the last known state is returned
// unchanged.
func (m *Monitor) Online(ctx context.Context) bool {
	online := m.probe(ctx)
	if !online && ctx.Err() != nil {
		return m.IsOnline()
	}
	m.SetOnline(online)
	return online
}

// SetOnline records the network state. A transition to online fires every
// pending tag.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if was == online {
		return
	}
	if online {
		m.logf("network: connectivity restored")
		m.fire()
	} else {
		m.logf("network: connectivity lost")
	}
}

// Run probes on every interval until ctx is cancelled. Handlers fired while
// Run is active receive a context derived from ctx.
func (m *Monitor) Run(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	if m.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Online(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.logf("network: build probe: %v", err)
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// fire starts the handler of every pending tag that has one. Tags without a
// handler stay pending.
func (m *Monitor) fire() {
	m.mu.Lock()
	ctx := m.baseCtx
	var run []SyncFunc
	for tag := range m.pending {
		fn, ok := m.handlers[tag]
		if !ok {
			continue
		}
		delete(m.pending, tag)
		run = append(run, fn)
	}
	m.mu.Unlock()

	for _, fn := range run {
		go fn(ctx)
	}
}
