package netstate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func quiet(string, ...any) {}

func TestOnlineProbe(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	m := New(upstream.URL, 0, time.Second, WithLogger(quiet))
	if !m.Online(context.Background()) {
		t.Error("any HTTP answer should count as online")
	}
}

func TestOfflineProbe(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := upstream.URL
	upstream.Close()

	m := New(url, 0, time.Second, WithLogger(quiet))
	if m.Online(context.Background()) {
		t.Error("expected offline for closed server")
	}
	if m.IsOnline() {
		t.Error("expected state to be recorded")
	}
}

func TestCancelledProbeKeepsState(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer upstream.Close()

	var logged []string
	m := New(upstream.URL, 0, time.Second, WithLogger(func(format string, args ...any) {
		logged = append(logged, format)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !m.Online(ctx) {
		t.Error("a cancelled probe should report the last known state")
	}
	if !m.IsOnline() {
		t.Error("a cancelled probe must not mark the network offline")
	}
	if len(logged) != 0 {
		t.Errorf("expected no transition to be logged, got %v", logged)
	}
}

func TestRegisterFiresOnRestore(t *testing.T) {
	m := New("http://unused.invalid", 0, time.Second, WithLogger(quiet))
	fired := make(chan struct{}, 4)
	m.Handle("sync", func(context.Context) { fired <- struct{}{} })

	m.SetOnline(false)
	m.Register(context.Background(), "sync")
	m.Register(context.Background(), "sync")

	select {
	case <-fired:
		t.Fatal("should not fire while offline")
	case <-time.After(50 * time.Millisecond):
	}
	if got := m.Pending(); len(got) != 1 || got[0] != "sync" {
		t.Fatalf("expected one pending tag, got %v", got)
	}

	m.SetOnline(true)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected handler to fire on restore")
	}
	// Duplicate registrations coalesce into one firing.
	select {
	case <-fired:
		t.Fatal("handler fired twice")
	case <-time.After(50 * time.Millisecond):
	}
	if len(m.Pending()) != 0 {
		t.Error("expected no pending tags after firing")
	}
}

func TestRegisterWhileOnlineFiresImmediately(t *testing.T) {
	m := New("http://unused.invalid", 0, time.Second, WithLogger(quiet))
	fired := make(chan struct{}, 1)
	m.Handle("sync", func(context.Context) { fired <- struct{}{} })

	m.Register(context.Background(), "sync")
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("expected handler to fire")
	}
}

func TestRegisterWithoutHandlerStaysPending(t *testing.T) {
	m := New("http://unused.invalid", 0, time.Second, WithLogger(quiet))
	m.Register(context.Background(), "orphan")
	if got := m.Pending(); len(got) != 1 {
		t.Errorf("expected tag to stay pending, got %v", got)
	}
}

func TestRunDetectsRestore(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	m := New(upstream.URL, 10*time.Millisecond, time.Second, WithLogger(quiet))
	m.SetOnline(false)
	fired := make(chan struct{}, 1)
	m.Handle("sync", func(context.Context) { fired <- struct{}{} })
	m.Register(context.Background(), "sync")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected probe loop to restore connectivity")
	}
	if !m.IsOnline() {
		t.Error("expected online after successful probe")
	}
}
