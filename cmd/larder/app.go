package main

import (
	"fmt"
	"log"

	"github.com/pario-ai/larder/pkg/cache"
	cachemem "github.com/pario-ai/larder/pkg/cache/memory"
	cachesql "github.com/pario-ai/larder/pkg/cache/sqlite"
	"github.com/pario-ai/larder/pkg/config"
	"github.com/pario-ai/larder/pkg/dispatcher"
	"github.com/pario-ai/larder/pkg/fetch"
	"github.com/pario-ai/larder/pkg/netstate"
	"github.com/pario-ai/larder/pkg/notify"
	"github.com/pario-ai/larder/pkg/queue"
	queuemem "github.com/pario-ai/larder/pkg/queue/memory"
	queuesql "github.com/pario-ai/larder/pkg/queue/sqlite"
	"github.com/pario-ai/larder/pkg/synclog"
)

// app bundles everything a command needs, wired from one config.
type app struct {
	cfg        *config.Config
	cache      cache.Store
	queue      queue.Queue
	syncLog    *synclog.Logger
	monitor    *netstate.Monitor
	hub        *notify.Hub
	dispatcher *dispatcher.Dispatcher
	closers    []func() error
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openApp(configPath string) (*app, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	switch cfg.Storage {
	case config.StorageMemory:
		a.cache = cachemem.New()
		a.queue = queuemem.New()
	default:
		c, err := cachesql.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
		a.cache = c
		a.closers = append(a.closers, c.Close)

		q, err := queuesql.New(cfg.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init queue: %w", err)
		}
		a.queue = q
		a.closers = append(a.closers, q.Close)
	}

	var recorder dispatcher.AttemptRecorder
	if cfg.SyncLog.Enabled {
		l, err := synclog.New(cfg.SyncLog)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init sync log: %w", err)
		}
		a.syncLog = l
		a.closers = append(a.closers, l.Close)
		recorder = l
	}

	f, err := fetch.New(cfg.Upstream, cfg.Fetch.Timeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.monitor = netstate.New(cfg.ProbeURL(), cfg.Sync.ProbeInterval, cfg.Sync.ProbeTimeout)
	a.hub = notify.NewHub(notify.DefaultBuffer, log.Printf)

	opts := dispatcher.Options{
		Cache:        a.cache,
		Queue:        a.queue,
		Fetcher:      f,
		Connectivity: a.monitor,
		Sync:         a.monitor,
		Notifier:     a.hub,
		Attempts:     recorder,
		Logf:         log.Printf,
	}
	d, err := dispatcher.New(cfg, opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.dispatcher = d
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Printf("close: %v", err)
		}
	}
}
