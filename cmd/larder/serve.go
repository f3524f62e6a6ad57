package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/pario-ai/larder/pkg/proxy"
	"github.com/pario-ai/larder/pkg/telemetry"
	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the offline-first proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdown, err := telemetry.Setup(ctx, a.cfg.Telemetry, version)
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					log.Printf("telemetry shutdown: %v", err)
				}
			}()

			d := a.dispatcher
			a.monitor.Handle(a.cfg.Sync.Tag, func(ctx context.Context) {
				if _, err := d.Replay(ctx); err != nil {
					log.Printf("background sync: %v", err)
				}
			})
			go a.monitor.Run(ctx)
			go prepare(ctx, a)

			srv, err := proxy.New(a.cfg, d, a.hub)
			if err != nil {
				return err
			}
			log.Printf("starting larder %s with config: %s", a.cfg.Version, *configPath)
			return srv.ListenAndServe(ctx)
		},
	}
}

// prepare restores or installs the static partition, retrying on every probe
// interval until it succeeds. Writes left in the queue by an earlier run get
// a sync registered.
func prepare(ctx context.Context, a *app) {
	if n, err := a.queue.Len(ctx); err != nil {
		log.Printf("queue len: %v", err)
	} else if n > 0 {
		log.Printf("%d queued writes pending from a previous run", n)
		a.monitor.Register(ctx, a.cfg.Sync.Tag)
	}

	restored, err := a.dispatcher.Restore(ctx)
	if err != nil {
		log.Printf("restore: %v", err)
	}
	if restored {
		return
	}

	retry := a.cfg.Sync.ProbeInterval
	if retry <= 0 {
		retry = 15 * time.Second
	}
	for {
		err := a.dispatcher.Install(ctx)
		if err == nil {
			return
		}
		log.Printf("%v; passing requests through, retrying in %s", err, retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
	}
}
