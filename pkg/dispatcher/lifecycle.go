package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/pario-ai/larder/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// State is the dispatcher lifecycle state.
type State int

const (
	StateInstalling State = iota
	StateInstalled
	StateActive
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// installConcurrency bounds parallel asset fetches during install.
const installConcurrency = 8

// State returns the current lifecycle state.
func (d *Dispatcher) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Install fetches every static asset and stores them in the static
// partition. Any failed or non-2xx fetch aborts the step with nothing
// written. On success the dispatcher is installed, and activates right away
// when skip_waiting is set or no application is connected.
func (d *Dispatcher) Install(ctx context.Context) error {
	if err := d.install(ctx); err != nil {
		return err
	}
	d.activateIfReady(ctx)
	return nil
}

func (d *Dispatcher) install(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	ctx, span := d.tracer.Start(ctx, "dispatcher.Install")
	defer span.End()
	span.SetAttributes(
		attribute.String("larder.version", d.cfg.Version),
		attribute.Int("larder.assets", len(d.cfg.StaticAssets)),
	)

	if d.state == StateActive {
		return nil
	}
	d.setState(StateInstalling)

	partition := d.cfg.StaticPartition()
	entries := make([]models.CacheEntry, len(d.cfg.StaticAssets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(installConcurrency)
	for i, asset := range d.cfg.StaticAssets {
		g.Go(func() error {
			req := &models.Request{Method: http.MethodGet, URL: asset, Header: make(http.Header)}
			resp, err := d.fetcher.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", asset, err)
			}
			if !resp.OK() {
				return fmt.Errorf("fetch %s: status %d", asset, resp.StatusCode)
			}
			entries[i] = models.CacheEntry{
				Partition:  partition,
				Signature:  d.signature(http.MethodGet, asset, nil),
				Method:     http.MethodGet,
				URL:        asset,
				StatusCode: resp.StatusCode,
				Header:     resp.Header,
				Body:       resp.Body,
				StoredAt:   d.now().UTC(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	if err := d.cache.Open(ctx, partition); err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrInstallFailed, partition, err)
	}
	if err := d.cache.PutAll(ctx, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: store assets: %w", ErrInstallFailed, err)
	}
	if err := d.cache.Open(ctx, d.cfg.DynamicPartition()); err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrInstallFailed, d.cfg.DynamicPartition(), err)
	}

	d.setState(StateInstalled)
	d.logf("dispatcher: installed %d static assets into %s", len(entries), partition)
	return nil
}

// Restore marks the dispatcher installed without fetching when the static
// partition of the current version already holds every asset, as after a
// restart. It reports whether it did so.
func (d *Dispatcher) Restore(ctx context.Context) (bool, error) {
	d.lifecycle.Lock()
	if d.state != StateInstalling {
		d.lifecycle.Unlock()
		return true, nil
	}
	partition := d.cfg.StaticPartition()
	for _, asset := range d.cfg.StaticAssets {
		_, ok, err := d.cache.Match(ctx, d.signature(http.MethodGet, asset, nil), partition)
		if err != nil {
			d.lifecycle.Unlock()
			return false, fmt.Errorf("restore: %w", err)
		}
		if !ok {
			d.lifecycle.Unlock()
			return false, nil
		}
	}
	d.setState(StateInstalled)
	d.lifecycle.Unlock()

	d.logf("dispatcher: restored %s from storage", partition)
	d.activateIfReady(ctx)
	return true, nil
}

// Activate deletes every partition other than the current static and
// dynamic ones, then claims connected applications with a CLAIMED
// notification. It fails before install has completed.
func (d *Dispatcher) Activate(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.state == StateInstalling {
		return errors.New("activate: not installed")
	}

	ctx, span := d.tracer.Start(ctx, "dispatcher.Activate")
	defer span.End()

	deleted, err := d.collect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("activate: %w", err)
	}
	span.SetAttributes(attribute.StringSlice("larder.deleted_partitions", deleted))

	d.setState(StateActive)
	d.logf("dispatcher: active at %s", d.cfg.Version)
	d.broadcast(models.Message{Type: models.MessageClaimed, Data: map[string]string{"version": d.cfg.Version}})
	return nil
}

// Collect deletes stale partitions and returns their names.
func (d *Dispatcher) Collect(ctx context.Context) ([]string, error) {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	return d.collect(ctx)
}

func (d *Dispatcher) collect(ctx context.Context) ([]string, error) {
	names, err := d.cache.Partitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	keep := []string{d.cfg.StaticPartition(), d.cfg.DynamicPartition()}
	var deleted []string
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		if _, err := d.cache.DeletePartition(ctx, name); err != nil {
			return deleted, fmt.Errorf("delete partition %s: %w", name, err)
		}
		d.logf("dispatcher: deleted stale partition %s", name)
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// SkipWaiting activates an installed dispatcher immediately.
func (d *Dispatcher) SkipWaiting(ctx context.Context) error {
	if d.State() != StateInstalled {
		return nil
	}
	return d.Activate(ctx)
}

// ActivateIfIdle activates an installed dispatcher when no application is
// connected. Hook it to the notifier's idle event.
func (d *Dispatcher) ActivateIfIdle(ctx context.Context) {
	if d.State() != StateInstalled {
		return
	}
	if d.notify != nil && d.notify.Count() > 0 {
		return
	}
	if err := d.Activate(ctx); err != nil {
		d.logf("dispatcher: %v", err)
	}
}

func (d *Dispatcher) activateIfReady(ctx context.Context) {
	if d.State() != StateInstalled {
		return
	}
	if !d.cfg.SkipWaiting && d.notify != nil && d.notify.Count() > 0 {
		d.logf("dispatcher: installed %s, waiting for connected applications to release", d.cfg.Version)
		return
	}
	if err := d.Activate(ctx); err != nil {
		d.logf("dispatcher: %v", err)
	}
}
