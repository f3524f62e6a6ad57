package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/pario-ai/larder/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// deliverTimeout bounds how long a replay waits on a client with a full
// notification buffer before its SYNC_SUCCESS is dropped.
const deliverTimeout = 2 * time.Second

// ReplayResult summarizes one pass over the queue.
type ReplayResult struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Replay sends every queued write in FIFO order. A write answered with a 2xx
// status is removed from the queue and announced with SYNC_SUCCESS; any
// other outcome leaves it queued and the pass moves on. Concurrent calls
// share a single pass. Only a failure to read the queue is returned.
func (d *Dispatcher) Replay(ctx context.Context) (ReplayResult, error) {
	v, err, _ := d.replays.Do("replay", func() (any, error) {
		return d.replay(ctx)
	})
	if err != nil {
		return ReplayResult{}, err
	}
	return v.(ReplayResult), nil
}

func (d *Dispatcher) replay(ctx context.Context) (ReplayResult, error) {
	ctx, span := d.tracer.Start(ctx, "dispatcher.Replay")
	defer span.End()

	var res ReplayResult
	writes, err := d.queue.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("list queue: %w", err)
	}

	for _, w := range writes {
		if ctx.Err() != nil {
			break
		}
		res.Attempted++
		if d.replayOne(ctx, w) {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("larder.replay.attempted", res.Attempted),
		attribute.Int("larder.replay.succeeded", res.Succeeded),
		attribute.Int("larder.replay.failed", res.Failed),
	)
	if res.Attempted > 0 {
		d.logf("dispatcher: replay done: %d succeeded, %d failed", res.Succeeded, res.Failed)
	}
	return res, nil
}

func (d *Dispatcher) replayOne(ctx context.Context, w models.QueuedWrite) bool {
	start := time.Now()
	attempt := models.SyncAttempt{
		QueueID: w.ID,
		URL:     w.URL,
		Method:  w.Method,
		Outcome: models.OutcomeFailed,
	}
	defer func() {
		attempt.LatencyMs = time.Since(start).Milliseconds()
		attempt.CreatedAt = d.now().UTC()
		d.recordAttempt(ctx, attempt)
	}()

	resp, err := d.fetcher.Fetch(ctx, w.Request())
	if err != nil {
		attempt.Error = err.Error()
		d.logf("dispatcher: replay #%d %s %s failed: %v", w.ID, w.Method, w.URL, err)
		return false
	}
	attempt.StatusCode = resp.StatusCode
	if !resp.OK() {
		attempt.Error = fmt.Sprintf("status %d", resp.StatusCode)
		d.logf("dispatcher: replay #%d %s %s returned %d", w.ID, w.Method, w.URL, resp.StatusCode)
		return false
	}

	if err := d.queue.Delete(ctx, w.ID); err != nil {
		attempt.Error = fmt.Sprintf("delete from queue: %v", err)
		d.logf("dispatcher: replay #%d delete: %v", w.ID, err)
		return false
	}
	attempt.Outcome = models.OutcomeSucceeded
	d.deliver(ctx, models.Message{Type: models.MessageSyncSuccess, Data: w})
	return true
}

func (d *Dispatcher) recordAttempt(ctx context.Context, a models.SyncAttempt) {
	if d.record == nil {
		return
	}
	if err := d.record.Record(context.WithoutCancel(ctx), a); err != nil {
		d.logf("dispatcher: record sync attempt: %v", err)
	}
}
