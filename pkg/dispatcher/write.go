package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pario-ai/larder/pkg/models"
)

// PendingMessage is the message of the pending-write response.
const PendingMessage = "Request queued for when online"

// write sends a write to the network. When that fails while offline the
// write is queued and a pending response is returned instead. A write whose
// caller went away is never queued: the upstream may already have applied it.
func (d *Dispatcher) write(ctx context.Context, req *models.Request) (*models.Response, error) {
	resp, err := d.fetcher.Fetch(ctx, req)
	if err == nil {
		return resp, nil
	}
	failure := fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	if ctx.Err() != nil {
		return nil, failure
	}

	if d.conn.Online(context.WithoutCancel(ctx)) {
		return nil, failure
	}

	w := models.NewQueuedWrite(req, d.now())
	id, qerr := d.queue.Append(ctx, w)
	if qerr != nil {
		d.logf("dispatcher: queue write %s %s: %v", req.Method, req.URL, qerr)
		return nil, failure
	}
	d.logf("dispatcher: offline, queued %s %s as #%d", req.Method, req.URL, id)

	if d.sync != nil {
		d.sync.Register(ctx, d.cfg.Sync.Tag)
	}
	return pendingResponse(), nil
}

func pendingResponse() *models.Response {
	body, _ := json.Marshal(models.PendingWrite{
		Success: false,
		Queued:  true,
		Message: PendingMessage,
	})
	return &models.Response{
		StatusCode: http.StatusAccepted,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       body,
	}
}
