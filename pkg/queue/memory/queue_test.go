package memory

import (
	"context"
	"testing"

	"github.com/pario-ai/larder/pkg/models"
)

func TestQueueOrderAndDelete(t *testing.T) {
	q := New()
	ctx := context.Background()

	a, _ := q.Append(ctx, models.QueuedWrite{URL: "/a", Method: "POST"})
	b, _ := q.Append(ctx, models.QueuedWrite{URL: "/b", Method: "POST"})
	c, _ := q.Append(ctx, models.QueuedWrite{URL: "/c", Method: "POST"})

	_ = q.Delete(ctx, b)
	_ = q.Delete(ctx, b)

	writes, _ := q.List(ctx)
	if len(writes) != 2 || writes[0].ID != a || writes[1].ID != c {
		t.Errorf("unexpected queue contents %+v", writes)
	}
}
