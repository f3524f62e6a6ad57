// Package memory holds an in-process queue.Queue for ephemeral runs and tests.
package memory

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/queue"
)

// Queue keeps writes in a slice ordered by id.
type Queue struct {
	mu     sync.Mutex
	nextID int64
	writes []models.QueuedWrite
}

var _ queue.Queue = (*Queue)(nil)

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

func (q *Queue) Append(_ context.Context, w models.QueuedWrite) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	w.ID = q.nextID
	w.Headers = maps.Clone(w.Headers)
	if w.Timestamp == 0 {
		w.Timestamp = time.Now().UnixMilli()
	}
	q.writes = append(q.writes, w)
	return w.ID, nil
}

func (q *Queue) List(_ context.Context) ([]models.QueuedWrite, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.QueuedWrite, len(q.writes))
	for i, w := range q.writes {
		w.Headers = maps.Clone(w.Headers)
		out[i] = w
	}
	return out, nil
}

func (q *Queue) Delete(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, w := range q.writes {
		if w.ID == id {
			q.writes = append(q.writes[:i], q.writes[i+1:]...)
			break
		}
	}
	return nil
}

func (q *Queue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.writes), nil
}

func (q *Queue) Purge(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := int64(len(q.writes))
	q.writes = nil
	return n, nil
}

func (q *Queue) Close() error { return nil }
