// Package queue defines the durable FIFO queue of writes awaiting replay.
package queue

import (
	"context"

	"github.com/pario-ai/larder/pkg/models"
)

// Queue is an append-only FIFO of queued writes. Ids are assigned on
// Append and increase monotonically; List returns entries in id order.
type Queue interface {
	// Append stores w and returns its assigned id.
	Append(ctx context.Context, w models.QueuedWrite) (int64, error)
	// List returns every queued write, oldest first.
	List(ctx context.Context) ([]models.QueuedWrite, error)
	// Delete removes a write. Deleting an id that is already gone is not an error.
	Delete(ctx context.Context, id int64) error
	// Len returns the number of queued writes.
	Len(ctx context.Context) (int, error)
	// Purge drops every queued write and returns how many were removed.
	Purge(ctx context.Context) (int64, error)
	Close() error
}
