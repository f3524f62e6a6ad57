// Package cache defines the partitioned response cache used by the dispatcher.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"strings"

	"github.com/pario-ai/larder/pkg/models"
)

// Store is a key-addressed blob cache split into named partitions.
// Single-entry operations are atomic; concurrent writes to the same
// signature resolve last-write-wins.
type Store interface {
	// Open creates the partition if it does not exist yet.
	Open(ctx context.Context, partition string) error
	// Match returns the entry for signature from the first listed partition
	// holding one. With no partitions listed every partition is searched.
	Match(ctx context.Context, signature string, partitions ...string) (*models.CacheEntry, bool, error)
	// Put stores an entry, replacing any prior entry with the same signature
	// in the same partition.
	Put(ctx context.Context, entry models.CacheEntry) error
	// PutAll stores all entries in one transaction: either every entry is
	// written or none is.
	PutAll(ctx context.Context, entries []models.CacheEntry) error
	// Delete removes one entry and reports whether it existed.
	Delete(ctx context.Context, partition, signature string) (bool, error)
	// Partitions lists partition names in creation order.
	Partitions(ctx context.Context) ([]string, error)
	// DeletePartition drops a partition and its entries.
	DeletePartition(ctx context.Context, name string) (bool, error)
	// Stats reports entry counts per partition and hit/miss counters.
	Stats(ctx context.Context) (models.CacheStats, error)
	// Clear removes all partitions and entries.
	Clear(ctx context.Context) error
	Close() error
}

// Signature computes the cache key of a request: method, origin-relative URL
// and the values of the vary headers.
func Signature(method, url string, header http.Header, vary []string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{' '})
	h.Write([]byte(url))
	for _, name := range vary {
		fmt.Fprintf(h, "\n%s: %s", http.CanonicalHeaderKey(name), header.Get(name))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
