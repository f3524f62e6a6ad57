// Package memory holds an in-process cache.Store for ephemeral runs and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/models"
)

// Cache is a mutex-guarded map of partitions.
type Cache struct {
	mu         sync.RWMutex
	order      []string
	partitions map[string]map[string]models.CacheEntry
	hits       atomic.Int64
	misses     atomic.Int64
}

var _ cache.Store = (*Cache)(nil)

// New returns an empty Cache.
func New() *Cache {
	return &Cache{partitions: make(map[string]map[string]models.CacheEntry)}
}

func (c *Cache) open(partition string) map[string]models.CacheEntry {
	p, ok := c.partitions[partition]
	if !ok {
		p = make(map[string]models.CacheEntry)
		c.partitions[partition] = p
		c.order = append(c.order, partition)
	}
	return p
}

func (c *Cache) Open(_ context.Context, partition string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open(partition)
	return nil
}

func (c *Cache) Match(_ context.Context, signature string, partitions ...string) (*models.CacheEntry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(partitions) == 0 {
		var best *models.CacheEntry
		for _, name := range c.order {
			if e, ok := c.partitions[name][signature]; ok && (best == nil || !e.StoredAt.Before(best.StoredAt)) {
				best = &e
			}
		}
		if best == nil {
			c.misses.Add(1)
			return nil, false, nil
		}
		c.hits.Add(1)
		return clone(*best), true, nil
	}

	for _, name := range partitions {
		if e, ok := c.partitions[name][signature]; ok {
			c.hits.Add(1)
			return clone(e), true, nil
		}
	}
	c.misses.Add(1)
	return nil, false, nil
}

func (c *Cache) Put(_ context.Context, entry models.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.put(entry)
	return nil
}

func (c *Cache) PutAll(_ context.Context, entries []models.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.put(e)
	}
	return nil
}

func (c *Cache) put(e models.CacheEntry) {
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	c.open(e.Partition)[e.Signature] = *clone(e)
}

func (c *Cache) Delete(_ context.Context, partition, signature string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.partitions[partition]
	if !ok {
		return false, nil
	}
	if _, ok := p[signature]; !ok {
		return false, nil
	}
	delete(p, signature)
	return true, nil
}

func (c *Cache) Partitions(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order), nil
}

func (c *Cache) DeletePartition(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.partitions[name]; !ok {
		return false, nil
	}
	delete(c.partitions, name)
	c.order = slices.DeleteFunc(c.order, func(n string) bool { return n == name })
	return true, nil
}

func (c *Cache) Stats(_ context.Context) (models.CacheStats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	stats := models.CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load()}
	for _, name := range c.order {
		ps := models.PartitionStats{Name: name}
		for _, e := range c.partitions[name] {
			ps.Entries++
			ps.Bytes += int64(len(e.Body))
		}
		stats.Entries += ps.Entries
		stats.Partitions = append(stats.Partitions, ps)
	}
	return stats, nil
}

func (c *Cache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partitions = make(map[string]map[string]models.CacheEntry)
	c.order = nil
	return nil
}

func (c *Cache) Close() error { return nil }

func clone(e models.CacheEntry) *models.CacheEntry {
	e.Header = e.Header.Clone()
	e.Body = slices.Clone(e.Body)
	return &e
}
