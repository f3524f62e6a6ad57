package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/larder/pkg/cache"
	"github.com/pario-ai/larder/pkg/models"
)

// Cache is a partitioned response cache backed by SQLite.
type Cache struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
}

var _ cache.Store = (*Cache)(nil)

const createCacheTables = `
CREATE TABLE IF NOT EXISTS cache_partitions (
	name TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
	partition TEXT NOT NULL,
	signature TEXT NOT NULL,
	method TEXT NOT NULL,
	url TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	headers TEXT NOT NULL DEFAULT '{}',
	body BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	PRIMARY KEY (partition, signature)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_signature ON cache_entries(signature);
`

// New opens the cache database at dbPath and creates the schema.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// One connection keeps writes serialized and makes :memory: usable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTables); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db}, nil
}

// Open creates the partition if it does not exist yet.
func (c *Cache) Open(ctx context.Context, partition string) error {
	return openPartition(ctx, c.db, partition)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func openPartition(ctx context.Context, db execer, partition string) error {
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO cache_partitions (name, created_at) VALUES (?, ?)`,
		partition, time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("open partition %s: %w", partition, err)
	}
	return nil
}

// Match returns the cached entry for signature.
func (c *Cache) Match(ctx context.Context, signature string, partitions ...string) (*models.CacheEntry, bool, error) {
	if len(partitions) == 0 {
		e, err := c.scanEntry(c.db.QueryRowContext(ctx,
			`SELECT partition, signature, method, url, status_code, headers, body, stored_at
			 FROM cache_entries WHERE signature = ? ORDER BY stored_at DESC LIMIT 1`,
			signature,
		))
		return c.matchResult(e, err)
	}

	for _, p := range partitions {
		e, err := c.scanEntry(c.db.QueryRowContext(ctx,
			`SELECT partition, signature, method, url, status_code, headers, body, stored_at
			 FROM cache_entries WHERE partition = ? AND signature = ?`,
			p, signature,
		))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		return c.matchResult(e, err)
	}
	c.misses.Add(1)
	return nil, false, nil
}

func (c *Cache) matchResult(e *models.CacheEntry, err error) (*models.CacheEntry, bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		c.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		c.misses.Add(1)
		return nil, false, fmt.Errorf("cache match: %w", err)
	}
	c.hits.Add(1)
	return e, true, nil
}

func (c *Cache) scanEntry(row *sql.Row) (*models.CacheEntry, error) {
	var (
		e        models.CacheEntry
		headers  string
		storedAt int64
	)
	if err := row.Scan(&e.Partition, &e.Signature, &e.Method, &e.URL, &e.StatusCode, &headers, &e.Body, &storedAt); err != nil {
		return nil, err
	}
	e.Header = make(http.Header)
	if err := json.Unmarshal([]byte(headers), &e.Header); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	e.StoredAt = time.Unix(0, storedAt).UTC()
	return &e, nil
}

// Put stores an entry in its partition.
func (c *Cache) Put(ctx context.Context, entry models.CacheEntry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	if err := putEntry(ctx, tx, entry); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// PutAll stores all entries atomically.
func (c *Cache) PutAll(ctx context.Context, entries []models.CacheEntry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cache put all: %w", err)
	}
	for _, e := range entries {
		if err := putEntry(ctx, tx, e); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache put all: %w", err)
	}
	return nil
}

func putEntry(ctx context.Context, tx *sql.Tx, e models.CacheEntry) error {
	if err := openPartition(ctx, tx, e.Partition); err != nil {
		return err
	}
	if e.Header == nil {
		e.Header = make(http.Header)
	}
	headers, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encode headers: %w", err)
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	if e.Body == nil {
		e.Body = []byte{}
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries
		 (partition, signature, method, url, status_code, headers, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Partition, e.Signature, e.Method, e.URL, e.StatusCode, string(headers), e.Body, e.StoredAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (c *Cache) Delete(ctx context.Context, partition, signature string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE partition = ? AND signature = ?`, partition, signature)
	if err != nil {
		return false, fmt.Errorf("cache delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cache delete: %w", err)
	}
	return n > 0, nil
}

// Partitions lists partition names in creation order.
func (c *Cache) Partitions(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name FROM cache_partitions ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan partition: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeletePartition drops a partition and all of its entries.
func (c *Cache) DeletePartition(ctx context.Context, name string) (bool, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("delete partition: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE partition = ?`, name); err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete partition entries: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM cache_partitions WHERE name = ?`, name)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("delete partition: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("delete partition: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Stats returns per-partition sizes and hit/miss counters.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT p.name, COUNT(e.signature), COALESCE(SUM(LENGTH(e.body)), 0)
		 FROM cache_partitions p LEFT JOIN cache_entries e ON e.partition = p.name
		 GROUP BY p.name ORDER BY p.created_at, p.name`)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	defer rows.Close()

	stats := models.CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	for rows.Next() {
		var p models.PartitionStats
		if err := rows.Scan(&p.Name, &p.Entries, &p.Bytes); err != nil {
			return models.CacheStats{}, fmt.Errorf("scan cache stats: %w", err)
		}
		stats.Entries += p.Entries
		stats.Partitions = append(stats.Partitions, p)
	}
	return stats, rows.Err()
}

// Clear removes every partition and entry.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries; DELETE FROM cache_partitions;`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
