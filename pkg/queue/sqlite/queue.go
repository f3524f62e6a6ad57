package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/larder/pkg/models"
	"github.com/pario-ai/larder/pkg/queue"
)

// Queue implements queue.Queue with a SQLite table.
type Queue struct {
	db *sql.DB
}

var _ queue.Queue = (*Queue)(nil)

const createQueueTable = `
CREATE TABLE IF NOT EXISTS sync_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	method TEXT NOT NULL,
	headers TEXT NOT NULL DEFAULT '{}',
	body TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_timestamp ON sync_queue(timestamp);
`

// New opens the queue database at dbPath and creates the schema.
func New(dbPath string) (*Queue, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createQueueTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate queue db: %w", err)
	}
	return &Queue{db: db}, nil
}

// Append stores w at the tail of the queue.
func (q *Queue) Append(ctx context.Context, w models.QueuedWrite) (int64, error) {
	if w.Headers == nil {
		w.Headers = map[string]string{}
	}
	headers, err := json.Marshal(w.Headers)
	if err != nil {
		return 0, fmt.Errorf("encode headers: %w", err)
	}
	if w.Timestamp == 0 {
		w.Timestamp = time.Now().UnixMilli()
	}
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO sync_queue (url, method, headers, body, timestamp) VALUES (?, ?, ?, ?, ?)`,
		w.URL, w.Method, string(headers), w.Body, w.Timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue write: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue write: %w", err)
	}
	return id, nil
}

// List returns all queued writes in FIFO order.
func (q *Queue) List(ctx context.Context) ([]models.QueuedWrite, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, url, method, headers, body, timestamp FROM sync_queue ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var writes []models.QueuedWrite
	for rows.Next() {
		var (
			w       models.QueuedWrite
			headers string
		)
		if err := rows.Scan(&w.ID, &w.URL, &w.Method, &headers, &w.Body, &w.Timestamp); err != nil {
			return nil, fmt.Errorf("scan queued write: %w", err)
		}
		if err := json.Unmarshal([]byte(headers), &w.Headers); err != nil {
			return nil, fmt.Errorf("decode headers of write %d: %w", w.ID, err)
		}
		writes = append(writes, w)
	}
	return writes, rows.Err()
}

// Delete removes the write with the given id.
func (q *Queue) Delete(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("dequeue write %d: %w", id, err)
	}
	return nil
}

// Len returns the queue length.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Purge removes every queued write.
func (q *Queue) Purge(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sync_queue`)
	if err != nil {
		return 0, fmt.Errorf("purge queue: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (q *Queue) Close() error {
	return q.db.Close()
}
