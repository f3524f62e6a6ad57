// Package synclog records replay attempts of queued writes in a dedicated
// SQLite database.
package synclog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/pario-ai/larder/pkg/models"
	_ "modernc.org/sqlite"
)

// Logger writes and queries sync attempts.
type Logger struct {
	db   *sql.DB
	cfg  models.SyncLogConfig
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New opens the sync log database and creates the schema.
func New(cfg models.SyncLogConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sync log db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sync log db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	if cfg.RetentionDays > 0 {
		l.wg.Add(1)
		go l.retentionLoop()
	}
	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS sync_attempts (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		queue_id    INTEGER NOT NULL,
		url         TEXT NOT NULL,
		method      TEXT NOT NULL,
		status_code INTEGER NOT NULL DEFAULT 0,
		outcome     TEXT NOT NULL,
		error       TEXT,
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sync_attempts_queue ON sync_attempts(queue_id)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_sync_attempts_created ON sync_attempts(created_at)`)
	return err
}

// Record inserts a sync attempt.
func (l *Logger) Record(ctx context.Context, a models.SyncAttempt) error {
	if l == nil || l.db == nil {
		return nil
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO sync_attempts
		(queue_id, url, method, status_code, outcome, error, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.QueueID, a.URL, a.Method, a.StatusCode, a.Outcome, a.Error,
		a.LatencyMs, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record sync attempt: %w", err)
	}
	return nil
}

// Query returns attempts matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.SyncLogQueryOpts) ([]models.SyncAttempt, error) {
	q := `SELECT id, queue_id, url, method, status_code, outcome, error, latency_ms, created_at
		FROM sync_attempts WHERE 1=1`
	var args []any

	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, opts.Outcome)
	}
	if opts.QueueID != 0 {
		q += " AND queue_id = ?"
		args = append(args, opts.QueueID)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UnixMilli())
	}

	q += " ORDER BY created_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query sync log: %w", err)
	}
	defer rows.Close()

	var attempts []models.SyncAttempt
	for rows.Next() {
		var a models.SyncAttempt
		var errMsg sql.NullString
		var created int64
		if err := rows.Scan(&a.ID, &a.QueueID, &a.URL, &a.Method, &a.StatusCode,
			&a.Outcome, &errMsg, &a.LatencyMs, &created); err != nil {
			return nil, fmt.Errorf("scan sync attempt: %w", err)
		}
		a.Error = errMsg.String
		a.CreatedAt = time.UnixMilli(created).UTC()
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// Stats returns attempt counts grouped by outcome and UTC day.
func (l *Logger) Stats(ctx context.Context) ([]models.SyncStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT outcome, date(created_at / 1000, 'unixepoch') AS day, count(*) AS cnt
		 FROM sync_attempts GROUP BY outcome, day ORDER BY day DESC, outcome`)
	if err != nil {
		return nil, fmt.Errorf("sync log stats: %w", err)
	}
	defer rows.Close()

	var stats []models.SyncStat
	for rows.Next() {
		var s models.SyncStat
		var day sql.NullString
		if err := rows.Scan(&s.Outcome, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan sync stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes attempts older than the retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM sync_attempts WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sync log cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
