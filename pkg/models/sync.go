package models

import "time"

// Sync attempt outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// SyncAttempt records a single replay of a queued write.
type SyncAttempt struct {
	ID         int64     `json:"id"`
	QueueID    int64     `json:"queue_id"`
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// SyncLogConfig controls the sync attempt log.
type SyncLogConfig struct {
	Enabled       bool   `yaml:"enabled" env:"ENABLED"`
	DBPath        string `yaml:"db_path" env:"DB_PATH"`
	RetentionDays int    `yaml:"retention_days" env:"RETENTION_DAYS"`
}

// SyncLogQueryOpts filters sync attempts.
type SyncLogQueryOpts struct {
	Outcome string
	QueueID int64
	Since   time.Time
	Limit   int
}

// SyncStat holds attempt counts for an outcome/day combination.
type SyncStat struct {
	Outcome string
	Day     string
	Count   int
}
