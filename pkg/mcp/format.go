package mcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/larder/pkg/dispatcher"
	"github.com/pario-ai/larder/pkg/models"
)

func formatStatus(st dispatcher.Status) string {
	return fmt.Sprintf("Dispatcher Status\n"+
		"  State:   %s\n"+
		"  Version: %s\n"+
		"  Queued:  %d\n"+
		"  Clients: %d\n",
		st.State, st.Version, st.Queued, st.Clients)
}

// formatCacheStats renders per-partition sizes followed by the hit rate.
func formatCacheStats(stats models.CacheStats) string {
	var b strings.Builder
	b.WriteString("Cache Statistics\n")
	if len(stats.Partitions) > 0 {
		fmt.Fprintf(&b, "  %-24s %8s %12s\n", "Partition", "Entries", "Bytes")
		for _, p := range stats.Partitions {
			fmt.Fprintf(&b, "  %-24s %8d %12d\n", p.Name, p.Entries, p.Bytes)
		}
	}
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	fmt.Fprintf(&b, "  Entries:  %d\n  Hits:     %d\n  Misses:   %d\n  Hit Rate: %.1f%%\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate)
	return b.String()
}

func formatQueue(writes []models.QueuedWrite) string {
	if len(writes) == 0 {
		return "No queued writes."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%6s  %-20s %-7s %-40s %8s\n", "ID", "Queued", "Method", "URL", "Bytes")
	b.WriteString(strings.Repeat("-", 86) + "\n")
	for _, w := range writes {
		fmt.Fprintf(&b, "%6d  %-20s %-7s %-40s %8d\n",
			w.ID, w.EnqueuedAt().Format(time.DateTime), w.Method, truncate(w.URL, 40), len(w.Body))
	}
	return b.String()
}

func formatReplay(res dispatcher.ReplayResult) string {
	if res.Attempted == 0 {
		return "Queue is empty; nothing to replay."
	}
	return fmt.Sprintf("Replayed %d queued write(s): %d succeeded, %d still queued.\n",
		res.Attempted, res.Succeeded, res.Failed)
}

func formatAttempts(attempts []models.SyncAttempt) string {
	if len(attempts) == 0 {
		return "No sync attempts found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %6s %-7s %-32s %6s %-9s %8s\n",
		"Time", "Queue", "Method", "URL", "Status", "Outcome", "Latency")
	b.WriteString(strings.Repeat("-", 96) + "\n")
	for _, a := range attempts {
		fmt.Fprintf(&b, "%-20s %6d %-7s %-32s %6d %-9s %6dms\n",
			a.CreatedAt.Format(time.DateTime), a.QueueID, a.Method, truncate(a.URL, 32),
			a.StatusCode, a.Outcome, a.LatencyMs)
		if a.Error != "" {
			fmt.Fprintf(&b, "    error: %s\n", a.Error)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
