package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pario-ai/larder/pkg/models"
	"github.com/spf13/cobra"
)

func newSyncCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Query the sync attempt log",
	}
	cmd.AddCommand(newSyncLogCmd(configPath), newSyncStatsCmd(configPath), newSyncCleanupCmd(configPath))
	return cmd
}

func openSyncLog(configPath string) (*app, error) {
	a, err := openApp(configPath)
	if err != nil {
		return nil, err
	}
	if a.syncLog == nil {
		a.Close()
		return nil, fmt.Errorf("sync log is disabled (set sync_log.enabled)")
	}
	return a, nil
}

func newSyncLogCmd(configPath *string) *cobra.Command {
	var (
		outcome string
		since   string
		queueID int64
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent replay attempts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSyncLog(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			opts := models.SyncLogQueryOpts{Outcome: outcome, QueueID: queueID, Limit: limit}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}

			attempts, err := a.syncLog.Query(context.Background(), opts)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				fmt.Println("No sync attempts found.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tQUEUE ID\tMETHOD\tURL\tSTATUS\tOUTCOME\tLATENCY\tERROR")
			for _, at := range attempts {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\t%dms\t%s\n",
					at.CreatedAt.Format(time.RFC3339), at.QueueID, at.Method, at.URL,
					at.StatusCode, at.Outcome, at.LatencyMs, at.Error)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (succeeded, failed)")
	cmd.Flags().StringVar(&since, "since", "", "only attempts since date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&queueID, "queue-id", 0, "filter by queued write id")
	cmd.Flags().IntVar(&limit, "limit", 50, "max attempts to show")
	return cmd
}

func newSyncStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show attempt counts per day and outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSyncLog(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.syncLog.Stats(context.Background())
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Println("No sync attempts recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DAY\tOUTCOME\tCOUNT")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%s\t%d\n", s.Day, s.Outcome, s.Count)
			}
			return w.Flush()
		},
	}
}

func newSyncCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete attempts older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openSyncLog(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.syncLog.Cleanup(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d sync attempts older than %d days.\n", n, a.cfg.SyncLog.RetentionDays)
			return nil
		},
	}
}
