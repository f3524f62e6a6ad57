package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newQueueCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and replay writes queued while offline",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued writes, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			writes, err := a.queue.List(context.Background())
			if err != nil {
				return err
			}
			if len(writes) == 0 {
				fmt.Println("Queue is empty.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMETHOD\tURL\tBYTES\tQUEUED AT")
			for _, q := range writes {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", q.ID, q.Method, q.URL, len(q.Body), q.EnqueuedAt().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Send every queued write once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.dispatcher.Replay(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Attempted: %d\nSucceeded: %d\nFailed:    %d\n", res.Attempted, res.Succeeded, res.Failed)
			return nil
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop every queued write without sending it",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.queue.Purge(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("Purged %d queued writes.\n", n)
			return nil
		},
	}

	cmd.AddCommand(listCmd, replayCmd, purgeCmd)
	return cmd
}
