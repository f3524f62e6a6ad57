package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCacheCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the response cache",
	}

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache partitions and entry counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.cache.Stats(context.Background())
			if err != nil {
				return err
			}
			if len(stats.Partitions) == 0 {
				fmt.Println("No cache partitions.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PARTITION\tENTRIES\tBYTES\tCURRENT")
			for _, p := range stats.Partitions {
				current := p.Name == a.cfg.StaticPartition() || p.Name == a.cfg.DynamicPartition()
				fmt.Fprintf(w, "%s\t%d\t%d\t%v\n", p.Name, p.Entries, p.Bytes, current)
			}
			w.Flush()
			fmt.Printf("\nEntries: %d\n", stats.Entries)
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every partition and entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.cache.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Println("All cache partitions cleared.")
			return nil
		},
	}

	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "Delete partitions that do not belong to the configured version",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.dispatcher.Collect(context.Background())
			if err != nil {
				return err
			}
			if len(deleted) == 0 {
				fmt.Println("No stale partitions.")
				return nil
			}
			for _, name := range deleted {
				fmt.Printf("Deleted %s\n", name)
			}
			return nil
		},
	}

	cmd.AddCommand(statsCmd, clearCmd, gcCmd)
	return cmd
}
