package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newInstallCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Fetch every static asset into the current static partition",
		Long: "Fetch every static asset into the current static partition. With no " +
			"application connected the new version activates at once, which deletes " +
			"partitions left by other versions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.dispatcher.Install(context.Background()); err != nil {
				return err
			}
			fmt.Printf("Installed %d static assets into %s (%s).\n",
				len(a.cfg.StaticAssets), a.cfg.StaticPartition(), a.dispatcher.State())
			return nil
		},
	}
}
