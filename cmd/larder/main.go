package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:     "larder",
		Short:   "Larder: offline-first request cache and background sync for web apps",
		Version: version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Printf("load .env: %v", err)
			}
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "larder.yaml", "path to config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newInstallCmd(&configPath),
		newCacheCmd(&configPath),
		newQueueCmd(&configPath),
		newSyncCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
